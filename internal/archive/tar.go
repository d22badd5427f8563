package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"

	"github.com/antti/imagevault/internal/shared"
)

func openTar(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.NewTransientError(err, "open tar archive")
	}
	defer f.Close()
	return readTar(f)
}

func openTarGz(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.NewTransientError(err, "open tar.gz archive")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, shared.NewCorruptAssetError(err, "open gzip stream")
	}
	defer gz.Close()
	return readTar(gz)
}

func openTarBz2(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.NewTransientError(err, "open tar.bz2 archive")
	}
	defer f.Close()
	return readTar(bzip2.NewReader(f))
}

// readTar walks a tar stream once, buffering every regular-file entry
// into memory; directories, links and other entry types are skipped. tar.Reader is forward-only, so there is no cheaper way to
// offer random per-entry Open() calls after the archive handle closes.
func readTar(r io.Reader) (Reader, error) {
	tr := tar.NewReader(r)
	buffered := &bufferedEntries{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, shared.NewCorruptAssetError(err, "read tar header")
		}
		if hdr.Typeflag == tar.TypeDir {
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, shared.NewCorruptAssetError(err, "read tar entry "+hdr.Name)
		}
		buffered.entries = append(buffered.entries, bufferedEntry(hdr.Name, data))
	}

	return buffered, nil
}
