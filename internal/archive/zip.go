package archive

import (
	"archive/zip"
	"bytes"
	"io"

	"github.com/antti/imagevault/internal/shared"
)

type zipReader struct {
	r *zip.ReadCloser
}

func openZip(path string) (Reader, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, shared.NewCorruptAssetError(err, "open zip archive")
	}
	return &zipReader{r: r}, nil
}

func (z *zipReader) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(z.r.File))
	for _, f := range z.r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		file := f // capture for closure
		entries = append(entries, Entry{
			Name: file.Name,
			Size: int64(file.UncompressedSize64),
			Open: func() (io.ReadSeeker, error) {
				rc, err := file.Open()
				if err != nil {
					return nil, shared.NewCorruptAssetError(err, "open zip entry "+file.Name)
				}
				defer rc.Close()
				data, err := io.ReadAll(rc)
				if err != nil {
					return nil, shared.NewCorruptAssetError(err, "read zip entry "+file.Name)
				}
				return bytes.NewReader(data), nil
			},
		})
	}
	return entries, nil
}

func (z *zipReader) Close() error { return z.r.Close() }
