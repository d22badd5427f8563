package archive

import (
	"io"
	"os"

	"github.com/nwaples/rardecode"

	"github.com/antti/imagevault/internal/shared"
)

// openRar buffers the whole archive in one pass, same rationale as
// readTar: rardecode's reader is forward-only.
func openRar(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shared.NewTransientError(err, "open rar archive")
	}
	defer f.Close()

	rr, err := rardecode.NewReader(f, "")
	if err != nil {
		return nil, shared.NewCorruptAssetError(err, "open rar stream")
	}

	buffered := &bufferedEntries{}
	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, shared.NewCorruptAssetError(err, "read rar header")
		}
		if hdr.IsDir {
			continue
		}

		data, err := io.ReadAll(rr)
		if err != nil {
			return nil, shared.NewCorruptAssetError(err, "read rar entry "+hdr.Name)
		}
		buffered.entries = append(buffered.entries, bufferedEntry(hdr.Name, data))
	}

	return buffered, nil
}
