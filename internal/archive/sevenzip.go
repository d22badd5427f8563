package archive

import (
	"bytes"
	"io"

	"github.com/bodgit/sevenzip"

	"github.com/antti/imagevault/internal/shared"
)

type sevenZipReader struct {
	r *sevenzip.ReadCloser
}

func openSevenZip(path string) (Reader, error) {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return nil, shared.NewCorruptAssetError(err, "open 7z archive")
	}
	return &sevenZipReader{r: r}, nil
}

func (s *sevenZipReader) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(s.r.File))
	for _, f := range s.r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		file := f
		entries = append(entries, Entry{
			Name: file.Name,
			Size: file.FileInfo().Size(),
			Open: func() (io.ReadSeeker, error) {
				rc, err := file.Open()
				if err != nil {
					return nil, shared.NewCorruptAssetError(err, "open 7z entry "+file.Name)
				}
				defer rc.Close()
				data, err := io.ReadAll(rc)
				if err != nil {
					return nil, shared.NewCorruptAssetError(err, "read 7z entry "+file.Name)
				}
				return bytes.NewReader(data), nil
			},
		})
	}
	return entries, nil
}

func (s *sevenZipReader) Close() error { return s.r.Close() }
