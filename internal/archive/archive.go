// Package archive is the ArchiveReader component: streaming enumeration of
// entries inside zip/7z/rar/tar/tar.gz/tar.bz2 containers without full
// extraction to disk. zip is mandatory; the rest are best-effort — a
// format that fails to open returns shared.ErrCorruptAsset rather than
// panicking.
package archive

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"

	"github.com/antti/imagevault/internal/shared"
)

// Entry describes one file inside an archive. Open materializes the
// entry's bytes and returns a ReadSeeker over them; callers only hold it
// long enough to probe dimensions, then discard it.
type Entry struct {
	Name string
	Size int64
	Open func() (io.ReadSeeker, error)
}

// Reader enumerates the non-directory entries of an opened archive.
type Reader interface {
	Entries() ([]Entry, error)
	Close() error
}

// Ext reports whether ext (including the leading dot, case-insensitive)
// names a container format this package can open.
func Ext(ext string) bool {
	switch strings.ToLower(ext) {
	case ".zip", ".7z", ".rar", ".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tbz2":
		return true
	}
	return false
}

// Open dispatches on path's extension and returns a Reader positioned at
// the archive's entry list. Callers must Close it when done.
func Open(path string) (Reader, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return openZip(path)
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return openTarGz(path)
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return openTarBz2(path)
	case strings.HasSuffix(lower, ".tar"):
		return openTar(path)
	case strings.HasSuffix(lower, ".7z"):
		return openSevenZip(path)
	case strings.HasSuffix(lower, ".rar"):
		return openRar(path)
	default:
		return nil, shared.NewValidationError("path", "unsupported archive extension: "+filepath.Ext(path))
	}
}

// bufferedEntries is the shared representation used by the forward-only
// formats (tar family, rar): the whole archive is walked once, each
// entry's bytes copied into memory, and directory entries dropped.
type bufferedEntries struct {
	entries []Entry
}

func (b *bufferedEntries) Entries() ([]Entry, error) { return b.entries, nil }
func (b *bufferedEntries) Close() error              { return nil }

func bufferedEntry(name string, data []byte) Entry {
	return Entry{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadSeeker, error) {
			return bytes.NewReader(data), nil
		},
	}
}
