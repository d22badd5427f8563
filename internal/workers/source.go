// Package workers holds the bits ThumbnailWorker and CacheWorker share:
// resolving a collection's original image bytes to a real filesystem
// path regardless of whether the collection is a folder or an archive,
// since internal/imagecodec decodes from paths.
package workers

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/antti/imagevault/internal/archive"
	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/shared"
)

// ResolveSource returns a filesystem path to the original image's bytes.
// For a folder collection that is simply collectionPath/relativePath; for
// an archive collection the entry is materialized to a temp file, and the
// returned cleanup func removes it once the caller is done decoding.
func ResolveSource(ctx context.Context, collType collections.Type, collectionPath, relativePath string) (path string, cleanup func(), err error) {
	if collType == collections.TypeFolder {
		return filepath.Join(collectionPath, relativePath), func() {}, nil
	}

	r, err := archive.Open(collectionPath)
	if err != nil {
		return "", nil, err
	}
	defer r.Close()

	entries, err := r.Entries()
	if err != nil {
		return "", nil, err
	}

	for _, e := range entries {
		if e.Name != relativePath {
			continue
		}
		rs, err := e.Open()
		if err != nil {
			return "", nil, err
		}

		tmp, err := os.CreateTemp("", "imagevault-src-*"+filepath.Ext(e.Name))
		if err != nil {
			return "", nil, shared.NewTransientError(err, "create scratch file")
		}
		if _, err := io.Copy(tmp, rs); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", nil, shared.NewCorruptAssetError(err, "materialize archive entry "+e.Name)
		}
		tmp.Close()

		return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
	}

	return "", nil, shared.NewNotFoundError("archive entry not found: " + relativePath)
}
