// Package rendition is the on-disk home for generated thumbnail and cache
// renditions, laid out as thumbnails/<collectionId>/<imageId>_<w>x<h>.<ext>
// and cache/<collectionId>/<imageId>_<w>x<h>.<ext>. Writes are
// atomic (temp file + rename) so a worker crash mid-write never leaves a
// partial file for a reader to pick up.
package rendition

import (
	"context"
	"io"
)

// Kind selects which top-level subtree a rendition belongs to.
type Kind string

const (
	KindThumbnail Kind = "thumbnails"
	KindCache     Kind = "cache"
)

// Store persists and retrieves generated renditions. Implementations can
// back it with a local filesystem or, later, object storage.
type Store interface {
	// Save writes the rendition for (collectionID, imageID, width, height)
	// under kind and returns the storage-relative path that
	// collections.ThumbnailEmbedded.ThumbnailPath or
	// CacheEmbedded.CachePath should record.
	Save(ctx context.Context, kind Kind, collectionID, imageID string, width, height int, ext string, reader io.Reader) (path string, err error)

	// Get opens a previously saved rendition by its storage-relative path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a rendition. Deleting a path that does not exist is
	// not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a rendition is present at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// Path builds the storage-relative path for a rendition without writing
// anything; it is the same path Save returns for the same arguments.
func Path(kind Kind, collectionID, imageID string, width, height int, ext string) string {
	return buildPath(kind, collectionID, imageID, width, height, ext)
}
