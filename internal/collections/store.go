package collections

import (
	"context"

	"github.com/antti/imagevault/internal/shared"
)

// Filter narrows Query to a subset of non-deleted collections.
type Filter struct {
	LibraryID *ID
	Type      Type
}

// SortField is one of the fields the store (and the NavigationIndex) can
// order collections by.
type SortField string

const (
	SortUpdatedAt  SortField = "updatedAt"
	SortCreatedAt  SortField = "createdAt"
	SortName       SortField = "name"
	SortImageCount SortField = "imageCount"
	SortTotalSize  SortField = "totalSize"
)

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Sort pairs a field with a direction.
type Sort struct {
	Field     SortField
	Direction SortDirection
}

// CreateSpec is the input to Create: everything a newly discovered
// collection needs before it has an id.
type CreateSpec struct {
	Name        string
	Path        string
	Type        Type
	LibraryID   *ID
	Description string
}

// AddResult reports whether AtomicAddImage/Thumbnail/Cache actually
// appended a new entry or found an existing one (idempotence contract).
type AddResult[T any] struct {
	Added    bool
	Existing T
}

// Patch carries the top-level, structural fields Update may change.
// Nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	LibraryID   **ID
}

// Store is the single source of truth for collection documents: atomic
// CRUD plus the CAS array-append primitives that keep concurrent workers
// from losing or duplicating entries.
type Store interface {
	// Create inserts a new collection. If a non-deleted collection with
	// the same Path already exists and overwrite is false, it returns
	// that collection's id together with a shared.ErrConflict error.
	Create(ctx context.Context, spec CreateSpec, overwrite bool) (ID, error)

	// Get returns the collection, or (Collection{}, false, nil) if absent
	// or soft-deleted.
	Get(ctx context.Context, id ID) (Collection, bool, error)

	// Update applies a structural patch, bumping UpdatedAt.
	Update(ctx context.Context, id ID, patch Patch) error

	// SoftDelete marks the collection deleted; callers are responsible
	// for removing it from the NavigationIndex.
	SoftDelete(ctx context.Context, id ID) error

	// AtomicAddImage CAS-appends an image keyed on (filename,
	// relativePath); a duplicate key is a no-op that returns the
	// existing entry.
	AtomicAddImage(ctx context.Context, id ID, image ImageEmbedded) (AddResult[ImageEmbedded], error)

	// AtomicAddThumbnail CAS-appends a thumbnail keyed on (imageId,
	// width, height). When the key matches an existing entry, that entry
	// is returned only if its file is still present on disk; otherwise
	// the entry is overwritten in place. replace forces the overwrite —
	// workers pass it after writing a fresh rendition so the recorded
	// bytes/timestamp track the file actually on disk.
	AtomicAddThumbnail(ctx context.Context, id ID, thumb ThumbnailEmbedded, replace bool) (AddResult[ThumbnailEmbedded], error)

	// AtomicAddCache CAS-appends a cache rendition keyed on (imageId,
	// width, height), with the same replace contract as
	// AtomicAddThumbnail.
	AtomicAddCache(ctx context.Context, id ID, cache CacheEmbedded, replace bool) (AddResult[CacheEmbedded], error)

	// UpdateStatistics recomputes Statistics from the current Images
	// array and persists it.
	UpdateStatistics(ctx context.Context, id ID) error

	// Query returns a page of non-deleted collections matching filter,
	// in the requested sort order.
	Query(ctx context.Context, filter Filter, sort Sort, skip, limit int) ([]Collection, error)
}

// notFound is a small helper so every Store implementation returns the
// same taxonomy kind for a missing collection.
func notFound(id ID) error {
	return shared.NewNotFoundError("collection " + id.String() + " not found")
}
