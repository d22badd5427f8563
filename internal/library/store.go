package library

import (
	"context"

	"github.com/antti/imagevault/internal/collections"
)

// CreateSpec is the input to Create: everything a new library needs
// before it has an id.
type CreateSpec struct {
	Name        string
	Path        string
	Description string
	Settings    Settings
}

// Patch carries the top-level fields Update may change. Nil fields are
// left untouched.
type Patch struct {
	Name        *string
	Description *string
	Settings    *Settings
}

// Store persists libraries. Cascade-deleting a library's scheduled job
// is the caller's (internal/scheduler's) responsibility, not the
// store's — Store only owns the libraries table.
type Store interface {
	Create(ctx context.Context, spec CreateSpec) (collections.ID, error)
	Get(ctx context.Context, id collections.ID) (Library, bool, error)
	Update(ctx context.Context, id collections.ID, patch Patch) (Library, error)
	Delete(ctx context.Context, id collections.ID) error
	List(ctx context.Context) ([]Library, error)
	UpdateStatistics(ctx context.Context, id collections.ID) error
}
