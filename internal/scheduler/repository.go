package scheduler

import (
	"context"
	"time"

	"github.com/antti/imagevault/internal/collections"
)

// Repository persists Jobs and their Run history.
type Repository interface {
	Create(ctx context.Context, spec CreateSpec) (Job, error)
	Get(ctx context.Context, id collections.ID) (Job, bool, error)
	Update(ctx context.Context, id collections.ID, patch Patch) (Job, error)
	Delete(ctx context.Context, id collections.ID) error
	List(ctx context.Context) ([]Job, error)
	ListEnabled(ctx context.Context) ([]Job, error)
	// FindByLibraryJob locates the single library-scan job tied to a
	// library, if any, for the materialize/toggle/cascade-delete contract.
	FindByLibraryJob(ctx context.Context, libraryID collections.ID) (Job, bool, error)

	// RecordRun appends a Run and updates the parent Job's counters,
	// lastRun*, and nextRunAt in the same persistence step.
	RecordRun(ctx context.Context, jobID collections.ID, run Run, nextRunAt *time.Time) error

	// ListRuns returns a job's most recent runs, newest first.
	ListRuns(ctx context.Context, jobID collections.ID, limit int) ([]Run, error)
}
