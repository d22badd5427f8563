package library

import (
	"context"
	"log/slog"

	"github.com/antti/imagevault/internal/collections"
)

// JobSync is the scheduler surface the service drives: every library
// create/update/delete keeps the paired library-scan job in step with
// settings.autoScan. *scheduler.Scheduler satisfies it.
type JobSync interface {
	SyncLibraryJob(ctx context.Context, libraryID collections.ID, autoScan bool) error
	DeleteLibraryJob(ctx context.Context, libraryID collections.ID) error
}

// Service is the composition point for library CRUD: it pairs Store
// writes with the scheduled-job side effects the autoScan contract
// requires, so no caller can mutate a library without its job following.
type Service struct {
	store Store
	jobs  JobSync
}

// NewService builds a Service.
func NewService(store Store, jobs JobSync) *Service {
	return &Service{store: store, jobs: jobs}
}

// Create persists the library and, when settings.autoScan is set,
// materializes its scan job.
func (s *Service) Create(ctx context.Context, spec CreateSpec) (Library, error) {
	id, err := s.store.Create(ctx, spec)
	if err != nil {
		return Library{}, err
	}
	if err := s.jobs.SyncLibraryJob(ctx, id, spec.Settings.AutoScan); err != nil {
		return Library{}, err
	}
	lib, _, err := s.store.Get(ctx, id)
	return lib, err
}

// Get returns the library, or ok=false if absent.
func (s *Service) Get(ctx context.Context, id collections.ID) (Library, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns all libraries.
func (s *Service) List(ctx context.Context) ([]Library, error) {
	return s.store.List(ctx)
}

// Update applies the patch and, when it touches Settings, enables or
// disables the paired job to match autoScan — without ever creating a
// duplicate.
func (s *Service) Update(ctx context.Context, id collections.ID, patch Patch) (Library, error) {
	lib, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return Library{}, err
	}
	if patch.Settings != nil {
		if err := s.jobs.SyncLibraryJob(ctx, id, patch.Settings.AutoScan); err != nil {
			return Library{}, err
		}
	}
	return lib, nil
}

// Delete removes the library and cascades removal of its scheduled job.
// Collections under the library are left untouched.
func (s *Service) Delete(ctx context.Context, id collections.ID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.jobs.DeleteLibraryJob(ctx, id)
}

// ReconcileJobs re-syncs every library's paired job with its current
// autoScan flag. Run on scheduler startup so a job lost to a partial
// failure (created library, crashed before the job landed) is repaired.
func (s *Service) ReconcileJobs(ctx context.Context) error {
	libs, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if err := s.jobs.SyncLibraryJob(ctx, lib.ID, lib.Settings.AutoScan); err != nil {
			slog.Warn("library: job reconcile failed", "library", lib.ID.String(), "error", err)
		}
	}
	return nil
}
