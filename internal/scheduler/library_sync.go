package scheduler

import (
	"context"

	"github.com/antti/imagevault/internal/collections"
)

// SyncLibraryJob materializes or toggles the single library-scan job
// tied to a library's settings.autoScan flag, per the
// library-linked jobs contract: creating a library with autoScan=true
// materializes a job with cron DefaultLibraryScanCron and
// parameters {libraryId}; toggling autoScan enables/disables the paired
// job without creating a duplicate.
func (s *Scheduler) SyncLibraryJob(ctx context.Context, libraryID collections.ID, autoScan bool) error {
	return s.SyncLibraryJobWithCron(ctx, libraryID, autoScan, DefaultLibraryScanCron)
}

// SyncLibraryJobWithCron is SyncLibraryJob with the cron expression a newly
// materialized job is created with, so callers can source it from
// config.Config.AutoScanCron instead of the hardcoded default.
func (s *Scheduler) SyncLibraryJobWithCron(ctx context.Context, libraryID collections.ID, autoScan bool, cronExpression string) error {
	job, found, err := s.repo.FindByLibraryJob(ctx, libraryID)
	if err != nil {
		return err
	}

	if !found {
		if !autoScan {
			return nil
		}
		_, err := s.CreateJob(ctx, CreateSpec{
			JobType:        LibraryScanJobType,
			CronExpression: cronExpression,
			Parameters:     map[string]any{"libraryId": libraryID.String()},
			IsEnabled:      true,
		})
		return err
	}

	if job.IsEnabled == autoScan {
		return nil
	}
	if autoScan {
		return s.Enable(ctx, job.ID)
	}
	return s.Disable(ctx, job.ID)
}

// DeleteLibraryJob removes a library's paired job, if one exists, per
// the "deleting the library deletes its job" contract.
func (s *Scheduler) DeleteLibraryJob(ctx context.Context, libraryID collections.ID) error {
	job, found, err := s.repo.FindByLibraryJob(ctx, libraryID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return s.DeleteJob(ctx, job.ID)
}
