// Package scheduler owns cron-registered recurring jobs: run history,
// pause/resume, and the auto-job-per-library materialization contract.
package scheduler

import (
	"time"

	"github.com/antti/imagevault/internal/collections"
)

// RunStatus is a ScheduledJobRun's terminal or in-flight state.
type RunStatus string

const (
	RunRunning   RunStatus = "Running"
	RunSucceeded RunStatus = "Succeeded"
	RunFailed    RunStatus = "Failed"
)

// Job is a persisted, cron-registered recurring job.
type Job struct {
	ID               collections.ID
	JobType          string
	CronExpression   string
	Parameters       map[string]any
	IsEnabled        bool
	RunCount         int
	SuccessCount     int
	FailureCount     int
	LastRunAt        *time.Time
	LastRunStatus    RunStatus
	LastRunDuration  time.Duration
	LastErrorMessage string
	NextRunAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Run is one execution of a Job, appended on every Run(jobId).
type Run struct {
	ID           collections.ID
	JobID        collections.ID
	Status       RunStatus
	StartedAt    time.Time
	Duration     time.Duration
	ErrorMessage string
	Summary      map[string]any
	CreatedAt    time.Time
}

// CreateSpec is the input to Create.
type CreateSpec struct {
	JobType        string
	CronExpression string
	Parameters     map[string]any
	IsEnabled      bool
}

// Patch carries the fields Update may change. Nil fields are untouched.
type Patch struct {
	CronExpression *string
	Parameters     map[string]any
	IsEnabled      *bool
}

// LibraryScanJobType is the jobType Run dispatches to
// orchestrator.HandleLibraryScan's publish path.
const LibraryScanJobType = "library-scan"

// IndexRebuildJobType rebuilds the navigation index from the collection
// store, reconciling any incremental upserts that failed to reach it.
const IndexRebuildJobType = "index-rebuild"

// DefaultLibraryScanCron is the cron a library's autoScan=true job is
// materialized with.
const DefaultLibraryScanCron = "0 2 * * *"
