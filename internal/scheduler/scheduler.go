package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/shared"
)

// taskTypeRun is the single asynq task type both the cron-driven
// registrations and Trigger enqueue; its payload just names the job,
// and the actual jobType-specific work happens inside Run via the
// handler registry.
const taskTypeRun = "scheduler.run"

type runTaskPayload struct {
	JobID string `json:"jobId"`
}

// Handler executes one Job and returns a JSON-able summary for the run
// history. Returning an error marks the run Failed.
type Handler func(ctx context.Context, job Job) (map[string]any, error)

// Config is a Redis address plus the weighted queue set
// asynq.Server.Config expects.
type Config struct {
	RedisAddr string
	Queue     string
	Queues    map[string]int
}

// DefaultConfig returns a single-queue configuration for the scheduler
// process's own "run this job" tasks.
func DefaultConfig(redisAddr string) Config {
	return Config{
		RedisAddr: redisAddr,
		Queue:     "scheduler",
		Queues:    map[string]int{"scheduler": 1},
	}
}

// Scheduler registers Jobs with an asynq cron scheduler and dispatches
// their execution to jobType-specific handlers, persisting run history
// via Repository.
type Scheduler struct {
	client     *asynq.Client
	asynq      *asynq.Scheduler
	server     *asynq.Server
	repo       Repository
	config     Config
	cronParser cron.Parser

	mu       sync.Mutex
	handlers map[string]Handler
	entries  map[string]string // job id (hex) -> asynq scheduler entry id
}

// New builds a Scheduler backed by repo, not yet started.
func New(repo Repository, config Config) *Scheduler {
	redisOpt := asynq.RedisClientOpt{Addr: config.RedisAddr}
	return &Scheduler{
		client: asynq.NewClient(redisOpt),
		asynq:  asynq.NewScheduler(redisOpt, nil),
		server: asynq.NewServer(redisOpt, asynq.Config{
			Queues:      config.Queues,
			Concurrency: 4,
		}),
		repo:       repo,
		config:     config,
		cronParser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		handlers:   make(map[string]Handler),
		entries:    make(map[string]string),
	}
}

// RegisterHandler binds a jobType to the handler Run dispatches to.
func (s *Scheduler) RegisterHandler(jobType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = h
}

// Start loads every enabled job from Repository, registers it with the
// cron engine, and starts both the asynq scheduler and the small worker
// server that executes "scheduler.run" tasks.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.repo.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list enabled jobs: %w", err)
	}
	for _, job := range jobs {
		if err := s.register(job); err != nil {
			slog.Error("scheduler: failed to register job on startup", "job", job.ID.String(), "error", err)
		}
	}

	if err := s.asynq.Start(); err != nil {
		return fmt.Errorf("scheduler: start cron engine: %w", err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeRun, s.handleRunTask)
	if err := s.server.Start(mux); err != nil {
		return fmt.Errorf("scheduler: start worker server: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the cron engine, worker server, and client.
func (s *Scheduler) Stop() {
	s.asynq.Shutdown()
	s.server.Shutdown()
	s.client.Close()
}

func (s *Scheduler) register(job Job) error {
	task := asynq.NewTask(taskTypeRun, mustMarshal(runTaskPayload{JobID: job.ID.String()}))
	entryID, err := s.asynq.Register(job.CronExpression, task, asynq.Queue(s.config.Queue))
	if err != nil {
		return fmt.Errorf("register cron entry for job %s: %w", job.ID.String(), err)
	}
	s.mu.Lock()
	s.entries[job.ID.String()] = entryID
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) unregister(jobID collections.ID) {
	s.mu.Lock()
	entryID, ok := s.entries[jobID.String()]
	delete(s.entries, jobID.String())
	s.mu.Unlock()
	if ok {
		if err := s.asynq.Unregister(entryID); err != nil {
			slog.Warn("scheduler: failed to unregister cron entry", "job", jobID.String(), "error", err)
		}
	}
}

// CreateJob persists a new Job and, if enabled, registers it immediately.
func (s *Scheduler) CreateJob(ctx context.Context, spec CreateSpec) (Job, error) {
	job, err := s.repo.Create(ctx, spec)
	if err != nil {
		return Job{}, err
	}
	if job.IsEnabled {
		if err := s.register(job); err != nil {
			slog.Error("scheduler: failed to register new job", "job", job.ID.String(), "error", err)
		}
	}
	return job, nil
}

// UpdateJob persists the patch and re-registers the job so a changed
// cron expression or enabled flag takes effect immediately.
func (s *Scheduler) UpdateJob(ctx context.Context, id collections.ID, patch Patch) (Job, error) {
	job, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return Job{}, err
	}
	s.unregister(id)
	if job.IsEnabled {
		if err := s.register(job); err != nil {
			slog.Error("scheduler: failed to re-register updated job", "job", job.ID.String(), "error", err)
		}
	}
	return job, nil
}

// DeleteJob unregisters and permanently deletes a job and its history.
func (s *Scheduler) DeleteJob(ctx context.Context, id collections.ID) error {
	s.unregister(id)
	return s.repo.Delete(ctx, id)
}

// Enable resumes a paused job without losing its run history.
func (s *Scheduler) Enable(ctx context.Context, id collections.ID) error {
	enabled := true
	_, err := s.UpdateJob(ctx, id, Patch{IsEnabled: &enabled})
	return err
}

// Disable pauses a job without deleting it or its history.
func (s *Scheduler) Disable(ctx context.Context, id collections.ID) error {
	disabled := false
	_, err := s.UpdateJob(ctx, id, Patch{IsEnabled: &disabled})
	return err
}

// Trigger enqueues an immediate, out-of-band run of jobId.
func (s *Scheduler) Trigger(ctx context.Context, id collections.ID) error {
	task := asynq.NewTask(taskTypeRun, mustMarshal(runTaskPayload{JobID: id.String()}))
	_, err := s.client.EnqueueContext(ctx, task, asynq.Queue(s.config.Queue))
	if err != nil {
		return shared.NewTransientError(err, "enqueue trigger for job "+id.String())
	}
	return nil
}

func (s *Scheduler) handleRunTask(ctx context.Context, t *asynq.Task) error {
	var p runTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return shared.NewValidationError("payload", "unmarshal scheduler.run payload: "+err.Error())
	}
	id, err := collections.ParseID(p.JobID)
	if err != nil {
		return shared.NewValidationError("jobId", "invalid jobId: "+err.Error())
	}
	return s.Run(ctx, id)
}

// Run executes jobId's handler, then appends a Run and updates the
// parent Job's counters/lastRun*/nextRunAt in one Repository call.
func (s *Scheduler) Run(ctx context.Context, id collections.ID) error {
	job, ok, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NewNotFoundError("scheduled job " + id.String() + " not found")
	}

	s.mu.Lock()
	handler, found := s.handlers[job.JobType]
	s.mu.Unlock()
	if !found {
		return shared.NewValidationError("jobType", "no handler registered for jobType "+job.JobType)
	}

	started := time.Now().UTC()
	summary, runErr := handler(ctx, job)
	duration := time.Since(started)

	status := RunSucceeded
	errMsg := ""
	if runErr != nil {
		status = RunFailed
		errMsg = runErr.Error()
	}

	next := s.nextRunAt(job.CronExpression, time.Now())
	run := Run{
		ID:           collections.NewID(),
		JobID:        job.ID,
		Status:       status,
		StartedAt:    started,
		Duration:     duration,
		ErrorMessage: errMsg,
		Summary:      summary,
		CreatedAt:    time.Now().UTC(),
	}
	if recordErr := s.repo.RecordRun(ctx, job.ID, run, next); recordErr != nil {
		slog.Error("scheduler: failed to record run", "job", job.ID.String(), "error", recordErr)
	}

	return runErr
}

func (s *Scheduler) nextRunAt(cronExpression string, from time.Time) *time.Time {
	schedule, err := s.cronParser.Parse(cronExpression)
	if err != nil {
		slog.Warn("scheduler: cannot compute nextRunAt for invalid cron", "cron", cronExpression, "error", err)
		return nil
	}
	next := schedule.Next(from)
	return &next
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
