package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/scheduler"
	"github.com/antti/imagevault/internal/shared"
)

// ScheduledJobStore implements scheduler.Repository on top of the
// scheduled_jobs/scheduled_job_runs tables, mirroring CollectionStore's
// jsonb-columned-aggregate shape: Parameters and a run's Summary are
// jsonb columns rather than normalized child tables.
type ScheduledJobStore struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

// NewScheduledJobStore returns a Repository backed by pool.
func NewScheduledJobStore(pool *pgxpool.Pool) *ScheduledJobStore {
	return &ScheduledJobStore{pool: pool, tx: NewTxManager(pool)}
}

const scheduledJobColumns = `id, job_type, cron_expression, parameters, is_enabled,
	run_count, success_count, failure_count, last_run_at, last_run_status,
	last_run_duration_ms, last_error_message, next_run_at, created_at, updated_at`

func scanScheduledJobRow(row pgx.Row) (scheduler.Job, error) {
	var (
		idStr           string
		j               scheduler.Job
		paramsJS        []byte
		lastRunStatus   *string
		lastRunDuration *int64
	)
	err := row.Scan(&idStr, &j.JobType, &j.CronExpression, &paramsJS, &j.IsEnabled,
		&j.RunCount, &j.SuccessCount, &j.FailureCount, &j.LastRunAt, &lastRunStatus,
		&lastRunDuration, &j.LastErrorMessage, &j.NextRunAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return scheduler.Job{}, err
	}
	id, err := collections.ParseID(idStr)
	if err != nil {
		return scheduler.Job{}, err
	}
	j.ID = id
	if err := json.Unmarshal(paramsJS, &j.Parameters); err != nil {
		return scheduler.Job{}, err
	}
	if lastRunStatus != nil {
		j.LastRunStatus = scheduler.RunStatus(*lastRunStatus)
	}
	if lastRunDuration != nil {
		j.LastRunDuration = time.Duration(*lastRunDuration) * time.Millisecond
	}
	return j, nil
}

func (s *ScheduledJobStore) Create(ctx context.Context, spec scheduler.CreateSpec) (scheduler.Job, error) {
	db := GetDBTX(ctx, s.pool)

	id := collections.NewID()
	now := time.Now().UTC()
	params := spec.Parameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJS, err := json.Marshal(params)
	if err != nil {
		return scheduler.Job{}, shared.NewValidationError("parameters", "marshal parameters: "+err.Error())
	}

	_, err = db.Exec(ctx, `
		INSERT INTO scheduled_jobs (id, job_type, cron_expression, parameters, is_enabled,
			run_count, success_count, failure_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6, $6)
	`, id.String(), spec.JobType, spec.CronExpression, paramsJS, spec.IsEnabled, now)
	if err != nil {
		return scheduler.Job{}, shared.NewTransientError(err, "insert scheduled job")
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return scheduler.Job{}, err
	}
	if !ok {
		return scheduler.Job{}, shared.NewTransientError(fmt.Errorf("scheduled job %s vanished after insert", id), "get scheduled job")
	}
	return job, nil
}

func (s *ScheduledJobStore) Get(ctx context.Context, id collections.ID) (scheduler.Job, bool, error) {
	db := GetDBTX(ctx, s.pool)
	row := db.QueryRow(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE id = $1`, id.String())
	j, err := scanScheduledJobRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduler.Job{}, false, nil
	}
	if err != nil {
		return scheduler.Job{}, false, shared.NewTransientError(err, "get scheduled job")
	}
	return j, true, nil
}

func (s *ScheduledJobStore) Update(ctx context.Context, id collections.ID, patch scheduler.Patch) (scheduler.Job, error) {
	db := GetDBTX(ctx, s.pool)
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if patch.CronExpression != nil {
		sets = append(sets, "cron_expression = "+next(*patch.CronExpression))
	}
	if patch.Parameters != nil {
		paramsJS, err := json.Marshal(patch.Parameters)
		if err != nil {
			return scheduler.Job{}, shared.NewValidationError("parameters", "marshal parameters: "+err.Error())
		}
		sets = append(sets, "parameters = "+next(paramsJS))
	}
	if patch.IsEnabled != nil {
		sets = append(sets, "is_enabled = "+next(*patch.IsEnabled))
	}
	args = append(args, id.String())
	query := fmt.Sprintf("UPDATE scheduled_jobs SET %s WHERE id = $%d", joinComma(sets), len(args))

	tag, err := db.Exec(ctx, query, args...)
	if err != nil {
		return scheduler.Job{}, shared.NewTransientError(err, "update scheduled job")
	}
	if tag.RowsAffected() == 0 {
		return scheduler.Job{}, shared.NewNotFoundError("scheduled job " + id.String() + " not found")
	}

	job, ok, err := s.Get(ctx, id)
	if err != nil {
		return scheduler.Job{}, err
	}
	if !ok {
		return scheduler.Job{}, shared.NewNotFoundError("scheduled job " + id.String() + " not found")
	}
	return job, nil
}

func (s *ScheduledJobStore) Delete(ctx context.Context, id collections.ID) error {
	db := GetDBTX(ctx, s.pool)
	tag, err := db.Exec(ctx, `DELETE FROM scheduled_jobs WHERE id = $1`, id.String())
	if err != nil {
		return shared.NewTransientError(err, "delete scheduled job")
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("scheduled job " + id.String() + " not found")
	}
	return nil
}

func (s *ScheduledJobStore) List(ctx context.Context) ([]scheduler.Job, error) {
	return s.query(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs ORDER BY created_at ASC`)
}

func (s *ScheduledJobStore) ListEnabled(ctx context.Context) ([]scheduler.Job, error) {
	return s.query(ctx, `SELECT `+scheduledJobColumns+` FROM scheduled_jobs WHERE is_enabled = true ORDER BY created_at ASC`)
}

func (s *ScheduledJobStore) FindByLibraryJob(ctx context.Context, libraryID collections.ID) (scheduler.Job, bool, error) {
	db := GetDBTX(ctx, s.pool)
	row := db.QueryRow(ctx, `
		SELECT `+scheduledJobColumns+` FROM scheduled_jobs
		WHERE job_type = $1 AND parameters->>'libraryId' = $2
		LIMIT 1
	`, scheduler.LibraryScanJobType, libraryID.String())
	j, err := scanScheduledJobRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scheduler.Job{}, false, nil
	}
	if err != nil {
		return scheduler.Job{}, false, shared.NewTransientError(err, "find library scheduled job")
	}
	return j, true, nil
}

func (s *ScheduledJobStore) query(ctx context.Context, sql string, args ...any) ([]scheduler.Job, error) {
	db := GetDBTX(ctx, s.pool)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, shared.NewTransientError(err, "list scheduled jobs")
	}
	defer rows.Close()

	var out []scheduler.Job
	for rows.Next() {
		j, err := scanScheduledJobRow(rows)
		if err != nil {
			return nil, shared.NewTransientError(err, "scan scheduled job row")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewTransientError(err, "iterate scheduled jobs")
	}
	return out, nil
}

// RecordRun appends a scheduled_job_runs row and updates the parent
// job's counters/lastRun*/nextRunAt inside one transaction, so a crash
// between the two writes never leaves history and rollup out of sync.
func (s *ScheduledJobStore) RecordRun(ctx context.Context, jobID collections.ID, run scheduler.Run, nextRunAt *time.Time) error {
	if run.ID.IsZero() {
		run.ID = collections.NewID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	summaryJS, err := json.Marshal(run.Summary)
	if err != nil {
		return shared.NewValidationError("summary", "marshal run summary: "+err.Error())
	}

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		db := GetDBTX(ctx, s.pool)

		_, err := db.Exec(ctx, `
			INSERT INTO scheduled_job_runs (id, job_id, status, started_at, duration_ms, error_message, summary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, run.ID.String(), jobID.String(), string(run.Status), run.StartedAt,
			run.Duration.Milliseconds(), nullableString(run.ErrorMessage), summaryJS, run.CreatedAt)
		if err != nil {
			return shared.NewTransientError(err, "insert scheduled job run")
		}

		successDelta, failureDelta := 0, 0
		switch run.Status {
		case scheduler.RunSucceeded:
			successDelta = 1
		case scheduler.RunFailed:
			failureDelta = 1
		}

		_, err = db.Exec(ctx, `
			UPDATE scheduled_jobs SET
				run_count = run_count + 1,
				success_count = success_count + $1,
				failure_count = failure_count + $2,
				last_run_at = $3,
				last_run_status = $4,
				last_run_duration_ms = $5,
				last_error_message = $6,
				next_run_at = $7,
				updated_at = $8
			WHERE id = $9
		`, successDelta, failureDelta, run.StartedAt, string(run.Status), run.Duration.Milliseconds(),
			nullableString(run.ErrorMessage), nextRunAt, time.Now().UTC(), jobID.String())
		if err != nil {
			return shared.NewTransientError(err, "update scheduled job rollup")
		}
		return nil
	})
}

// ListRuns returns a job's most recent runs, newest first.
func (s *ScheduledJobStore) ListRuns(ctx context.Context, jobID collections.ID, limit int) ([]scheduler.Run, error) {
	db := GetDBTX(ctx, s.pool)
	rows, err := db.Query(ctx, `
		SELECT id, job_id, status, started_at, duration_ms, error_message, summary, created_at
		FROM scheduled_job_runs WHERE job_id = $1 ORDER BY started_at DESC LIMIT $2
	`, jobID.String(), limit)
	if err != nil {
		return nil, shared.NewTransientError(err, "list scheduled job runs")
	}
	defer rows.Close()

	var out []scheduler.Run
	for rows.Next() {
		var (
			idStr, jobIDStr string
			r               scheduler.Run
			status          string
			durationMs      int64
			errMsg          *string
			summaryJS       []byte
		)
		if err := rows.Scan(&idStr, &jobIDStr, &status, &r.StartedAt, &durationMs, &errMsg, &summaryJS, &r.CreatedAt); err != nil {
			return nil, shared.NewTransientError(err, "scan scheduled job run row")
		}
		id, err := collections.ParseID(idStr)
		if err != nil {
			return nil, err
		}
		jid, err := collections.ParseID(jobIDStr)
		if err != nil {
			return nil, err
		}
		r.ID = id
		r.JobID = jid
		r.Status = scheduler.RunStatus(status)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		if errMsg != nil {
			r.ErrorMessage = *errMsg
		}
		if len(summaryJS) > 0 {
			if err := json.Unmarshal(summaryJS, &r.Summary); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.NewTransientError(err, "iterate scheduled job runs")
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
