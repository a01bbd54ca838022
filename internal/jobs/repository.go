package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles queue_jobs PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new job queue Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const jobColumns = `id, type, payload, status, attempt_count, max_attempts,
	COALESCE(last_error, ''), COALESCE(result_note, ''),
	scheduled_at, started_at, finished_at, created_at, updated_at`

// Insert enqueues a new pending job.
func (r *Repository) Insert(ctx context.Context, job *Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now().UTC()
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	job.Status = StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := r.pool.Exec(ctx,
		`INSERT INTO queue_jobs (id, type, payload, status, attempt_count, max_attempts, scheduled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $7)`,
		job.ID, job.Type, job.Payload, job.Status, job.MaxAttempts, job.ScheduledAt, now)
	if err != nil {
		return fmt.Errorf("inserting job: %w", err)
	}
	return nil
}

// GetByID returns a job, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM queue_jobs WHERE id = $1`, id)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	return job, nil
}

// ClaimDue atomically moves up to limit due pending jobs to processing and
// returns them. The claim and the attempt_count increment happen in the same
// conditional UPDATE, so two workers can never process the same job; SKIP
// LOCKED keeps concurrent workers from serializing on each other's rows.
func (r *Repository) ClaimDue(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE queue_jobs
		 SET status = $1, attempt_count = attempt_count + 1, started_at = NOW(), updated_at = NOW()
		 WHERE id IN (
			SELECT id FROM queue_jobs
			WHERE status = $2 AND scheduled_at <= NOW()
			ORDER BY scheduled_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		StatusProcessing, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming jobs: %w", err)
	}
	defer rows.Close()

	var claimed []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning claimed job: %w", err)
		}
		claimed = append(claimed, job)
	}
	return claimed, rows.Err()
}

// MarkCompleted finishes a job successfully. The note carries partial-failure
// detail (e.g. how many cohort members were skipped) without failing the job.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, note string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE queue_jobs
		 SET status = $1, result_note = $2, finished_at = NOW(), updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		StatusCompleted, note, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	return nil
}

// MarkFailed moves a job to its terminal failed state.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE queue_jobs
		 SET status = $1, last_error = $2, finished_at = NOW(), updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		StatusFailed, lastError, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	return nil
}

// Reschedule returns a processing job to pending for another attempt at runAt.
func (r *Repository) Reschedule(ctx context.Context, id uuid.UUID, lastError string, runAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE queue_jobs
		 SET status = $1, last_error = $2, scheduled_at = $3, started_at = NULL, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		StatusPending, lastError, runAt, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("rescheduling job: %w", err)
	}
	return nil
}

// DeleteCompletedBefore removes completed jobs that finished before cutoff.
// Failed jobs are kept for inspection.
func (r *Repository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM queue_jobs WHERE status = $1 AND finished_at < $2`,
		StatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping completed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListRecent returns the newest jobs for the admin listing, optionally
// filtered by status.
func (r *Repository) ListRecent(ctx context.Context, status string, limit int) ([]*Job, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}

	query := `SELECT ` + jobColumns + ` FROM queue_jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var listed []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		listed = append(listed, job)
	}
	return listed, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	err := row.Scan(&job.ID, &job.Type, &job.Payload, &job.Status,
		&job.AttemptCount, &job.MaxAttempts, &job.LastError, &job.ResultNote,
		&job.ScheduledAt, &job.StartedAt, &job.FinishedAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
