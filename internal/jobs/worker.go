package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/events"
	"github.com/quitforge/aigateway/internal/metrics"
)

// Store is the queue persistence the worker runs against.
type Store interface {
	ClaimDue(ctx context.Context, limit int) ([]*Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, note string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	Reschedule(ctx context.Context, id uuid.UUID, lastError string, runAt time.Time) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HandlerFunc executes one claimed job. The returned note is stored on
// success; a partial failure (some cohort members skipped) is still a
// success with a note, a returned error triggers retry or terminal failure.
type HandlerFunc func(ctx context.Context, job *Job) (note string, err error)

// Worker polls the queue, executes claimed jobs through registered handlers,
// and sweeps old completed jobs.
type Worker struct {
	store    Store
	events   *events.Publisher
	cfg      config.WorkerConfig
	handlers map[string]HandlerFunc
	now      func() time.Time

	retryBase time.Duration
}

// NewWorker creates a job queue worker. Handlers are registered before Run.
func NewWorker(store Store, publisher *events.Publisher, cfg config.WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Worker{
		store:     store,
		events:    publisher,
		cfg:       cfg,
		handlers:  make(map[string]HandlerFunc),
		now:       time.Now,
		retryBase: time.Minute,
	}
}

// Register binds a handler to a job type. Not safe to call after Run.
func (w *Worker) Register(jobType string, h HandlerFunc) {
	w.handlers[jobType] = h
}

// Run blocks until ctx is cancelled, polling for due jobs on cfg.Interval
// and sweeping completed jobs hourly.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("job worker started",
		"interval", w.cfg.Interval,
		"batch_size", w.cfg.BatchSize,
		"retention_days", w.cfg.RetentionDays,
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.ProcessBatch(ctx)
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	}()

	wg.Wait()
	slog.Info("job worker stopped")
}

// ProcessBatch claims and executes one batch of due jobs.
func (w *Worker) ProcessBatch(ctx context.Context) {
	claimed, err := w.store.ClaimDue(ctx, w.cfg.BatchSize)
	if err != nil {
		slog.Error("worker: claiming jobs", "error", err)
		return
	}

	for _, job := range claimed {
		w.execute(ctx, job)
	}
}

func (w *Worker) execute(ctx context.Context, job *Job) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		// No point retrying a type this deployment cannot run.
		w.fail(ctx, job, fmt.Sprintf("no handler registered for type %q", job.Type))
		return
	}

	note, err := handler(ctx, job)
	if err == nil {
		if err := w.store.MarkCompleted(ctx, job.ID, note); err != nil {
			slog.Error("worker: completing job", "error", err, "job_id", job.ID)
			return
		}
		metrics.JobsProcessedTotal.WithLabelValues(job.Type, StatusCompleted).Inc()
		w.events.Job(ctx, events.JobEvent{
			JobID: job.ID, JobType: job.Type, Status: StatusCompleted,
			Attempt: job.AttemptCount, Timestamp: w.now().UTC(),
		})
		slog.Info("worker: job completed",
			"job_id", job.ID, "type", job.Type, "attempt", job.AttemptCount, "note", note)
		return
	}

	if job.AttemptCount >= job.MaxAttempts {
		w.fail(ctx, job, err.Error())
		return
	}

	runAt := w.now().UTC().Add(w.backoff(job.AttemptCount))
	if err := w.store.Reschedule(ctx, job.ID, err.Error(), runAt); err != nil {
		slog.Error("worker: rescheduling job", "error", err, "job_id", job.ID)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.Type, "retried").Inc()
	slog.Warn("worker: job attempt failed, rescheduled",
		"job_id", job.ID, "type", job.Type,
		"attempt", job.AttemptCount, "max_attempts", job.MaxAttempts,
		"next_run", runAt, "error", err)
}

func (w *Worker) fail(ctx context.Context, job *Job, lastError string) {
	if err := w.store.MarkFailed(ctx, job.ID, lastError); err != nil {
		slog.Error("worker: failing job", "error", err, "job_id", job.ID)
		return
	}
	metrics.JobsProcessedTotal.WithLabelValues(job.Type, StatusFailed).Inc()
	w.events.Job(ctx, events.JobEvent{
		JobID: job.ID, JobType: job.Type, Status: StatusFailed,
		Attempt: job.AttemptCount, Error: lastError, Timestamp: w.now().UTC(),
	})
	slog.Error("worker: job failed permanently",
		"job_id", job.ID, "type", job.Type, "attempt", job.AttemptCount, "error", lastError)
}

// backoff doubles per attempt: 1m, 2m, 4m, ...
func (w *Worker) backoff(attempt int) time.Duration {
	d := w.retryBase
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Sweep deletes completed jobs older than the retention window.
func (w *Worker) Sweep(ctx context.Context) {
	if w.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := w.now().UTC().AddDate(0, 0, -w.cfg.RetentionDays)
	deleted, err := w.store.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("worker: sweeping completed jobs", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("worker: swept completed jobs", "deleted", deleted, "cutoff", cutoff)
	}
}
