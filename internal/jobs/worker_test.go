package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitforge/aigateway/internal/budget"
	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/gateway"
)

type memStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
	now  func() time.Time
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[uuid.UUID]*Job), now: time.Now}
}

func (m *memStore) add(job *Job) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 3
	}
	m.jobs[job.ID] = job
	return job
}

func (m *memStore) get(id uuid.UUID) Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memStore) ClaimDue(_ context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*Job
	now := m.now()
	for _, j := range m.jobs {
		if j.Status == StatusPending && !j.ScheduledAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ScheduledAt.Before(due[k].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]*Job, 0, len(due))
	for _, j := range due {
		j.Status = StatusProcessing
		j.AttemptCount++
		started := now
		j.StartedAt = &started
		copied := *j
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (m *memStore) MarkCompleted(_ context.Context, id uuid.UUID, note string) error {
	return m.finish(id, StatusCompleted, "", note)
}

func (m *memStore) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	return m.finish(id, StatusFailed, lastError, "")
}

func (m *memStore) finish(id uuid.UUID, status, lastError, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return fmt.Errorf("job %s not processing", id)
	}
	j.Status = status
	j.LastError = lastError
	j.ResultNote = note
	finished := m.now()
	j.FinishedAt = &finished
	return nil
}

func (m *memStore) Reschedule(_ context.Context, id uuid.UUID, lastError string, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != StatusProcessing {
		return fmt.Errorf("job %s not processing", id)
	}
	j.Status = StatusPending
	j.LastError = lastError
	j.ScheduledAt = runAt
	j.StartedAt = nil
	return nil
}

func (m *memStore) DeleteCompletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, j := range m.jobs {
		if j.Status == StatusCompleted && j.FinishedAt != nil && j.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func newTestWorker(store Store) *Worker {
	return NewWorker(store, nil, config.WorkerConfig{
		Interval:      time.Second,
		BatchSize:     10,
		MaxAttempts:   3,
		RetentionDays: 7,
	})
}

func TestProcessBatch_Success(t *testing.T) {
	store := newMemStore()
	job := store.add(&Job{Type: "echo", ScheduledAt: time.Now().Add(-time.Minute)})

	w := newTestWorker(store)
	w.Register("echo", func(context.Context, *Job) (string, error) {
		return "done", nil
	})

	w.ProcessBatch(context.Background())

	got := store.get(job.ID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "done", got.ResultNote)
	assert.Equal(t, 1, got.AttemptCount)
	assert.NotNil(t, got.FinishedAt)
}

func TestProcessBatch_UnknownTypeFailsPermanently(t *testing.T) {
	store := newMemStore()
	job := store.add(&Job{Type: "telepathy", ScheduledAt: time.Now().Add(-time.Minute)})

	w := newTestWorker(store)
	w.ProcessBatch(context.Background())

	got := store.get(job.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "no handler registered")
	assert.Equal(t, 1, got.AttemptCount, "unknown types must not burn retries")
}

func TestProcessBatch_RetryThenFail(t *testing.T) {
	store := newMemStore()
	job := store.add(&Job{Type: "flaky", MaxAttempts: 3, ScheduledAt: time.Now().Add(-time.Minute)})

	w := newTestWorker(store)
	w.Register("flaky", func(context.Context, *Job) (string, error) {
		return "", errors.New("upstream down")
	})

	clock := time.Now()
	w.now = func() time.Time { return clock }
	store.now = func() time.Time { return clock }

	// First attempt: rescheduled with 1m backoff.
	w.ProcessBatch(context.Background())
	got := store.get(job.ID)
	require.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "upstream down", got.LastError)
	assert.WithinDuration(t, clock.Add(time.Minute), got.ScheduledAt, time.Second)

	// Not due yet, nothing claimed.
	clock = clock.Add(30 * time.Second)
	w.ProcessBatch(context.Background())
	assert.Equal(t, 1, store.get(job.ID).AttemptCount)

	// Second attempt: 2m backoff.
	clock = clock.Add(time.Minute)
	w.ProcessBatch(context.Background())
	got = store.get(job.ID)
	require.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
	assert.WithinDuration(t, clock.Add(2*time.Minute), got.ScheduledAt, time.Second)

	// Third attempt exhausts max_attempts.
	clock = clock.Add(3 * time.Minute)
	w.ProcessBatch(context.Background())
	got = store.get(job.ID)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 3, got.AttemptCount)
	assert.Equal(t, "upstream down", got.LastError)
}

func TestProcessBatch_ClaimRespectsBatchSize(t *testing.T) {
	store := newMemStore()
	for i := 0; i < 5; i++ {
		store.add(&Job{Type: "echo", ScheduledAt: time.Now().Add(-time.Minute)})
	}

	w := NewWorker(store, nil, config.WorkerConfig{Interval: time.Second, BatchSize: 2, RetentionDays: 7})
	var handled int
	w.Register("echo", func(context.Context, *Job) (string, error) {
		handled++
		return "", nil
	})

	w.ProcessBatch(context.Background())
	assert.Equal(t, 2, handled)
}

func TestSweep_RemovesOldCompletedOnly(t *testing.T) {
	store := newMemStore()
	old := time.Now().AddDate(0, 0, -10)
	recent := time.Now().AddDate(0, 0, -1)

	oldCompleted := store.add(&Job{Type: "echo", Status: StatusCompleted, FinishedAt: &old})
	recentCompleted := store.add(&Job{Type: "echo", Status: StatusCompleted, FinishedAt: &recent})
	oldFailed := store.add(&Job{Type: "echo", Status: StatusFailed, FinishedAt: &old})
	pending := store.add(&Job{Type: "echo", Status: StatusPending, ScheduledAt: time.Now().Add(time.Hour)})

	w := newTestWorker(store)
	w.Sweep(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotContains(t, store.jobs, oldCompleted.ID)
	assert.Contains(t, store.jobs, recentCompleted.ID)
	assert.Contains(t, store.jobs, oldFailed.ID, "failed jobs are kept for inspection")
	assert.Contains(t, store.jobs, pending.ID)
}

type fakeGenerator struct {
	mu      sync.Mutex
	failIDs map[uuid.UUID]bool
	calls   int
}

func (f *fakeGenerator) Generate(_ context.Context, userID uuid.UUID, _ budget.Tier, _ string, _ gateway.Descriptor) (gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failIDs[userID] {
		return gateway.Result{}, errors.New("generation failed")
	}
	return gateway.Result{Text: "personalized"}, nil
}

func cohortJob(t *testing.T, payload CohortPayload) *Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &Job{ID: uuid.New(), Type: TypeCohortPersonalization, Payload: raw, AttemptCount: 1, MaxAttempts: 3}
}

func TestCohortHandler_PartialFailureCompletesWithNote(t *testing.T) {
	members := make([]CohortMember, 50)
	gen := &fakeGenerator{failIDs: make(map[uuid.UUID]bool)}
	for i := range members {
		members[i] = CohortMember{UserID: uuid.New(), Tier: "free"}
		if i < 3 {
			gen.failIDs[members[i].UserID] = true
		}
	}

	h := NewCohortHandler(gen)
	note, err := h(context.Background(), cohortJob(t, CohortPayload{
		Members: members, Feature: "level_feedback", Category: "habit", Prompt: "weekly recap",
	}))
	require.NoError(t, err, "individual member failures must not fail the batch")
	assert.Equal(t, "3/50 members failed", note)
	assert.Equal(t, 50, gen.calls, "every member is attempted")
}

func TestCohortHandler_AllMembersFailing(t *testing.T) {
	gen := &fakeGenerator{failIDs: make(map[uuid.UUID]bool)}
	members := make([]CohortMember, 4)
	for i := range members {
		members[i] = CohortMember{UserID: uuid.New(), Tier: "free"}
		gen.failIDs[members[i].UserID] = true
	}

	h := NewCohortHandler(gen)
	_, err := h(context.Background(), cohortJob(t, CohortPayload{
		Members: members, Feature: "level_feedback", Prompt: "weekly recap",
	}))
	assert.Error(t, err, "a fully failed cohort should go through the retry path")
}

func TestCohortHandler_BadPayload(t *testing.T) {
	h := NewCohortHandler(&fakeGenerator{})
	_, err := h(context.Background(), &Job{Type: TypeCohortPersonalization, Payload: json.RawMessage(`{"members":[]}`)})
	assert.Error(t, err)
}

func TestWarmupHandler_WarmsPrompts(t *testing.T) {
	gen := &fakeGenerator{}
	h := NewWarmupHandler(gen)

	raw, err := json.Marshal(WarmupPayload{
		Feature: "battle_commentary",
		Prompts: []WarmupPrompt{
			{Prompt: "opening taunt", Category: "battle", Tier: "free"},
			{Prompt: "victory line", Category: "battle", Tier: "free"},
		},
	})
	require.NoError(t, err)

	note, err := h(context.Background(), &Job{ID: uuid.New(), Type: TypeCacheWarmup, Payload: raw})
	require.NoError(t, err)
	assert.Equal(t, "2 prompts warmed", note)
	assert.Equal(t, 2, gen.calls)
}
