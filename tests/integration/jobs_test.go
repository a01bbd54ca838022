//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitforge/aigateway/internal/jobs"
)

func cohortBody(n int) map[string]any {
	members := make([]map[string]any, n)
	for i := range members {
		members[i] = map[string]any{"user_id": uuid.New().String(), "tier": "free"}
	}
	return map[string]any{
		"type": "cohort_personalization",
		"payload": map[string]any{
			"members":  members,
			"feature":  "level_feedback",
			"category": "habit",
			"prompt":   "monthly cohort recap",
		},
	}
}

func TestJobLifecycle_EnqueueProcessFetch(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	resp := DoRequest(t, env, "POST", "/api/v1/jobs", cohortBody(3))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := ParseResponse(t, resp)["data"].(map[string]any)
	jobID := created["id"].(string)
	assert.Equal(t, "pending", created["status"])

	// Drive one worker cycle instead of waiting on the ticker.
	env.Worker.ProcessBatch(ctx)

	resp = DoRequest(t, env, "GET", "/api/v1/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, "completed", fetched["status"])
	assert.Equal(t, 1.0, fetched["attempt_count"])
	assert.Contains(t, fetched["result_note"], "3 members personalized")
}

func TestJobEnqueue_RejectsUnknownType(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/jobs", map[string]any{
		"type":    "world_domination",
		"payload": map[string]any{},
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClaimDue_NoDoubleClaim(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	payload, _ := json.Marshal(jobs.CohortPayload{
		Members: []jobs.CohortMember{{UserID: uuid.New(), Tier: "free"}},
		Feature: "level_feedback",
		Prompt:  "claim race probe",
	})

	var inserted []uuid.UUID
	for i := 0; i < 5; i++ {
		job := &jobs.Job{Type: jobs.TypeCohortPersonalization, Payload: payload, MaxAttempts: 3}
		require.NoError(t, env.JobRepo.Insert(ctx, job))
		inserted = append(inserted, job.ID)
	}

	// Two concurrent claimers must partition the pending set.
	var wg sync.WaitGroup
	claims := make([][]*jobs.Job, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claimed, err := env.JobRepo.ClaimDue(ctx, 10)
			require.NoError(t, err)
			claims[i] = claimed
		}(i)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]int)
	for _, c := range claims {
		for _, job := range c {
			seen[job.ID]++
			assert.Equal(t, jobs.StatusProcessing, job.Status)
			assert.Equal(t, 1, job.AttemptCount)
		}
	}
	for _, id := range inserted {
		assert.Equal(t, 1, seen[id], "job %s claimed exactly once", id)
	}

	// Unblock other tests: finish what we claimed.
	for _, c := range claims {
		for _, job := range c {
			require.NoError(t, env.JobRepo.MarkCompleted(ctx, job.ID, ""))
		}
	}
}

func TestReschedule_MakesJobDueAgain(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	payload, _ := json.Marshal(jobs.CohortPayload{
		Members: []jobs.CohortMember{{UserID: uuid.New(), Tier: "free"}},
		Feature: "level_feedback",
		Prompt:  "retry probe",
	})
	job := &jobs.Job{Type: jobs.TypeCohortPersonalization, Payload: payload, MaxAttempts: 3}
	require.NoError(t, env.JobRepo.Insert(ctx, job))

	claimed, err := env.JobRepo.ClaimDue(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, claimed)

	var ours *jobs.Job
	for _, c := range claimed {
		if c.ID == job.ID {
			ours = c
			continue
		}
		require.NoError(t, env.JobRepo.MarkCompleted(ctx, c.ID, ""))
	}
	require.NotNil(t, ours)

	// Back to pending, due in the past, so the next claim picks it up.
	require.NoError(t, env.JobRepo.Reschedule(ctx, job.ID, "transient", time.Now().Add(-time.Second)))

	got, err := env.JobRepo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, got.Status)
	assert.Equal(t, "transient", got.LastError)

	reclaimed, err := env.JobRepo.ClaimDue(ctx, 100)
	require.NoError(t, err)
	found := false
	for _, c := range reclaimed {
		if c.ID == job.ID {
			found = true
			assert.Equal(t, 2, c.AttemptCount)
		}
		require.NoError(t, env.JobRepo.MarkCompleted(ctx, c.ID, ""))
	}
	assert.True(t, found)
}

func TestDeleteCompletedBefore_SparesFailedJobs(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	payload, _ := json.Marshal(jobs.WarmupPayload{
		Feature: "battle_commentary",
		Prompts: []jobs.WarmupPrompt{{Prompt: "retention probe", Tier: "free"}},
	})

	completed := &jobs.Job{Type: jobs.TypeCacheWarmup, Payload: payload, MaxAttempts: 1}
	failed := &jobs.Job{Type: jobs.TypeCacheWarmup, Payload: payload, MaxAttempts: 1}
	require.NoError(t, env.JobRepo.Insert(ctx, completed))
	require.NoError(t, env.JobRepo.Insert(ctx, failed))

	claimed, err := env.JobRepo.ClaimDue(ctx, 100)
	require.NoError(t, err)
	for _, c := range claimed {
		switch c.ID {
		case completed.ID:
			require.NoError(t, env.JobRepo.MarkCompleted(ctx, c.ID, "done"))
		case failed.ID:
			require.NoError(t, env.JobRepo.MarkFailed(ctx, c.ID, "boom"))
		default:
			require.NoError(t, env.JobRepo.MarkCompleted(ctx, c.ID, ""))
		}
	}

	// Backdate finished_at past the retention window.
	_, err = env.Pool.Exec(ctx,
		`UPDATE queue_jobs SET finished_at = NOW() - INTERVAL '30 days' WHERE id = ANY($1)`,
		[]uuid.UUID{completed.ID, failed.ID})
	require.NoError(t, err)

	deleted, err := env.JobRepo.DeleteCompletedBefore(ctx, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	gone, err := env.JobRepo.GetByID(ctx, completed.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := env.JobRepo.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, jobs.StatusFailed, kept.Status)
}
