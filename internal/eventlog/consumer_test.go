package eventlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitforge/aigateway/internal/events"
)

func TestEntryFromMessage_Usage(t *testing.T) {
	ev := events.UsageEvent{
		UserID: uuid.New(), Tier: "free", Feature: "level_feedback",
		Model: "gpt-4o-mini", PromptTokens: 100, CompletionTokens: 40,
		Cost: 0.0002, Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	entry, ok := entryFromMessage(events.SubjectUsage, data)
	require.True(t, ok)
	assert.Equal(t, "usage_recorded", entry.EventType)
	assert.Equal(t, "info", entry.Severity)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, ev.UserID, *entry.UserID)
	assert.Equal(t, ev.Timestamp, entry.CreatedAt)
}

func TestEntryFromMessage_RejectionSeverity(t *testing.T) {
	for reason, wantSeverity := range map[string]string{
		"budget_exceeded": "warn",
		"rate_limited":    "warn",
		"provider_error":  "error",
	} {
		data, err := json.Marshal(events.RejectionEvent{
			UserID: uuid.New(), Feature: "battle_commentary", Reason: reason,
		})
		require.NoError(t, err)

		entry, ok := entryFromMessage(events.SubjectRejection, data)
		require.True(t, ok, reason)
		assert.Equal(t, "generate_degraded", entry.EventType)
		assert.Equal(t, wantSeverity, entry.Severity, reason)
		assert.False(t, entry.CreatedAt.IsZero())
	}
}

func TestEntryFromMessage_JobStatus(t *testing.T) {
	data, err := json.Marshal(events.JobEvent{
		JobID: uuid.New(), JobType: "cohort_personalization", Status: "failed",
		Attempt: 3, Error: "provider down",
	})
	require.NoError(t, err)

	entry, ok := entryFromMessage(events.SubjectJob, data)
	require.True(t, ok)
	assert.Equal(t, "job_failed", entry.EventType)
	assert.Equal(t, "error", entry.Severity)
	assert.Nil(t, entry.UserID)
}

func TestEntryFromMessage_UnknownSubject(t *testing.T) {
	_, ok := entryFromMessage("aigateway.events.nope", []byte(`{}`))
	assert.False(t, ok)
}

func TestEntryFromMessage_MalformedPayload(t *testing.T) {
	_, ok := entryFromMessage(events.SubjectUsage, []byte(`not json`))
	assert.False(t, ok)
}

func TestSleepCtx_ReturnsEarlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, sleepCtx(ctx, time.Minute))
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepCtx_WaitsOutTheDelay(t *testing.T) {
	start := time.Now()
	assert.True(t, sleepCtx(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
