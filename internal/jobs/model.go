package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Job lifecycle. Pending jobs become processing when a worker claims them,
// then land in exactly one terminal state.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Known job types. Unknown types fail permanently on first claim rather
// than burning retry attempts.
const (
	TypeCohortPersonalization = "cohort_personalization"
	TypeCacheWarmup           = "cache_warmup"
)

// Job is a unit of deferred work persisted in the queue_jobs table.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	MaxAttempts  int             `json:"max_attempts"`
	LastError    string          `json:"last_error,omitempty"`
	ResultNote   string          `json:"result_note,omitempty"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// CohortMember identifies one user inside a cohort_personalization payload.
type CohortMember struct {
	UserID uuid.UUID `json:"user_id"`
	Tier   string    `json:"tier"`
}

// CohortPayload is the payload for cohort_personalization jobs: generate
// one piece of content per member, tolerating individual failures.
type CohortPayload struct {
	Members  []CohortMember `json:"members"`
	Feature  string         `json:"feature"`
	Category string         `json:"category"`
	Prompt   string         `json:"prompt"`
}

// WarmupPrompt is one cache entry to pre-populate.
type WarmupPrompt struct {
	Prompt    string `json:"prompt"`
	Category  string `json:"category"`
	Tier      string `json:"tier"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// WarmupPayload is the payload for cache_warmup jobs, billed against the
// system account rather than any player.
type WarmupPayload struct {
	Feature string         `json:"feature"`
	Prompts []WarmupPrompt `json:"prompts"`
}
