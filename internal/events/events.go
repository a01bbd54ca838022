package events

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents is the JetStream stream holding gateway events.
const StreamEvents = "AIGATEWAY_EVENTS"

// Subject constants.
const (
	SubjectUsage     = "aigateway.events.usage"
	SubjectRejection = "aigateway.events.rejection"
	SubjectJob       = "aigateway.events.job"
	SubjectWildcard  = "aigateway.events.>"
)

// UsageEvent is published for every billed provider call.
type UsageEvent struct {
	UserID           uuid.UUID `json:"user_id"`
	Tier             string    `json:"tier"`
	Feature          string    `json:"feature"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	Timestamp        time.Time `json:"timestamp"`
}

// RejectionEvent is published when a generate call degrades to a fallback.
type RejectionEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Feature   string    `json:"feature"`
	Reason    string    `json:"reason"` // budget_exceeded, feature_limited, rate_limited, provider_error
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JobEvent is published when a batch job reaches a terminal state.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	JobType   string    `json:"job_type"`
	Status    string    `json:"status"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
