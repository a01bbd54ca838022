package eventlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quitforge/aigateway/internal/events"
)

// Consumer listens on the gateway event subjects and persists entries to
// the ai_events table.
type Consumer struct {
	repo *Repository
	js   jetstream.JetStream
}

// NewConsumer creates a new event log Consumer.
func NewConsumer(repo *Repository, js jetstream.JetStream) *Consumer {
	return &Consumer{repo: repo, js: js}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := events.EnsureConsumer(ctx, c.js, "eventlog-persister", events.SubjectWildcard)
	if err != nil {
		return err
	}

	slog.Info("event log consumer started", "consumer", "eventlog-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(events.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("event log consumer: fetching events", "error", err)
			// A broken connection fails Fetch instantly; wait out the
			// fetch window before retrying instead of spinning.
			if !sleepCtx(ctx, events.FetchTimeout) {
				return nil
			}
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// sleepCtx pauses for d, returning false if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	entry, ok := entryFromMessage(msg.Subject(), msg.Data())
	if !ok {
		slog.Error("event log consumer: unknown subject", "subject", msg.Subject())
		_ = msg.Ack() // unparseable messages would otherwise redeliver forever
		return
	}

	if err := c.repo.Insert(ctx, entry); err != nil {
		slog.Error("event log consumer: persisting entry", "error", err, "event_type", entry.EventType)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	slog.Debug("event log consumer: persisted event", "event_type", entry.EventType)
}

func entryFromMessage(subject string, data []byte) (*Entry, bool) {
	switch subject {
	case events.SubjectUsage:
		var ev events.UsageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, false
		}
		return newEntry("usage_recorded", "info", &ev.UserID, data, ev.Timestamp), true

	case events.SubjectRejection:
		var ev events.RejectionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, false
		}
		severity := "warn"
		if ev.Reason == "provider_error" {
			severity = "error"
		}
		return newEntry("generate_degraded", severity, &ev.UserID, data, ev.Timestamp), true

	case events.SubjectJob:
		var ev events.JobEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, false
		}
		severity := "info"
		if ev.Status == "failed" {
			severity = "error"
		}
		return newEntry("job_"+ev.Status, severity, nil, data, ev.Timestamp), true
	}
	return nil, false
}

func newEntry(eventType, severity string, userID *uuid.UUID, details []byte, at time.Time) *Entry {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &Entry{
		ID:        uuid.New(),
		UserID:    userID,
		EventType: eventType,
		Severity:  severity,
		Details:   json.RawMessage(details),
		CreatedAt: at,
	}
}
