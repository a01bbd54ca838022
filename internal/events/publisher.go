package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing gateway events. A nil
// *Publisher is valid and drops everything, so callers never have to branch
// on whether eventing is configured.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// Usage publishes a billed-call event. Best effort: failures are logged only.
func (p *Publisher) Usage(ctx context.Context, event UsageEvent) {
	p.publish(ctx, SubjectUsage, event)
}

// Rejection publishes a degraded-response event.
func (p *Publisher) Rejection(ctx context.Context, event RejectionEvent) {
	p.publish(ctx, SubjectRejection, event)
}

// Job publishes a terminal batch-job event.
func (p *Publisher) Job(ctx context.Context, event JobEvent) {
	p.publish(ctx, SubjectJob, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("events: marshaling event", "subject", subject, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		slog.Warn("events: publish failed", "subject", subject, "error", err)
	}
}

// EnsureConsumer creates or updates a durable consumer on the event stream.
func EnsureConsumer(ctx context.Context, js jetstream.JetStream, name, filterSubject string) (jetstream.Consumer, error) {
	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamEvents, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, StreamEvents, err)
	}
	return consumer, nil
}
