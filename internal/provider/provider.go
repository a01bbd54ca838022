package provider

import (
	"context"
	"errors"
)

// Request is the gateway's canonical prompt descriptor as sent upstream.
type Request struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float32
}

// Response carries the completion text and the provider-reported token
// counts used for actual-cost accounting.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Client is the upstream LLM boundary. The gateway treats any error as a
// soft ProviderUnavailable condition.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrUnavailable wraps every upstream failure so callers can branch on the
// category without knowing the transport.
var ErrUnavailable = errors.New("llm provider unavailable")
