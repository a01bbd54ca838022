package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/metrics"
)

// OpenAI is a Client over the OpenAI-compatible chat completion API.
type OpenAI struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAI creates a provider client. A non-empty BaseURL points it at any
// OpenAI-compatible endpoint.
func NewOpenAI(cfg config.ProviderConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		timeout: cfg.Timeout,
	}
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	duration := time.Since(start)

	if err != nil {
		metrics.ProviderRequestDuration.WithLabelValues(req.Model, "error").Observe(duration.Seconds())
		return Response{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.ProviderRequestDuration.WithLabelValues(req.Model, "error").Observe(duration.Seconds())
		return Response{}, fmt.Errorf("empty completion response: %w", ErrUnavailable)
	}

	metrics.ProviderRequestDuration.WithLabelValues(req.Model, "success").Observe(duration.Seconds())
	metrics.ProviderTokensTotal.WithLabelValues(req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.ProviderTokensTotal.WithLabelValues(req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	return Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// parseAPIError extracts a human-readable error from the API response. All
// errors are wrapped with ErrUnavailable so the gateway degrades uniformly.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("provider API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), ErrUnavailable)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, ErrUnavailable)
	}

	return fmt.Errorf("provider request failed: %v: %w", err, ErrUnavailable)
}
