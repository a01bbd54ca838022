package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/budget"
	"github.com/quitforge/aigateway/internal/cache"
	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/events"
	"github.com/quitforge/aigateway/internal/fallback"
	"github.com/quitforge/aigateway/internal/metrics"
	"github.com/quitforge/aigateway/internal/provider"
	"github.com/quitforge/aigateway/internal/ratelimit"
)

const defaultMaxTokens = 256

// Reason classifies why a generate call degraded to a fallback. Soft
// conditions only: the caller always receives usable text alongside one of
// these, never an error.
type Reason string

const (
	ReasonBudgetExceeded Reason = "budget_exceeded"
	ReasonFeatureLimited Reason = "feature_limited"
	ReasonRateLimited    Reason = "rate_limited"
	ReasonProviderError  Reason = "provider_error"
)

// Descriptor is the canonical request a consumer hands the gateway.
type Descriptor struct {
	Prompt      string
	Category    string // fallback category, e.g. a craving type
	Model       string // optional override; empty means tier default
	MaxTokens   int
	Temperature float32
}

// Result is the outcome of a generate call.
type Result struct {
	Text       string        `json:"text"`
	Cached     bool          `json:"cached"`
	Cost       float64       `json:"cost"`
	Degraded   bool          `json:"degraded"`
	Reason     Reason        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Gateway mediates every LLM provider call: response cache, rate limiter
// and budget gate in front, usage ledger and cache write behind. All
// collaborators are injected; Gateway itself holds no mutable state and is
// safe for concurrent use.
type Gateway struct {
	cache    *cache.Store
	limiter  *ratelimit.Limiter
	tracker  *budget.Tracker
	provider provider.Client
	fallback *fallback.Resolver
	events   *events.Publisher
	limits   config.RateLimitConfig
}

// New creates a Gateway. events may be nil when NATS is disabled.
func New(
	cacheStore *cache.Store,
	limiter *ratelimit.Limiter,
	tracker *budget.Tracker,
	providerClient provider.Client,
	resolver *fallback.Resolver,
	publisher *events.Publisher,
	limits config.RateLimitConfig,
) *Gateway {
	return &Gateway{
		cache:    cacheStore,
		limiter:  limiter,
		tracker:  tracker,
		provider: providerClient,
		fallback: resolver,
		events:   publisher,
		limits:   limits,
	}
}

// Generate obtains a response for the descriptor, consulting the cache,
// rate limiter and budget in that order. A cache hit is free: it is charged
// against neither budget nor rate window, which is the whole incentive for
// caching. Budget, rate and provider exhaustion degrade to canned fallback
// text with cost 0; only malformed input is a hard error.
func (g *Gateway) Generate(ctx context.Context, userID uuid.UUID, tier budget.Tier, feature string, d Descriptor) (Result, error) {
	if strings.TrimSpace(d.Prompt) == "" {
		return Result{}, fmt.Errorf("empty prompt for feature %q", feature)
	}

	model := d.Model
	if model == "" {
		model = ModelForTier(tier)
	}
	price, ok := PricingFor(model)
	if !ok {
		return Result{}, fmt.Errorf("unknown model %q", model)
	}

	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	// 1. Cache. Hits short-circuit everything below.
	key := cache.Fingerprint(d.Prompt, model, maxTokens)
	if text, ok := g.cache.Get(ctx, key); ok {
		metrics.GenerateRequestsTotal.WithLabelValues(feature, "hit").Inc()
		return Result{Text: text, Cached: true}, nil
	}

	// 2. Rate limit, before the budget check so the (heavier) ledger reads
	// can't be hammered. The ceiling depends on the tier: premium users get
	// more calls per window. Store failures fail open.
	rl, err := g.limiter.Check(ctx, ratelimit.EndpointAI, userID.String(), g.limits.LimitFor(ratelimit.EndpointAI, string(tier)))
	if err != nil {
		slog.Warn("gateway: rate limiter unavailable, failing open", "error", err, "user_id", userID)
	} else if !rl.Allowed {
		metrics.RateLimitRejectionsTotal.WithLabelValues(ratelimit.EndpointAI).Inc()
		return g.degrade(ctx, userID, feature, d.Category, ReasonRateLimited, rl.RetryAfter, ""), nil
	}

	// 3. Budget gate with the advisory estimate.
	estimate := EstimateCost(price, d.Prompt, maxTokens)
	decision := g.tracker.CanProceed(ctx, userID, tier, feature, estimate)
	if !decision.Allowed {
		reason := ReasonBudgetExceeded
		if decision.Reason == budget.ReasonFeatureLimit {
			reason = ReasonFeatureLimited
		}
		return g.degrade(ctx, userID, feature, d.Category, reason, 0, decision.Reason), nil
	}

	// 4. Provider call.
	resp, err := g.provider.Complete(ctx, provider.Request{
		Prompt:      d.Prompt,
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: d.Temperature,
	})
	if err != nil {
		slog.Error("gateway: provider call failed", "error", err, "user_id", userID, "feature", feature, "model", model)
		// No cache write: a fallback must never poison the cache for a
		// real prompt. No ledger write: nothing was billed.
		return g.degrade(ctx, userID, feature, d.Category, ReasonProviderError, 0, err.Error()), nil
	}

	// 5. Actual cost from provider-reported tokens; cache, then ledger.
	actual := ActualCost(price, resp.PromptTokens, resp.CompletionTokens)
	g.cache.Set(ctx, key, resp.Text, price.CacheTTL)

	if err := g.tracker.Record(ctx, userID, tier, feature, model, price.Tier, resp.PromptTokens, resp.CompletionTokens, actual); err != nil {
		// The response is already in hand and paid for upstream; losing a
		// ledger row under-counts spend, so it is loud but not fatal.
		slog.Error("gateway: recording usage failed", "error", err, "user_id", userID, "cost", actual)
	}

	if actual > 0 {
		metrics.CostEstimateRatio.Observe(estimate / actual)
	}
	metrics.GenerateRequestsTotal.WithLabelValues(feature, "live").Inc()

	g.events.Usage(ctx, events.UsageEvent{
		UserID:           userID,
		Tier:             string(tier),
		Feature:          feature,
		Model:            model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Cost:             actual,
		Timestamp:        time.Now().UTC(),
	})

	return Result{Text: resp.Text, Cached: false, Cost: actual}, nil
}

// BudgetStatus exposes the tracker for read-only introspection.
func (g *Gateway) BudgetStatus(ctx context.Context, userID uuid.UUID, tier budget.Tier) (*budget.Status, error) {
	return g.tracker.Status(ctx, userID, tier)
}

// RateLimitStatus reports the current window for a user, tier and endpoint
// class without consuming a request.
func (g *Gateway) RateLimitStatus(ctx context.Context, userID uuid.UUID, tier budget.Tier, endpoint string) (ratelimit.Result, error) {
	return g.limiter.Status(ctx, endpoint, userID.String(), g.limits.LimitFor(endpoint, string(tier)))
}

func (g *Gateway) degrade(ctx context.Context, userID uuid.UUID, feature, category string, reason Reason, retryAfter time.Duration, detail string) Result {
	metrics.GenerateRequestsTotal.WithLabelValues(feature, string(reason)).Inc()

	g.events.Rejection(ctx, events.RejectionEvent{
		UserID:    userID,
		Feature:   feature,
		Reason:    string(reason),
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})

	return Result{
		Text:       g.fallback.Resolve(feature, category),
		Cached:     false,
		Cost:       0,
		Degraded:   true,
		Reason:     reason,
		RetryAfter: retryAfter,
	}
}
