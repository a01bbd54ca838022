package gateway

import (
	"time"

	"github.com/quitforge/aigateway/internal/budget"
)

// ModelPricing holds per-1K-token dollar rates and the cache TTL for
// responses from that model. Cheap models get short TTLs (a regenerated
// answer costs little); expensive models get long TTLs to maximize reuse.
type ModelPricing struct {
	Tier            string
	PromptPer1K     float64
	CompletionPer1K float64
	CacheTTL        time.Duration
}

var pricing = map[string]ModelPricing{
	"gpt-4o-mini": {
		Tier:            "standard",
		PromptPer1K:     0.00015,
		CompletionPer1K: 0.0006,
		CacheTTL:        1 * time.Hour,
	},
	"gpt-4o": {
		Tier:            "premium",
		PromptPer1K:     0.0025,
		CompletionPer1K: 0.010,
		CacheTTL:        24 * time.Hour,
	},
}

// PricingFor returns the pricing entry for a model.
func PricingFor(model string) (ModelPricing, bool) {
	p, ok := pricing[model]
	return p, ok
}

// ModelForTier maps subscription tier to the model it is served by.
func ModelForTier(tier budget.Tier) string {
	if tier == budget.TierPremium {
		return "gpt-4o"
	}
	return "gpt-4o-mini"
}

// EstimateTokens approximates the token count of a prompt at roughly four
// characters per token. It only feeds the advisory pre-call cost gate; the
// ledger always uses provider-reported counts.
func EstimateTokens(prompt string) int {
	n := len(prompt) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateCost bounds the cost of a call before it is made: estimated
// prompt tokens at the prompt rate plus the full max completion budget at
// the completion rate.
func EstimateCost(p ModelPricing, prompt string, maxTokens int) float64 {
	return float64(EstimateTokens(prompt))*p.PromptPer1K/1000 +
		float64(maxTokens)*p.CompletionPer1K/1000
}

// ActualCost converts provider-reported token counts into dollars.
func ActualCost(p ModelPricing, promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.PromptPer1K/1000 +
		float64(completionTokens)*p.CompletionPer1K/1000
}
