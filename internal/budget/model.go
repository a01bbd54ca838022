package budget

import (
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription tier of the habit-recovery app.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier normalizes a tier string, defaulting to free for anything unknown
// so a bad value can only under-serve a user, never overspend.
func ParseTier(s string) Tier {
	if Tier(s) == TierPremium {
		return TierPremium
	}
	return TierFree
}

// UsageRecord is one row of the append-only usage ledger. Written once per
// completed provider call, never for cache hits, never updated.
type UsageRecord struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	ModelTier        string    `json:"model_tier"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	Feature          string    `json:"feature"`
	CreatedAt        time.Time `json:"created_at"`
}

// Status is derived on demand from the ledger for the current calendar
// month. It is never stored.
type Status struct {
	Tier            Tier      `json:"tier"`
	MonthlyBudget   float64   `json:"monthly_budget"`
	CurrentSpend    float64   `json:"current_spend"`
	RemainingBudget float64   `json:"remaining_budget"`
	IsOverBudget    bool      `json:"is_over_budget"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
}

// Reasons a call may be declined.
const (
	ReasonOverBudget   = "over_budget"
	ReasonFeatureLimit = "feature_limit"
)

// Decision is the outcome of a pre-call budget check.
type Decision struct {
	Allowed bool
	Reason  string
}

// DefaultFeatureDailyLimits caps calls per feature per day regardless of
// remaining budget, so no single feature can drain the shared monthly pool.
var DefaultFeatureDailyLimits = map[string]int{
	"onboarding_personalization": 1,
	"level_feedback":             20,
	"battle_commentary":          30,
}

// MonthPeriod returns the UTC calendar-month window containing now.
func MonthPeriod(now time.Time) (start, end time.Time) {
	now = now.UTC()
	start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0)
	return start, end
}

// DayStart returns midnight UTC of the day containing now, used for
// per-feature daily sub-limits.
func DayStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
