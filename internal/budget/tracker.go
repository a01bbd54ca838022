package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/config"
	"github.com/quitforge/aigateway/internal/metrics"
)

// Ledger is the durable usage store the tracker reads and appends to.
// *Repository is the production implementation.
type Ledger interface {
	Insert(ctx context.Context, rec *UsageRecord) error
	SumCostBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (float64, error)
	CountByFeatureBetween(ctx context.Context, userID uuid.UUID, feature string, from, to time.Time) (int, error)
}

// Tracker decides whether a provider call may proceed and records actual
// spend afterwards. Estimates gate, actuals are the ledger of record.
type Tracker struct {
	ledger        Ledger
	cfg           config.BudgetConfig
	featureLimits map[string]int
	now           func() time.Time
}

// NewTracker creates a budget Tracker over the given ledger.
func NewTracker(ledger Ledger, cfg config.BudgetConfig) *Tracker {
	return &Tracker{
		ledger:        ledger,
		cfg:           cfg,
		featureLimits: DefaultFeatureDailyLimits,
		now:           time.Now,
	}
}

// MonthlyBudget returns the dollar budget for a tier.
func (t *Tracker) MonthlyBudget(tier Tier) float64 {
	if tier == TierPremium {
		return t.cfg.MonthlyPremium
	}
	return t.cfg.MonthlyFree
}

// Status recomputes the user's budget position from the ledger for the
// current calendar month.
func (t *Tracker) Status(ctx context.Context, userID uuid.UUID, tier Tier) (*Status, error) {
	start, end := MonthPeriod(t.now())

	spend, err := t.ledger.SumCostBetween(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("computing current spend: %w", err)
	}

	monthly := t.MonthlyBudget(tier)
	return &Status{
		Tier:            tier,
		MonthlyBudget:   monthly,
		CurrentSpend:    spend,
		RemainingBudget: max(monthly-spend, 0),
		IsOverBudget:    spend >= monthly,
		PeriodStart:     start,
		PeriodEnd:       end,
	}, nil
}

// CanProceed reports whether a call with the given estimated cost fits the
// user's remaining monthly budget and the feature's daily sub-limit. Ledger
// read failures fail open with a warning: the budget is a soft cost control,
// not a billing system, and blocking every user on a DB blip is worse than
// a bounded overrun.
func (t *Tracker) CanProceed(ctx context.Context, userID uuid.UUID, tier Tier, feature string, estimatedCost float64) Decision {
	start, end := MonthPeriod(t.now())

	spend, err := t.ledger.SumCostBetween(ctx, userID, start, end)
	if err != nil {
		slog.Warn("budget: spend lookup failed, allowing request", "error", err, "user_id", userID)
		return Decision{Allowed: true}
	}

	monthly := t.MonthlyBudget(tier)
	if spend >= monthly || spend+estimatedCost > monthly {
		return Decision{Allowed: false, Reason: ReasonOverBudget}
	}

	if limit, ok := t.featureLimits[feature]; ok {
		count, err := t.ledger.CountByFeatureBetween(ctx, userID, feature, DayStart(t.now()), t.now())
		if err != nil {
			slog.Warn("budget: feature count lookup failed, allowing request", "error", err, "user_id", userID, "feature", feature)
			return Decision{Allowed: true}
		}
		if count >= limit {
			return Decision{Allowed: false, Reason: ReasonFeatureLimit}
		}
	}

	return Decision{Allowed: true}
}

// Record appends the actual measured cost of a completed provider call.
func (t *Tracker) Record(ctx context.Context, userID uuid.UUID, tier Tier, feature, model, modelTier string, promptTokens, completionTokens int, cost float64) error {
	rec := &UsageRecord{
		UserID:           userID,
		ModelTier:        modelTier,
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		Cost:             cost,
		Feature:          feature,
		CreatedAt:        t.now().UTC(),
	}
	if err := t.ledger.Insert(ctx, rec); err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}

	metrics.UsageCostTotal.WithLabelValues(string(tier)).Add(cost)
	return nil
}
