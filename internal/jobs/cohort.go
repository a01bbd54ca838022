package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/budget"
	"github.com/quitforge/aigateway/internal/gateway"
)

// Generator is the slice of the gateway the batch handlers need.
type Generator interface {
	Generate(ctx context.Context, userID uuid.UUID, tier budget.Tier, feature string, d gateway.Descriptor) (gateway.Result, error)
}

// NewCohortHandler returns the handler for cohort_personalization jobs.
// One member failing never aborts the batch; the completion note records how
// many members were skipped so operators can tell a clean run from a ragged
// one. The job itself fails only when not a single member could be served.
func NewCohortHandler(gen Generator) HandlerFunc {
	return func(ctx context.Context, job *Job) (string, error) {
		var payload CohortPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return "", fmt.Errorf("decoding cohort payload: %w", err)
		}
		if len(payload.Members) == 0 {
			return "", fmt.Errorf("cohort payload has no members")
		}
		if payload.Prompt == "" {
			return "", fmt.Errorf("cohort payload has no prompt")
		}

		failed := 0
		for _, member := range payload.Members {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			res, err := gen.Generate(ctx, member.UserID, budget.ParseTier(member.Tier), payload.Feature, gateway.Descriptor{
				Prompt:   payload.Prompt,
				Category: payload.Category,
			})
			if err != nil {
				failed++
				slog.Warn("cohort: generating for member",
					"job_id", job.ID, "user_id", member.UserID, "error", err)
				continue
			}
			if res.Degraded {
				// Budget-gated or provider-degraded members get fallback
				// copy through the normal path; nothing to personalize.
				failed++
				slog.Debug("cohort: member degraded",
					"job_id", job.ID, "user_id", member.UserID, "reason", res.Reason)
			}
		}

		if failed == len(payload.Members) {
			return "", fmt.Errorf("all %d cohort members failed", failed)
		}
		if failed > 0 {
			return fmt.Sprintf("%d/%d members failed", failed, len(payload.Members)), nil
		}
		return fmt.Sprintf("%d members personalized", len(payload.Members)), nil
	}
}

// NewWarmupHandler returns the handler for cache_warmup jobs. Prompts are
// generated under the nil system user so the resulting responses land in the
// shared response cache before players ask for them.
func NewWarmupHandler(gen Generator) HandlerFunc {
	return func(ctx context.Context, job *Job) (string, error) {
		var payload WarmupPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return "", fmt.Errorf("decoding warmup payload: %w", err)
		}
		if len(payload.Prompts) == 0 {
			return "", fmt.Errorf("warmup payload has no prompts")
		}

		warmed, failed := 0, 0
		for _, p := range payload.Prompts {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}

			res, err := gen.Generate(ctx, uuid.Nil, budget.ParseTier(p.Tier), payload.Feature, gateway.Descriptor{
				Prompt:    p.Prompt,
				Category:  p.Category,
				MaxTokens: p.MaxTokens,
			})
			if err != nil || res.Degraded {
				failed++
				continue
			}
			warmed++
		}

		if warmed == 0 {
			return "", fmt.Errorf("no prompts warmed, %d failed", failed)
		}
		if failed > 0 {
			return fmt.Sprintf("%d/%d prompts warmed", warmed, len(payload.Prompts)), nil
		}
		return fmt.Sprintf("%d prompts warmed", warmed), nil
	}
}
