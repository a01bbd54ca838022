package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Provider credentials
	if c.Provider.APIKey == "" {
		errs = append(errs, "PROVIDER_API_KEY is required")
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, "PROVIDER_TIMEOUT must be positive")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Budgets must be positive: a zero budget would reject every call
	if c.Budget.MonthlyFree <= 0 {
		errs = append(errs, fmt.Sprintf("BUDGET_MONTHLY_FREE must be positive, got %v", c.Budget.MonthlyFree))
	}
	if c.Budget.MonthlyPremium <= 0 {
		errs = append(errs, fmt.Sprintf("BUDGET_MONTHLY_PREMIUM must be positive, got %v", c.Budget.MonthlyPremium))
	}

	// Rate limit sanity
	if c.RateLimit.AIPerWindowFree < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_AI_PER_WINDOW_FREE must be at least 1, got %d", c.RateLimit.AIPerWindowFree))
	}
	if c.RateLimit.AIPerWindowPremium < c.RateLimit.AIPerWindowFree {
		errs = append(errs, fmt.Sprintf("RATELIMIT_AI_PER_WINDOW_PREMIUM must be at least the free ceiling, got %d", c.RateLimit.AIPerWindowPremium))
	}
	if c.RateLimit.ReadPerWindowFree < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_READ_PER_WINDOW_FREE must be at least 1, got %d", c.RateLimit.ReadPerWindowFree))
	}
	if c.RateLimit.ReadPerWindowPremium < c.RateLimit.ReadPerWindowFree {
		errs = append(errs, fmt.Sprintf("RATELIMIT_READ_PER_WINDOW_PREMIUM must be at least the free ceiling, got %d", c.RateLimit.ReadPerWindowPremium))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, "RATELIMIT_WINDOW must be positive")
	}

	// Worker sanity
	if c.Worker.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("WORKER_BATCH_SIZE must be at least 1, got %d", c.Worker.BatchSize))
	}
	if c.Worker.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.MaxAttempts))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// NATS disabled: warn only, events are best-effort
	if !c.NATS.Enabled {
		slog.Warn("NATS_ENABLED is false — gateway events will not be published")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
