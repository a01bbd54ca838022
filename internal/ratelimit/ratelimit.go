package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Endpoint classes. AI endpoints carry tight ceilings because every allowed
// request can turn into provider spend; reads are only protecting the DB.
const (
	EndpointAI   = "ai"
	EndpointRead = "read"
)

// Result describes the outcome of a window check.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Limiter is a fixed-window counter per (endpoint, identifier) pair backed
// by Redis. The counter increment is atomic at the store, so there is no
// read-then-write race; exactness under extreme concurrency is bounded by
// Redis itself.
type Limiter struct {
	rdb    redis.Cmdable
	window time.Duration
}

// NewLimiter creates a limiter with the given window length.
func NewLimiter(rdb redis.Cmdable, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, window: window}
}

func key(endpoint, identifier string) string {
	return keyPrefix + endpoint + ":" + identifier
}

// Check counts this request against the (endpoint, identifier) window and
// reports whether it is allowed under limit. On Redis errors it returns a
// permissive Result along with the error so callers can fail open.
func (l *Limiter) Check(ctx context.Context, endpoint, identifier string, limit int) (Result, error) {
	open := Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(l.window)}

	k := key(endpoint, identifier)
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return open, fmt.Errorf("incrementing window counter: %w", err)
	}

	// First hit opens the window; the key's TTL is the window length.
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return open, fmt.Errorf("setting window ttl: %w", err)
		}
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return open, fmt.Errorf("reading window ttl: %w", err)
	}
	if ttl < 0 {
		// Counter without expiry (crash between INCR and EXPIRE): repair it.
		_ = l.rdb.Expire(ctx, k, l.window).Err()
		ttl = l.window
	}

	res := Result{
		Limit:   limit,
		ResetAt: time.Now().Add(ttl),
	}
	if int(count) > limit {
		res.Allowed = false
		res.Remaining = 0
		res.RetryAfter = ttl
		return res, nil
	}
	res.Allowed = true
	res.Remaining = limit - int(count)
	return res, nil
}

// Status reports the current window state without consuming a request.
func (l *Limiter) Status(ctx context.Context, endpoint, identifier string, limit int) (Result, error) {
	open := Result{Allowed: true, Limit: limit, Remaining: limit, ResetAt: time.Now().Add(l.window)}

	k := key(endpoint, identifier)
	count, err := l.rdb.Get(ctx, k).Int()
	if err == redis.Nil {
		return open, nil
	}
	if err != nil {
		return open, fmt.Errorf("reading window counter: %w", err)
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}

	res := Result{
		Allowed:   count < limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   time.Now().Add(ttl),
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res, nil
}
