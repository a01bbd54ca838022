package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/quitforge/aigateway/internal/metrics"
)

const (
	keyPrefix = "llmcache:"

	// localSize bounds the in-process layer used while Redis is down.
	localSize = 4096
)

type localEntry struct {
	value     string
	expiresAt time.Time
}

// Store is a TTL'd response cache backed by Redis, degrading to an
// in-process LRU when Redis is unreachable. Entries are lossy by design:
// losing one only costs an extra provider call.
type Store struct {
	rdb   redis.Cmdable
	local *lru.Cache[string, localEntry]
}

// NewStore creates a response cache over the given Redis client.
func NewStore(rdb redis.Cmdable) *Store {
	local, _ := lru.New[string, localEntry](localSize)
	return &Store{rdb: rdb, local: local}
}

// Fingerprint derives the cache key for a request. The same
// (prompt, model, maxTokens) triple always yields the same key, across
// processes and restarts.
func Fingerprint(prompt, model string, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", prompt, model, maxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value for key, or ("", false) when absent or
// expired. Redis errors degrade to the local layer and are never surfaced.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	val, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if err == nil {
		metrics.CacheEventsTotal.WithLabelValues("hit").Inc()
		return val, true
	}
	if err != redis.Nil {
		slog.Warn("cache: redis get failed, using local layer", "error", err)
		metrics.CacheEventsTotal.WithLabelValues("error").Inc()
		if entry, ok := s.local.Get(key); ok && time.Now().Before(entry.expiresAt) {
			return entry.value, true
		}
		return "", false
	}
	metrics.CacheEventsTotal.WithLabelValues("miss").Inc()
	return "", false
}

// Set stores value under key for ttl. Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, value, ttl).Err(); err != nil {
		slog.Warn("cache: redis set failed, using local layer", "error", err)
		s.local.Add(key, localEntry{value: value, expiresAt: time.Now().Add(ttl)})
	}
}

// Delete removes key from both layers. Failures are swallowed.
func (s *Store) Delete(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		slog.Warn("cache: redis del failed", "error", err)
	}
	s.local.Remove(key)
}

// Exists reports whether key is present and unexpired in either layer.
func (s *Store) Exists(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, keyPrefix+key).Result()
	if err == nil {
		return n > 0
	}
	slog.Warn("cache: redis exists failed, using local layer", "error", err)
	entry, ok := s.local.Get(key)
	return ok && time.Now().Before(entry.expiresAt)
}
