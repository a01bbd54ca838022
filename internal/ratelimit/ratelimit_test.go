package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client, window), mr
}

func TestCheck_ExactlyLimitAllowed(t *testing.T) {
	l, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res, err := l.Check(ctx, EndpointAI, "user-1", 10)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 10-(i+1), res.Remaining)
	}

	// The 11th is rejected with a positive retry hint.
	res, err := l.Check(ctx, EndpointAI, "user-1", 10)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestCheck_WindowResets(t *testing.T) {
	l, mr := setupLimiter(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, EndpointAI, "user-1", 3)
		require.NoError(t, err)
	}
	res, err := l.Check(ctx, EndpointAI, "user-1", 3)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	mr.FastForward(61 * time.Second)

	res, err = l.Check(ctx, EndpointAI, "user-1", 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
}

func TestCheck_IdentifiersIndependent(t *testing.T) {
	l, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := l.Check(ctx, EndpointAI, "user-1", 2)
		require.NoError(t, err)
	}
	res, err := l.Check(ctx, EndpointAI, "user-1", 2)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = l.Check(ctx, EndpointAI, "user-2", 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_EndpointsIndependent(t *testing.T) {
	l, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, EndpointAI, "user-1", 1)
	require.NoError(t, err)
	res, err := l.Check(ctx, EndpointAI, "user-1", 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = l.Check(ctx, EndpointRead, "user-1", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheck_FailsOpenOnRedisError(t *testing.T) {
	l, mr := setupLimiter(t, time.Minute)
	ctx := context.Background()
	mr.Close()

	res, err := l.Check(ctx, EndpointAI, "user-1", 5)
	require.Error(t, err)
	assert.True(t, res.Allowed, "redis failure must yield a permissive result")
	assert.Equal(t, 5, res.Remaining)
}

func TestStatus_DoesNotConsume(t *testing.T) {
	l, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	_, err := l.Check(ctx, EndpointAI, "user-1", 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := l.Status(ctx, EndpointAI, "user-1", 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Remaining)
	}
}

func TestStatus_EmptyWindow(t *testing.T) {
	l, _ := setupLimiter(t, time.Minute)
	ctx := context.Background()

	res, err := l.Status(ctx, EndpointAI, "never-seen", 7)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 7, res.Remaining)
}
