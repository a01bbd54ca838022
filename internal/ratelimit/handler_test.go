package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quitforge/aigateway/internal/config"
)

func setupHandler(t *testing.T) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limits := config.RateLimitConfig{
		AIPerWindowFree: 10, AIPerWindowPremium: 30,
		ReadPerWindowFree: 120, ReadPerWindowPremium: 300,
		Window: time.Minute,
	}
	return NewHandler(NewLimiter(client, limits.Window), limits), mr
}

func getStatus(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/users/{userID}/ratelimit/{endpoint}", h.Status)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) Result {
	t.Helper()
	var body struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestStatusHandler_TierSelectsCeiling(t *testing.T) {
	h, _ := setupHandler(t)
	user := uuid.New().String()

	rec := getStatus(t, h, "/users/"+user+"/ratelimit/ai")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, decodeResult(t, rec).Limit, "tierless requests get the free ceiling")

	rec = getStatus(t, h, "/users/"+user+"/ratelimit/ai?tier=premium")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30, decodeResult(t, rec).Limit)

	rec = getStatus(t, h, "/users/"+user+"/ratelimit/read?tier=premium")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 300, decodeResult(t, rec).Limit)
}

func TestStatusHandler_UnknownEndpointRejected(t *testing.T) {
	h, _ := setupHandler(t)
	rec := getStatus(t, h, "/users/"+uuid.New().String()+"/ratelimit/teleport")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusHandler_RedisDownFailsOpen(t *testing.T) {
	h, mr := setupHandler(t)
	mr.Close()

	rec := getStatus(t, h, "/users/"+uuid.New().String()+"/ratelimit/ai")
	require.Equal(t, http.StatusOK, rec.Code, "a broken store must not surface as an error")

	result := decodeResult(t, rec)
	assert.True(t, result.Allowed)
	assert.Equal(t, 10, result.Limit)
	assert.Equal(t, 10, result.Remaining)
}
