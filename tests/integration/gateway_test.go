//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEndpoint_LiveThenCached(t *testing.T) {
	env := SetupTestEnv(t)
	user := uuid.New().String()

	body := map[string]any{
		"user_id":  user,
		"tier":     "free",
		"feature":  "level_feedback",
		"prompt":   "finished level three without a single slip",
		"category": "habit",
	}

	resp := DoRequest(t, env, "POST", "/api/v1/generate", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, false, first["cached"])
	assert.Greater(t, first["cost"].(float64), 0.0)

	resp = DoRequest(t, env, "POST", "/api/v1/generate", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, 0.0, second["cost"])
	assert.Equal(t, first["text"], second["text"])
}

func TestGenerateEndpoint_RejectsEmptyPrompt(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/generate", map[string]any{
		"user_id": uuid.New().String(),
		"feature": "level_feedback",
		"prompt":  "",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBudgetEndpoint_ReflectsRecordedSpend(t *testing.T) {
	env := SetupTestEnv(t)
	user := uuid.New().String()

	resp := DoRequest(t, env, "POST", "/api/v1/generate", map[string]any{
		"user_id": user,
		"tier":    "free",
		"feature": "battle_commentary",
		"prompt":  "narrate the opening clash of the craving battle",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/users/"+user+"/budget?tier=free", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Greater(t, status["current_spend"].(float64), 0.0)
	assert.Equal(t, 1.00, status["monthly_budget"])
	assert.Less(t, status["remaining_budget"].(float64), 1.00)
}

func TestUsageEndpoint_ListsLedgerRows(t *testing.T) {
	env := SetupTestEnv(t)
	user := uuid.New().String()

	for _, prompt := range []string{"first unique prompt", "second unique prompt"} {
		resp := DoRequest(t, env, "POST", "/api/v1/generate", map[string]any{
			"user_id": user,
			"tier":    "free",
			"feature": "level_feedback",
			"prompt":  prompt,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "GET", "/api/v1/users/"+user+"/usage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	assert.Equal(t, 2.0, result["total_count"])
	assert.Len(t, result["data"].([]any), 2)
}

func TestRateLimitEndpoint_ReportsWindow(t *testing.T) {
	env := SetupTestEnv(t)
	user := uuid.New().String()

	resp := DoRequest(t, env, "GET", "/api/v1/users/"+user+"/ratelimit/ai", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, 50.0, status["limit"])
	assert.Equal(t, 50.0, status["remaining"], "status reads must not consume the window")

	resp = DoRequest(t, env, "GET", "/api/v1/users/"+user+"/ratelimit/ai?tier=premium", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = ParseResponse(t, resp)["data"].(map[string]any)
	assert.Equal(t, 100.0, status["limit"], "premium tier gets the higher ceiling")

	resp = DoRequest(t, env, "GET", "/api/v1/users/"+user+"/ratelimit/teleport", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
