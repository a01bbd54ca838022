package ratelimit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/api"
	"github.com/quitforge/aigateway/internal/budget"
	"github.com/quitforge/aigateway/internal/config"
)

type Handler struct {
	limiter *Limiter
	limits  config.RateLimitConfig
}

func NewHandler(limiter *Limiter, limits config.RateLimitConfig) *Handler {
	return &Handler{limiter: limiter, limits: limits}
}

// Status serves GET /api/v1/users/{userID}/ratelimit/{endpoint} without
// consuming a slot from the window. The optional tier query parameter
// selects the ceiling and defaults to free.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user ID"))
		return
	}

	endpoint := chi.URLParam(r, "endpoint")
	if endpoint != EndpointAI && endpoint != EndpointRead {
		api.HandleError(w, api.NewBadRequestError("unknown endpoint class"))
		return
	}
	tier := budget.ParseTier(r.URL.Query().Get("tier"))
	limit := h.limits.LimitFor(endpoint, string(tier))

	result, err := h.limiter.Status(r.Context(), endpoint, userID.String(), limit)
	if err != nil {
		// Same contract as the check path: a broken store fails open, so
		// report the permissive window Status already returned.
		slog.Warn("rate limit status degraded, reporting open window", "error", err, "user_id", userID, "endpoint", endpoint)
	}

	api.JSON(w, http.StatusOK, result)
}
