package budget

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/api"
)

type Handler struct {
	tracker *Tracker
	repo    *Repository
}

func NewHandler(tracker *Tracker, repo *Repository) *Handler {
	return &Handler{tracker: tracker, repo: repo}
}

// Status serves GET /api/v1/users/{userID}/budget.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user ID"))
		return
	}

	tier := ParseTier(r.URL.Query().Get("tier"))

	status, err := h.tracker.Status(r.Context(), userID, tier)
	if err != nil {
		slog.Error("fetching budget status", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, status)
}

// Usage serves GET /api/v1/users/{userID}/usage, newest first.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user ID"))
		return
	}

	page, pageSize := 1, 20
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	records, totalCount, err := h.repo.ListByUser(r.Context(), userID, page, pageSize)
	if err != nil {
		slog.Error("listing usage records", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, records, totalCount, page, pageSize)
}
