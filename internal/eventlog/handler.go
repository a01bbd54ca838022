package eventlog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quitforge/aigateway/internal/api"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// List serves GET /api/v1/events with optional type and time-range filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := DefaultListParams()
	params.EventType = r.URL.Query().Get("type")

	if f := r.URL.Query().Get("from"); f != "" {
		ts, err := time.Parse(time.RFC3339, f)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid from timestamp"))
			return
		}
		params.From = &ts
	}
	if to := r.URL.Query().Get("to"); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			api.HandleError(w, api.NewBadRequestError("invalid to timestamp"))
			return
		}
		params.To = &ts
	}

	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			params.Page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			params.PageSize = v
		}
	}

	entries, totalCount, err := h.repo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing events", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, totalCount, params.Page, params.PageSize)
}
