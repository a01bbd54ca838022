package jobs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/api"
	"github.com/quitforge/aigateway/internal/config"
)

type Handler struct {
	repo     *Repository
	cfg      config.WorkerConfig
	validate *validator.Validate
}

func NewHandler(repo *Repository, cfg config.WorkerConfig) *Handler {
	return &Handler{
		repo:     repo,
		cfg:      cfg,
		validate: validator.New(),
	}
}

// EnqueueRequest is the body of POST /api/v1/jobs.
type EnqueueRequest struct {
	Type        string          `json:"type" validate:"required,oneof=cohort_personalization cache_warmup"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	MaxAttempts int             `json:"max_attempts" validate:"omitempty,min=1,max=10"`
}

func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	job := &Job{
		Type:        req.Type,
		Payload:     req.Payload,
		MaxAttempts: req.MaxAttempts,
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = h.cfg.MaxAttempts
	}
	if req.ScheduledAt != nil {
		job.ScheduledAt = req.ScheduledAt.UTC()
	}

	if err := h.repo.Insert(r.Context(), job); err != nil {
		slog.Error("enqueuing job", "error", err, "type", req.Type)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, job)
}

// Get serves GET /api/v1/jobs/{jobID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid job ID"))
		return
	}

	job, err := h.repo.GetByID(r.Context(), jobID)
	if err != nil {
		slog.Error("fetching job", "error", err, "job_id", jobID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if job == nil {
		api.HandleError(w, api.NewNotFoundError("job not found"))
		return
	}

	api.JSON(w, http.StatusOK, job)
}

// List serves GET /api/v1/jobs with optional status and limit filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
	default:
		api.HandleError(w, api.NewBadRequestError("unknown status filter"))
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	listed, err := h.repo.ListRecent(r.Context(), status, limit)
	if err != nil {
		slog.Error("listing jobs", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, listed)
}
