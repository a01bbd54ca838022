package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quitforge/aigateway/internal/api"
	"github.com/quitforge/aigateway/internal/budget"
)

type Handler struct {
	gw       *Gateway
	validate *validator.Validate
}

func NewHandler(gw *Gateway) *Handler {
	return &Handler{
		gw:       gw,
		validate: validator.New(),
	}
}

// GenerateRequest is the body of POST /api/v1/generate.
type GenerateRequest struct {
	UserID      string  `json:"user_id" validate:"required,uuid"`
	Tier        string  `json:"tier" validate:"omitempty,oneof=free premium"`
	Feature     string  `json:"feature" validate:"required,max=64"`
	Prompt      string  `json:"prompt" validate:"required,max=8192"`
	Category    string  `json:"category" validate:"omitempty,max=64"`
	Model       string  `json:"model" validate:"omitempty,max=64"`
	MaxTokens   int     `json:"max_tokens" validate:"omitempty,min=1,max=16384"`
	Temperature float64 `json:"temperature" validate:"omitempty,min=0,max=2"`
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user ID"))
		return
	}

	result, err := h.gw.Generate(r.Context(), userID, budget.ParseTier(req.Tier), req.Feature, Descriptor{
		Prompt:      req.Prompt,
		Category:    req.Category,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		// Soft conditions (budget, rate, provider) come back as degraded
		// results, so a hard error here means malformed input.
		slog.Warn("rejecting generate request", "error", err, "user_id", userID, "feature", req.Feature)
		api.HandleError(w, api.NewBadRequestError(err.Error()))
		return
	}

	api.JSON(w, http.StatusOK, result)
}
