// This file implements the optional prediction-history surface, available
// only when a database is configured.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"cropwise/internal/core"
	"cropwise/internal/types"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryRepo provides read access to recorded pipeline runs. Mirrors the
// concrete db.HistoryRepository methods used by this handler.
type HistoryRepo interface {
	ListRecent(ctx context.Context, limit int) ([]types.PredictionRecord, error)
	Latest(ctx context.Context) (*types.PredictionRecord, error)
}

// HistoryHandler serves recorded prediction runs.
type HistoryHandler struct {
	repo   HistoryRepo
	logger *slog.Logger
}

// NewHistoryHandler creates a new HistoryHandler with the provided
// dependencies.
func NewHistoryHandler(repo HistoryRepo, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{repo: repo, logger: logger}
}

// RegisterRoutes mounts the history routes on the provided chi.Router.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/predictions/recent", h.ListRecent)
	r.Get("/predictions/latest", h.Latest)
}

// ListRecent handles GET /predictions/recent?limit=N. Unlike the prediction
// endpoints, this read-only surface uses conventional HTTP error statuses.
func (h *HistoryHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationOutOfRange,
				"limit must be a positive integer", err))
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	records, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing prediction history failed", "error", err)
		core.Error(w, r, err)
		return
	}
	if records == nil {
		records = []types.PredictionRecord{}
	}

	core.JSON(w, r, http.StatusOK, map[string]any{
		"predictions": records,
		"count":       len(records),
	})
}

// Latest handles GET /predictions/latest. An empty history is a 404.
func (h *HistoryHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.Latest(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, rec)
}
