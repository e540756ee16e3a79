// Package handlers contains the HTTP handler implementations for the
// cropwise API.
//
// This file implements the prediction surface:
//   - POST /predict: score a caller-supplied reading.
//   - POST /trigger-prediction: fetch the current reading from the store and
//     score it.
//   - GET /: static capability listing.
//
// Both POST endpoints report pipeline failures inside the response body with
// an HTTP success status; callers must inspect the body, not just the
// status. This matches the store-facing integrations built against the
// service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cropwise/internal/core"
	"cropwise/internal/types"
)

// Pipeline runs the validate -> build -> infer -> publish sequence for one
// reading. Mirrors the concrete pipeline.Runner method used by this handler.
type Pipeline interface {
	Run(ctx context.Context, reading types.RawReading, source types.TriggerSource) (*types.PredictionResult, error)
}

// SensorReader fetches the current snapshot from the remote store.
type SensorReader interface {
	Fetch(ctx context.Context) (*types.SensorSnapshot, error)
}

// PredictRequest is the request body for POST /predict. Fields are pointers
// so missing keys are distinguishable from zero values.
type PredictRequest struct {
	Humidity     *float64 `json:"humidity"`
	Temperature  *float64 `json:"temperature"`
	SoilMoisture *float64 `json:"soilMoisture"`
}

// reading validates the request and returns the typed sensor reading.
func (req *PredictRequest) reading() (types.RawReading, error) {
	snap := types.SensorSnapshot{
		Humidity:     req.Humidity,
		Temperature:  req.Temperature,
		SoilMoisture: req.SoilMoisture,
	}
	return snap.Reading()
}

// TriggerPredictionResponse echoes the store reading alongside the result.
type TriggerPredictionResponse struct {
	types.PredictionResult
	Input types.RawReading `json:"input"`
}

// PredictHandler serves the request-triggered entry point. Each call is
// independent: it runs the pipeline unconditionally with no change-detection
// gating and no failure governor.
type PredictHandler struct {
	pipeline Pipeline
	sensors  SensorReader
	logger   *slog.Logger
}

// NewPredictHandler creates a new PredictHandler with the provided
// dependencies.
func NewPredictHandler(pipeline Pipeline, sensors SensorReader, logger *slog.Logger) *PredictHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictHandler{
		pipeline: pipeline,
		sensors:  sensors,
		logger:   logger,
	}
}

// RegisterRoutes mounts the prediction routes on the provided chi.Router.
func (h *PredictHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Index)
	r.Post("/predict", h.Predict)
	r.Post("/trigger-prediction", h.TriggerPrediction)
}

// Predict handles POST /predict. The caller supplies the reading directly.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	reading, err := req.reading()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.pipeline.Run(r.Context(), reading, types.TriggerRequest)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, result)
}

// TriggerPrediction handles POST /trigger-prediction. The reading is fetched
// from the remote store and echoed back with the result.
func (h *PredictHandler) TriggerPrediction(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.sensors.Fetch(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	reading, err := snapshot.Reading()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.pipeline.Run(r.Context(), reading, types.TriggerRequest)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, TriggerPredictionResponse{
		PredictionResult: *result,
		Input:            reading,
	})
}

// Index handles GET / with a static capability listing.
func (h *PredictHandler) Index(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]any{
		"service": "cropwise",
		"endpoints": map[string]string{
			"POST /predict":            "score a supplied sensor reading",
			"POST /trigger-prediction": "fetch the current reading from the store and score it",
			"GET /health":              "service and dependency health",
			"GET /metrics":             "Prometheus metrics",
		},
	})
}

// writeError embeds the structured error in a 200 response. The request
// itself succeeded; the embedded pipeline outcome did not.
func (h *PredictHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "request-triggered run failed", "error", err)

	detail := core.ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: types.GetRequestID(r.Context()),
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	}
	core.JSON(w, r, http.StatusOK, core.APIErrorResponse{Error: detail})
}
