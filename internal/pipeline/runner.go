// Package pipeline implements the observation-driven inference pipeline:
// change detection gates a run, the feature builder and inference engine
// score the reading, and the result publisher writes back to the store.
// One authoritative implementation serves every trigger source.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cropwise/internal/features"
	"cropwise/internal/inference"
	"cropwise/internal/types"
)

// ResultPublisher writes a prediction result to the remote store. The write
// must be idempotent and fully overwriting; ordering across concurrent
// callers is last-write-wins.
type ResultPublisher interface {
	Publish(ctx context.Context, result types.PredictionResult) error
}

// HistoryRecorder persists a run to the optional prediction-history table.
type HistoryRecorder interface {
	Record(ctx context.Context, rec types.PredictionRecord) error
}

// Metrics receives per-run observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveRun(source types.TriggerSource, code types.ErrorCode, duration time.Duration)
}

// Runner executes the validate -> build -> infer -> publish sequence. It is
// stateless (per-source processing state lives in the ChangeDetector), so a
// single Runner is shared by all trigger sources.
type Runner struct {
	builder *features.Builder
	engine  *inference.Engine
	pub     ResultPublisher
	history HistoryRecorder // nil when history is disabled
	metrics Metrics         // nil when metrics are not wired
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// RunnerConfig holds the dependencies for creating a Runner.
type RunnerConfig struct {
	Builder   *features.Builder
	Engine    *inference.Engine
	Publisher ResultPublisher
	History   HistoryRecorder
	Metrics   Metrics
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string
}

// NewRunner creates a Runner. History and Metrics may be nil; Now and NewID
// default to the real clock and random IDs.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = defaultNewID
	}
	return &Runner{
		builder: cfg.Builder,
		engine:  cfg.Engine,
		pub:     cfg.Publisher,
		history: cfg.History,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
		newID:   newID,
	}
}

// Run scores a validated reading and publishes the result. On any error the
// store is left untouched past the point of failure and the caller's
// processing state must not advance. The returned result is non-nil exactly
// when err is nil.
func (r *Runner) Run(ctx context.Context, reading types.RawReading, source types.TriggerSource) (*types.PredictionResult, error) {
	start := r.now()

	result, err := r.run(ctx, reading, source)

	if r.metrics != nil {
		r.metrics.ObserveRun(source, errorCode(err), r.now().Sub(start))
	}
	return result, err
}

func (r *Runner) run(ctx context.Context, reading types.RawReading, source types.TriggerSource) (*types.PredictionResult, error) {
	vec, err := r.builder.Build(reading)
	if err != nil {
		return nil, err
	}

	class, err := r.engine.Predict(vec)
	if err != nil {
		return nil, err
	}

	result := types.PredictionResult{
		IrrigationClass: class,
		Timestamp:       r.now().UTC().Format(time.RFC3339),
		ModelVersion:    r.engine.ModelVersion(),
	}

	if err := r.pub.Publish(ctx, result); err != nil {
		return nil, err
	}

	// History is an audit trail, not part of the pipeline contract: a failed
	// insert is logged but does not fail the run (the store write already
	// landed and must not be retried as if it hadn't).
	if r.history != nil {
		rec := types.PredictionRecord{
			ID:              r.newID(),
			Source:          source,
			Reading:         reading,
			IrrigationClass: class,
			ModelVersion:    r.engine.ModelVersion(),
			CreatedAt:       r.now().UTC(),
		}
		if err := r.history.Record(ctx, rec); err != nil {
			r.logger.WarnContext(ctx, "prediction history insert failed",
				"source", string(source),
				"error", err,
			)
		}
	}

	r.logger.InfoContext(ctx, "pipeline run complete",
		"source", string(source),
		"irrigation_class", class,
		"timestamp", result.Timestamp,
	)
	return &result, nil
}

// errorCode extracts the AppError code for metrics labels; nil errors map to
// the empty code.
func errorCode(err error) types.ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return types.ErrCodeInternalUnexpected
}

func defaultNewID() string {
	return uuid.NewString()
}
