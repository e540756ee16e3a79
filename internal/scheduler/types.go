// Package scheduler implements the background trigger sources that drive the
// inference pipeline: a fixed-interval poller and a store change subscriber.
// A deployment runs at most one of them; both funnel every observation
// through the same change detector, runner and failure governor.
package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"cropwise/internal/pipeline"
	"cropwise/internal/types"
)

// Trigger is a background trigger source. Run blocks until the context is
// cancelled (nil return), or the failure governor halts the source
// (pipeline.ErrHalted).
type Trigger interface {
	Name() types.TriggerSource
	Run(ctx context.Context) error
}

// PipelineRunner abstracts the pipeline entry point. Using an interface
// allows clean testing without a real model or store.
type PipelineRunner interface {
	Run(ctx context.Context, reading types.RawReading, source types.TriggerSource) (*types.PredictionResult, error)
}

// processor is the observation handling shared by the poller and the
// subscriber: change-detect, run, and advance processing state only on full
// success. Every failure feeds the governor.
type processor struct {
	source   types.TriggerSource
	detector *pipeline.ChangeDetector
	runner   PipelineRunner
	governor *pipeline.FailureGovernor
	logger   *slog.Logger
}

// handle processes one snapshot. It returns pipeline.ErrHalted when the
// governor trips; all other outcomes (success, no-op, recoverable failure)
// return nil.
func (p *processor) handle(ctx context.Context, snapshot types.SensorSnapshot) error {
	reading, changed, err := p.detector.Observe(snapshot)
	if err != nil {
		return p.fail(ctx, err)
	}
	if !changed {
		// The observation cycle completed cleanly even though nothing ran.
		p.governor.Success()
		return nil
	}

	if _, err := p.runner.Run(ctx, reading, p.source); err != nil {
		return p.fail(ctx, err)
	}

	p.detector.MarkProcessed(reading)
	p.governor.Success()
	return nil
}

// fail records a failure with the governor and translates a trip into
// ErrHalted for the caller's loop.
func (p *processor) fail(ctx context.Context, err error) error {
	if gErr := p.governor.Record(err); gErr != nil {
		return gErr
	}
	p.logger.WarnContext(ctx, "trigger observation failed",
		"source", string(p.source),
		"error", err,
	)
	return nil
}

// IsHalted reports whether err is the governor's terminal halt.
func IsHalted(err error) bool {
	return errors.Is(err, pipeline.ErrHalted)
}
