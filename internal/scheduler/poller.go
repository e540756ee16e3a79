package scheduler

import (
	"context"
	"log/slog"
	"time"

	"cropwise/internal/pipeline"
	"cropwise/internal/types"
)

// SensorFetcher abstracts the sensor read the poller performs each tick.
type SensorFetcher interface {
	Fetch(ctx context.Context) (*types.SensorSnapshot, error)
}

// Poller fetches the sensor subtree on a fixed interval and feeds each
// snapshot to the pipeline. Equal-value snapshots are no-ops; fetch or run
// failures count toward the governor's consecutive failure threshold.
type Poller struct {
	source   SensorFetcher
	interval time.Duration
	proc     *processor
	logger   *slog.Logger
}

// PollerConfig holds the configuration for creating a Poller.
type PollerConfig struct {
	Source   SensorFetcher
	Interval time.Duration
	Detector *pipeline.ChangeDetector
	Runner   PipelineRunner
	Governor *pipeline.FailureGovernor
	Logger   *slog.Logger
}

// NewPoller creates a new Poller with the given configuration.
func NewPoller(cfg PollerConfig) *Poller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   cfg.Source,
		interval: cfg.Interval,
		proc: &processor{
			source:   types.TriggerPoll,
			detector: cfg.Detector,
			runner:   cfg.Runner,
			governor: cfg.Governor,
			logger:   logger,
		},
		logger: logger,
	}
}

// Name returns the trigger source identity.
func (p *Poller) Name() types.TriggerSource { return types.TriggerPoll }

// Run ticks until the context is cancelled or the governor halts. The first
// observation happens immediately rather than one interval in.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poll trigger started", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "poll trigger stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	snapshot, err := p.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return p.proc.fail(ctx, err)
	}
	return p.proc.handle(ctx, *snapshot)
}
