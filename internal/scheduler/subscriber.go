package scheduler

import (
	"context"
	"log/slog"
	"time"

	"cropwise/internal/pipeline"
	"cropwise/internal/store"
	"cropwise/internal/types"
)

// resubscribeDelay spaces out reconnect attempts after a stream dies.
const resubscribeDelay = 2 * time.Second

// SensorStream abstracts the store subscription plus the initial read the
// subscriber performs before streaming.
type SensorStream interface {
	Fetch(ctx context.Context) (*types.SensorSnapshot, error)
	Subscribe(ctx context.Context, fn func(store.Event)) error
}

// Subscriber reacts to store change events for the sensor subtree. Events
// addressed below the subtree root are the service's own prediction
// write-backs and are ignored without touching the governor; only full
// subtree puts and patches are decoded and processed.
type Subscriber struct {
	stream SensorStream
	proc   *processor
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration)
}

// SubscriberConfig holds the configuration for creating a Subscriber.
type SubscriberConfig struct {
	Stream   SensorStream
	Detector *pipeline.ChangeDetector
	Runner   PipelineRunner
	Governor *pipeline.FailureGovernor
	Logger   *slog.Logger
}

// NewSubscriber creates a new Subscriber with the given configuration.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		stream: cfg.Stream,
		proc: &processor{
			source:   types.TriggerPush,
			detector: cfg.Detector,
			runner:   cfg.Runner,
			governor: cfg.Governor,
			logger:   logger,
		},
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Name returns the trigger source identity.
func (s *Subscriber) Name() types.TriggerSource { return types.TriggerPush }

// Run processes the current snapshot once, then streams change events until
// the context is cancelled or the governor halts. A dead stream counts as
// one failure and is re-established after a short delay.
func (s *Subscriber) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "push trigger started")

	// Process whatever is already in the store so a reading written while
	// the service was down is not lost until the next external write.
	if err := s.observeCurrent(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "push trigger stopped")
			return nil
		}

		subCtx, cancel := context.WithCancel(ctx)
		var haltErr error
		err := s.stream.Subscribe(subCtx, func(ev store.Event) {
			if hErr := s.handleEvent(subCtx, ev); hErr != nil {
				haltErr = hErr
				cancel()
			}
		})
		cancel()

		if haltErr != nil {
			return haltErr
		}
		if ctx.Err() != nil {
			s.logger.InfoContext(ctx, "push trigger stopped")
			return nil
		}
		if err != nil {
			if fErr := s.proc.fail(ctx, err); fErr != nil {
				return fErr
			}
		}
		s.logger.WarnContext(ctx, "store subscription ended, reconnecting",
			"delay", resubscribeDelay.String(),
			"error", err,
		)
		s.sleep(ctx, resubscribeDelay)
	}
}

func (s *Subscriber) observeCurrent(ctx context.Context) error {
	snapshot, err := s.stream.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return s.proc.fail(ctx, err)
	}
	return s.proc.handle(ctx, *snapshot)
}

// handleEvent processes one stream event. Non-data events and events for
// sibling keys (the publisher's own writes) are dropped silently.
func (s *Subscriber) handleEvent(ctx context.Context, ev store.Event) error {
	if ev.Type != store.EventPut && ev.Type != store.EventPatch {
		return nil
	}
	if !isRootPath(ev.Path) {
		// A write beneath the subtree root, such as prediction_class. Not a
		// new observation.
		return nil
	}

	snapshot, err := store.DecodeSnapshot(ev.Data)
	if err != nil {
		return s.proc.fail(ctx, err)
	}
	return s.proc.handle(ctx, *snapshot)
}

// isRootPath reports whether an event path addresses the subscribed subtree
// itself rather than a key beneath it.
func isRootPath(path string) bool {
	return path == "" || path == "/"
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
