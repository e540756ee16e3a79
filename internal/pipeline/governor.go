package pipeline

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrHalted is returned by FailureGovernor.Record once the consecutive
// failure threshold has been reached. The owning trigger loop must stop
// permanently; the HTTP surface stays up so operators can diagnose.
var ErrHalted = errors.New("pipeline halted: consecutive failure threshold reached")

// HaltFunc is invoked exactly once when the governor trips, after the halted
// state is set. Used to bump metrics and emit the terminal log line.
type HaltFunc func(failures int)

// FailureGovernor counts consecutive pipeline failures for one trigger
// source and converts a run of them into a terminal halt. Any success resets
// the count. Once halted it never recovers; a restart is the only way back.
type FailureGovernor struct {
	mu        sync.Mutex
	threshold int
	failures  int
	halted    bool
	onHalt    HaltFunc
	logger    *slog.Logger
}

// NewFailureGovernor creates a governor that halts after threshold
// consecutive failures. onHalt may be nil.
func NewFailureGovernor(threshold int, logger *slog.Logger, onHalt HaltFunc) *FailureGovernor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailureGovernor{
		threshold: threshold,
		onHalt:    onHalt,
		logger:    logger,
	}
}

// Record counts a failed run. It returns ErrHalted when this failure reaches
// the threshold, or when the governor had already halted.
func (g *FailureGovernor) Record(err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return ErrHalted
	}

	g.failures++
	g.logger.Warn("pipeline run failed",
		"consecutive_failures", g.failures,
		"threshold", g.threshold,
		"error", err,
	)

	if g.failures < g.threshold {
		return nil
	}

	g.halted = true
	g.logger.Error("pipeline halted after consecutive failures",
		"consecutive_failures", g.failures,
		"threshold", g.threshold,
	)
	if g.onHalt != nil {
		g.onHalt(g.failures)
	}
	return ErrHalted
}

// Success resets the consecutive failure count. It is a no-op after a halt.
func (g *FailureGovernor) Success() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.halted {
		return
	}
	g.failures = 0
}

// Halted reports whether the governor has tripped.
func (g *FailureGovernor) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted
}

// Failures returns the current consecutive failure count.
func (g *FailureGovernor) Failures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
