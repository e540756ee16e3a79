package pipeline

import (
	"sync"

	"cropwise/internal/types"
)

// ChangeDetector decides whether an incoming snapshot warrants a pipeline
// run. Only the three sensor values participate in the comparison, so the
// service's own prediction write-backs never re-trigger processing.
//
// The last processed reading advances only through MarkProcessed, which the
// trigger source calls after a fully successful run. A failed run therefore
// leaves the detector primed to retry the same reading.
type ChangeDetector struct {
	mu   sync.Mutex
	last *types.RawReading
}

// NewChangeDetector returns a detector with no processing history; the first
// valid observation always reports as changed.
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// Observe validates the snapshot and reports whether it differs from the
// last processed reading. Invalid snapshots (missing or out-of-range sensor
// fields) return the validation error and leave the stored state untouched.
func (d *ChangeDetector) Observe(snapshot types.SensorSnapshot) (types.RawReading, bool, error) {
	reading, err := snapshot.Reading()
	if err != nil {
		return types.RawReading{}, false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last != nil && d.last.Equal(reading) {
		return reading, false, nil
	}
	return reading, true, nil
}

// MarkProcessed records the reading as handled. Call it only after the run
// for this reading has succeeded end to end.
func (d *ChangeDetector) MarkProcessed(reading types.RawReading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := reading
	d.last = &r
}

// Last returns the most recently processed reading, if any. Used by the
// health endpoint to expose pipeline progress.
func (d *ChangeDetector) Last() (types.RawReading, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return types.RawReading{}, false
	}
	return *d.last, true
}
