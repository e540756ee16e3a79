package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwise/internal/types"
)

func fptr(v float64) *float64 { return &v }

func snapshot(h, temp, soil float64) types.SensorSnapshot {
	return types.SensorSnapshot{
		Humidity:     fptr(h),
		Temperature:  fptr(temp),
		SoilMoisture: fptr(soil),
	}
}

func TestObserve_FirstObservationIsChanged(t *testing.T) {
	d := NewChangeDetector()

	reading, changed, err := d.Observe(snapshot(40, 30, 20))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.RawReading{Humidity: 40, Temperature: 30, SoilMoisture: 20}, reading)
}

func TestObserve_MetadataChangesAreNoOps(t *testing.T) {
	d := NewChangeDetector()

	reading, changed, err := d.Observe(snapshot(40, 30, 20))
	require.NoError(t, err)
	require.True(t, changed)
	d.MarkProcessed(reading)

	// Same sensor values, different write-back metadata: must not trigger.
	next := snapshot(40, 30, 20)
	class := 2
	ts := "2026-06-15T13:45:00Z"
	next.PredictionClass = &class
	next.LastPredictionTime = &ts

	_, changed, err = d.Observe(next)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestObserve_AnySensorFieldChangeTriggers(t *testing.T) {
	base := types.RawReading{Humidity: 40, Temperature: 30, SoilMoisture: 20}

	tests := []struct {
		name string
		snap types.SensorSnapshot
	}{
		{"humidity changed", snapshot(41, 30, 20)},
		{"temperature changed", snapshot(40, 31, 20)},
		{"soil moisture changed", snapshot(40, 30, 21)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewChangeDetector()
			d.MarkProcessed(base)

			_, changed, err := d.Observe(tt.snap)
			require.NoError(t, err)
			assert.True(t, changed)
		})
	}
}

func TestObserve_MissingFieldDoesNotAdvanceState(t *testing.T) {
	d := NewChangeDetector()

	reading, changed, err := d.Observe(snapshot(40, 30, 20))
	require.NoError(t, err)
	require.True(t, changed)
	d.MarkProcessed(reading)

	bad := snapshot(41, 30, 20)
	bad.SoilMoisture = nil

	_, _, err = d.Observe(bad)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)

	// State untouched: the old reading is still the last processed one.
	last, ok := d.Last()
	require.True(t, ok)
	assert.Equal(t, types.RawReading{Humidity: 40, Temperature: 30, SoilMoisture: 20}, last)
}

func TestObserve_OutOfRangeIsRejected(t *testing.T) {
	d := NewChangeDetector()

	_, _, err := d.Observe(snapshot(140, 30, 20))
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationOutOfRange, appErr.Code)
}

func TestObserve_FailedRunRetriesSameReading(t *testing.T) {
	d := NewChangeDetector()

	// First observation triggers, but the run fails: MarkProcessed is never
	// called, so the identical reading triggers again.
	_, changed, err := d.Observe(snapshot(40, 30, 20))
	require.NoError(t, err)
	require.True(t, changed)

	_, changed, err = d.Observe(snapshot(40, 30, 20))
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestLast_EmptyDetector(t *testing.T) {
	d := NewChangeDetector()
	_, ok := d.Last()
	assert.False(t, ok)
}
