package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropwise/internal/config"
	"cropwise/internal/pipeline"
	"cropwise/internal/store"
	"cropwise/internal/types"
)

func testConfig(mode config.TriggerMode) *config.Config {
	return &config.Config{Pipeline: config.PipelineConfig{TriggerMode: mode}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestStatusDetail_ReportsCurrentStoreReading(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	sensors := store.NewSensorStore(mem, "sensorData")
	// Out of range on purpose: the health payload shows what the store
	// holds right now, not only readings the pipeline accepted.
	require.NoError(t, mem.Set(ctx, "sensorData", map[string]any{
		"humidity":     140.0,
		"temperature":  30.0,
		"soilMoisture": 20.0,
	}))

	detail := statusDetail(testConfig(config.TriggerModeNone), sensors, nil, nil)(ctx)

	assert.Equal(t, "none", detail["trigger_mode"])
	snap, ok := detail["current_reading"].(*types.SensorSnapshot)
	require.True(t, ok)
	require.NotNil(t, snap.Humidity)
	assert.Equal(t, 140.0, *snap.Humidity)

	_, ok = detail["last_processed_reading"]
	assert.False(t, ok)
	_, ok = detail["halted"]
	assert.False(t, ok)
}

func TestStatusDetail_EmptyStoreOmitsReading(t *testing.T) {
	ctx := context.Background()
	sensors := store.NewSensorStore(store.NewMemory(), "sensorData")

	detail := statusDetail(testConfig(config.TriggerModePoll), sensors, nil, nil)(ctx)

	assert.Equal(t, "poll", detail["trigger_mode"])
	_, ok := detail["current_reading"]
	assert.False(t, ok)
}

func TestStatusDetail_IncludesTriggerProgress(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	sensors := store.NewSensorStore(mem, "sensorData")
	require.NoError(t, mem.Set(ctx, "sensorData", map[string]any{
		"humidity":     40.0,
		"temperature":  30.0,
		"soilMoisture": 20.0,
	}))

	detector := pipeline.NewChangeDetector()
	detector.MarkProcessed(types.RawReading{Humidity: 40, Temperature: 30, SoilMoisture: 20})
	governor := pipeline.NewFailureGovernor(3, quietLogger(), nil)

	detail := statusDetail(testConfig(config.TriggerModePoll), sensors, detector, governor)(ctx)

	assert.Equal(t,
		types.RawReading{Humidity: 40, Temperature: 30, SoilMoisture: 20},
		detail["last_processed_reading"])
	assert.Equal(t, false, detail["halted"])
	assert.Equal(t, 0, detail["consecutive_failures"])
	assert.NotNil(t, detail["current_reading"])
}
