package store

import (
	"context"
	"encoding/json"

	"cropwise/internal/types"
)

// Sibling keys written back under the sensor subtree.
const (
	keyPredictionClass    = "prediction_class"
	keyLastPredictionTime = "last_prediction_time"
)

// SensorStore is the typed view of the sensor subtree: it knows where the
// reading lives and where predictions are written back. All trigger sources
// share one SensorStore; it holds no mutable state of its own.
type SensorStore struct {
	kv   KV
	path string
}

// NewSensorStore wraps a KV backend with the sensor subtree path.
func NewSensorStore(kv KV, sensorPath string) *SensorStore {
	return &SensorStore{kv: kv, path: normalize(sensorPath)}
}

// Fetch reads the current sensor snapshot. A missing subtree yields
// ErrCodeValidationMissingField so callers treat it like an incomplete
// observation rather than a transport fault.
func (s *SensorStore) Fetch(ctx context.Context) (*types.SensorSnapshot, error) {
	raw, err := s.kv.Get(ctx, s.path)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"sensor subtree is empty", nil)
	}

	var snap types.SensorSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"sensor subtree is not a valid snapshot", err)
	}
	return &snap, nil
}

// Publish writes the prediction class and timestamp as sibling keys under
// the sensor subtree. Both writes are full overwrites, so re-publishing an
// identical result leaves the store in the same observable state. Ordering
// across concurrent publishers is last-write-wins.
func (s *SensorStore) Publish(ctx context.Context, result types.PredictionResult) error {
	if err := s.kv.Set(ctx, s.path+"/"+keyPredictionClass, result.IrrigationClass); err != nil {
		return err
	}
	return s.kv.Set(ctx, s.path+"/"+keyLastPredictionTime, result.Timestamp)
}

// Subscribe streams change events for the sensor subtree.
func (s *SensorStore) Subscribe(ctx context.Context, fn func(Event)) error {
	return s.kv.Subscribe(ctx, s.path, fn)
}

// Ping reports store reachability.
func (s *SensorStore) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

// DecodeSnapshot decodes an event payload into a sensor snapshot. Null and
// scalar payloads are rejected with a validation error rather than decoded
// into an empty snapshot.
func DecodeSnapshot(data json.RawMessage) (*types.SensorSnapshot, error) {
	if len(data) == 0 || isJSONNull(data) {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"event carries no sensor data", nil)
	}
	var snap types.SensorSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"event payload is not a sensor snapshot", err)
	}
	return &snap, nil
}
