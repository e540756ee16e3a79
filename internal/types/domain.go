// Package types defines the shared domain records and error taxonomy for the
// cropwise irrigation service. It has no dependencies on other internal
// packages so that every layer can import it freely.
package types

import "time"

// TriggerSource identifies the entry point that initiated a pipeline run.
type TriggerSource string

const (
	TriggerRequest TriggerSource = "request"
	TriggerPoll    TriggerSource = "poll"
	TriggerPush    TriggerSource = "push"
)

// RawReading is a validated sensor observation. Humidity and SoilMoisture are
// percentages; Temperature is in degrees Celsius. Construct via
// SensorSnapshot.Reading or ValidateReading to guarantee the ranges hold.
type RawReading struct {
	Humidity     float64 `json:"humidity" validate:"gte=0,lte=100"`
	Temperature  float64 `json:"temperature" validate:"gte=-60,lte=60"`
	SoilMoisture float64 `json:"soilMoisture" validate:"gte=0,lte=100"`
}

// Equal reports whether two readings carry identical sensor values.
// Only the three sensor fields participate; this is the comparison the
// change detector relies on to ignore metadata written back by the service.
func (r RawReading) Equal(other RawReading) bool {
	return r.Humidity == other.Humidity &&
		r.Temperature == other.Temperature &&
		r.SoilMoisture == other.SoilMoisture
}

// SensorSnapshot is the raw shape fetched from the remote store's sensor
// subtree. Sensor fields are pointers so that missing keys are detectable;
// the prediction fields are the service's own write-backs and are carried
// only so callers can surface them (never compared or re-processed).
type SensorSnapshot struct {
	Humidity     *float64 `json:"humidity"`
	Temperature  *float64 `json:"temperature"`
	SoilMoisture *float64 `json:"soilMoisture"`

	PredictionClass    *int    `json:"prediction_class,omitempty"`
	LastPredictionTime *string `json:"last_prediction_time,omitempty"`
}

// Reading validates the snapshot and returns the typed sensor reading.
// A missing sensor field yields ErrCodeValidationMissingField; an
// out-of-range value yields ErrCodeValidationOutOfRange.
func (s *SensorSnapshot) Reading() (RawReading, error) {
	var missing []string
	if s.Humidity == nil {
		missing = append(missing, "humidity")
	}
	if s.Temperature == nil {
		missing = append(missing, "temperature")
	}
	if s.SoilMoisture == nil {
		missing = append(missing, "soilMoisture")
	}
	if len(missing) > 0 {
		return RawReading{}, NewAppErrorWithDetails(
			ErrCodeValidationMissingField,
			"sensor snapshot is missing required fields",
			nil,
			map[string]any{"fields": missing},
		)
	}

	reading := RawReading{
		Humidity:     *s.Humidity,
		Temperature:  *s.Temperature,
		SoilMoisture: *s.SoilMoisture,
	}
	if err := ValidateReading(reading); err != nil {
		return RawReading{}, err
	}
	return reading, nil
}

// PredictionResult is the outcome of one successful pipeline run.
// Timestamp is RFC3339 in UTC. The store retains only the latest value.
type PredictionResult struct {
	IrrigationClass int    `json:"irrigation_class"`
	Timestamp       string `json:"timestamp"`
	ModelVersion    string `json:"model_version,omitempty"`
}

// PredictionRecord is the persisted form of a pipeline run, kept in the
// optional history table for after-the-fact verification.
type PredictionRecord struct {
	ID              string        `json:"id"`
	Source          TriggerSource `json:"source"`
	Reading         RawReading    `json:"reading"`
	IrrigationClass int           `json:"irrigation_class"`
	ModelVersion    string        `json:"model_version"`
	CreatedAt       time.Time     `json:"created_at"`
}
