// Package features implements the deterministic feature-construction step:
// a validated sensor reading plus the wall clock becomes the ordered numeric
// vector the classifier was trained on.
package features

import (
	"time"

	"cropwise/internal/artifact"
	"cropwise/internal/types"
)

// Context holds the fixed, non-sensor inputs for this deployment: the farm's
// categorical context and the rainfall placeholder. Static configuration,
// never mutated after startup.
type Context struct {
	District       string
	Zone           string
	Season         string
	RainfallNext1H float64
}

// Feature column names as declared by the training pipeline.
const (
	colSoilMoisture    = "soil_moisture_percent"
	colTemperature     = "temperature_celsius"
	colHumidity        = "humidity_percent"
	colRainfall        = "rainfall_mm_prediction_next_1h"
	colHour            = "hour"
	colDayOfYear       = "day_of_year"
	colMonth           = "month"
	colDistrictEncoded = "district_encoded"
	colZoneEncoded     = "zone_encoded"
	colSeasonEncoded   = "season_encoded"
	colHeatStress      = "heat_stress"
	colDroughtStress   = "drought_stress"
	colSoilTemp        = "soil_temp_interaction"
	colHumidityRain    = "humidity_rain_interaction"
)

// Stress thresholds from the training pipeline.
const (
	heatStressTempC       = 35.0
	heatStressHumidityPct = 50.0
	droughtSoilPct        = 30.0
	droughtRainfallMM     = 1.0
)

// Builder constructs feature vectors in the bundle's declared column order.
// The categorical context is encoded once at construction, so a category
// missing from the trained vocabulary fails startup instead of every run.
//
// Builders are immutable after construction and safe for concurrent use.
type Builder struct {
	bundle *artifact.Bundle
	fctx   Context

	districtCode float64
	zoneCode     float64
	seasonCode   float64

	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the wall-clock source. Intended for tests: the
// time-derived columns make the pipeline non-deterministic across repeated
// calls at different times, so tests must inject a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a Builder for the given bundle and farm context.
// Returns ErrCodeCategoryUnknown if a configured category is absent from its
// encoder's vocabulary, and ErrCodeArtifactInvalid if the bundle lacks an
// encoder entirely.
func NewBuilder(bundle *artifact.Bundle, fctx Context, opts ...Option) (*Builder, error) {
	b := &Builder{
		bundle: bundle,
		fctx:   fctx,
		now:    time.Now,
	}

	for field, label := range map[string]string{
		"district": fctx.District,
		"zone":     fctx.Zone,
		"season":   fctx.Season,
	} {
		enc, ok := bundle.Encoder(field)
		if !ok {
			return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
				"model bundle has no encoder for "+field, nil)
		}
		code, err := enc.Encode(label)
		if err != nil {
			return nil, err
		}
		switch field {
		case "district":
			b.districtCode = float64(code)
		case "zone":
			b.zoneCode = float64(code)
		case "season":
			b.seasonCode = float64(code)
		}
	}

	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build constructs the feature vector for a validated reading at the instant
// of invocation. Columns are assembled by name against the bundle's declared
// order, never by positional assumption, so a retrained artifact with a
// different column order keeps working (or fails loudly if it names a column
// this builder cannot produce).
func (b *Builder) Build(reading types.RawReading) ([]float64, error) {
	now := b.now().UTC()

	rainfall := b.fctx.RainfallNext1H

	heatStress := 0.0
	if reading.Temperature > heatStressTempC && reading.Humidity < heatStressHumidityPct {
		heatStress = 1.0
	}
	droughtStress := 0.0
	if reading.SoilMoisture < droughtSoilPct && rainfall < droughtRainfallMM {
		droughtStress = 1.0
	}

	byName := map[string]float64{
		colSoilMoisture:    reading.SoilMoisture,
		colTemperature:     reading.Temperature,
		colHumidity:        reading.Humidity,
		colRainfall:        rainfall,
		colHour:            float64(now.Hour()),
		colDayOfYear:       float64(now.YearDay()),
		colMonth:           float64(now.Month()),
		colDistrictEncoded: b.districtCode,
		colZoneEncoded:     b.zoneCode,
		colSeasonEncoded:   b.seasonCode,
		colHeatStress:      heatStress,
		colDroughtStress:   droughtStress,
		colSoilTemp:        reading.SoilMoisture * reading.Temperature,
		colHumidityRain:    reading.Humidity * rainfall,
	}

	vec := make([]float64, 0, b.bundle.NumFeatures())
	for _, col := range b.bundle.FeatureColumns {
		v, ok := byName[col]
		if !ok {
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeArtifactInvalid,
				"model bundle names a feature column this service cannot produce",
				nil,
				map[string]any{"column": col},
			)
		}
		vec = append(vec, v)
	}
	return vec, nil
}

// Context returns the farm context the builder was constructed with.
func (b *Builder) Context() Context {
	return b.fctx
}
