package types

import (
	"math"

	"github.com/go-playground/validator/v10"
)

// Sensor range constants. All components MUST validate against these.
const (
	MinHumidityPct = 0.0
	MaxHumidityPct = 100.0
	MinSoilPct     = 0.0
	MaxSoilPct     = 100.0
	MinTempC       = -60.0
	MaxTempC       = 60.0
)

// readingValidator is the shared validator instance for RawReading struct
// tags. validator.Validate is safe for concurrent use.
var readingValidator = validator.New()

// ValidateReading checks that every sensor field is a finite value within its
// physical range. Returns an AppError with ErrCodeValidationOutOfRange naming
// the offending fields, or nil when the reading is acceptable.
func ValidateReading(r RawReading) error {
	// NaN and ±Inf slip through numeric JSON only via crafted inputs, but a
	// reading constructed in-process could still carry them.
	for name, v := range map[string]float64{
		"humidity":     r.Humidity,
		"temperature":  r.Temperature,
		"soilMoisture": r.SoilMoisture,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewAppErrorWithDetails(
				ErrCodeValidationOutOfRange,
				"sensor value is not a finite number",
				nil,
				map[string]any{"field": name},
			)
		}
	}

	if err := readingValidator.Struct(r); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fieldJSONName(fe.Field()))
			}
		}
		return NewAppErrorWithDetails(
			ErrCodeValidationOutOfRange,
			"sensor value outside physical range",
			err,
			map[string]any{"fields": fields},
		)
	}
	return nil
}

// fieldJSONName maps RawReading struct field names to their wire names.
func fieldJSONName(field string) string {
	switch field {
	case "Humidity":
		return "humidity"
	case "Temperature":
		return "temperature"
	case "SoilMoisture":
		return "soilMoisture"
	default:
		return field
	}
}
