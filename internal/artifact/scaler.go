package artifact

import (
	"fmt"

	"cropwise/internal/types"
)

// Scaler is a fitted standard scaler: an element-wise affine transform
// x' = (x - mean) / scale, with mean and scale learned at training time.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NumFeatures returns the input length the scaler was fitted against.
func (s *Scaler) NumFeatures() int {
	return len(s.Mean)
}

// Transform applies the affine transform to vec, returning a new slice.
// The input is never modified. A length mismatch yields
// ErrCodeInferenceShape; by contract the feature builder validates shapes
// before inference, so hitting this at runtime indicates a wiring defect.
func (s *Scaler) Transform(vec []float64) ([]float64, error) {
	if len(vec) != len(s.Mean) {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeInferenceShape,
			"feature vector length does not match scaler shape",
			nil,
			map[string]any{"got": len(vec), "want": len(s.Mean)},
		)
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// validate checks internal consistency against the declared column count.
func (s *Scaler) validate(numColumns int) error {
	if len(s.Mean) != numColumns || len(s.Scale) != numColumns {
		return types.NewAppError(types.ErrCodeArtifactInvalid,
			fmt.Sprintf("scaler shape (%d/%d) does not match %d feature columns",
				len(s.Mean), len(s.Scale), numColumns), nil)
	}
	for i, sc := range s.Scale {
		if sc == 0 {
			return types.NewAppError(types.ErrCodeArtifactInvalid,
				fmt.Sprintf("scaler has zero scale at column %d", i), nil)
		}
	}
	return nil
}
