// Package inference wraps the artifact bundle's scaler and classifier into a
// single scoring call.
package inference

import (
	"cropwise/internal/artifact"
)

// Engine scores feature vectors against a loaded bundle. It is pure and
// stateless: no I/O, no mutation of shared state, safe to call concurrently
// from every trigger source without synchronization.
type Engine struct {
	scaler  *artifact.Scaler
	forest  *artifact.Forest
	version string
	width   int
}

// NewEngine creates an Engine over the given bundle.
func NewEngine(bundle *artifact.Bundle) *Engine {
	return &Engine{
		scaler:  bundle.Scaler,
		forest:  bundle.Forest,
		version: bundle.Version,
		width:   bundle.NumFeatures(),
	}
}

// Predict applies the fitted scaler and then the classifier, returning the
// discrete irrigation class. A vector whose length does not match the
// scaler's expected shape yields ErrCodeInferenceShape; the feature builder
// is responsible for never producing one.
func (e *Engine) Predict(vec []float64) (int, error) {
	scaled, err := e.scaler.Transform(vec)
	if err != nil {
		return 0, err
	}
	return e.forest.Predict(scaled), nil
}

// ModelVersion returns the bundle version the engine scores with.
func (e *Engine) ModelVersion() string {
	return e.version
}

// NumFeatures returns the expected feature vector length.
func (e *Engine) NumFeatures() int {
	return e.width
}
