// Package artifact loads the serialized trained-model package: the
// decision-forest classifier, the fitted standard scaler, the categorical
// label encoders, and the ordered feature-column list.
//
// The bundle is loaded once at startup and is read-only thereafter; every
// component that needs it receives the same *Bundle by reference. Nothing in
// this package mutates a Bundle after Load returns, so concurrent use from
// all trigger sources requires no synchronization.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"

	"cropwise/internal/types"
)

// Bundle is the immutable artifact produced by the training process.
type Bundle struct {
	// Version identifies the training run that produced this bundle.
	Version string

	// FeatureColumns is the exact column order the scaler and classifier
	// were fitted against. Feature vectors MUST be assembled in this order;
	// a silent misalignment here produces silently wrong predictions.
	FeatureColumns []string

	// Scaler is the affine transform fitted at training time.
	Scaler *Scaler

	// Encoders maps categorical field name (district, zone, season) to its
	// fitted label encoder.
	Encoders map[string]*LabelEncoder

	// Forest is the trained classifier.
	Forest *Forest
}

// bundleFile is the on-disk JSON layout of a bundle.
type bundleFile struct {
	Version        string                  `json:"version"`
	FeatureColumns []string                `json:"feature_columns"`
	Scaler         *Scaler                 `json:"scaler"`
	Encoders       map[string]*encoderFile `json:"encoders"`
	Model          *Forest                 `json:"model"`
}

type encoderFile struct {
	Classes []string `json:"classes"`
}

// Load reads and validates a bundle from the given path. Every structural
// inconsistency (column count vs scaler shape, empty forest, missing
// encoders) is rejected here so later stages can assume a coherent bundle.
func Load(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
			fmt.Sprintf("reading model bundle %s", path), err)
	}

	var file bundleFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
			"model bundle is not valid JSON", err)
	}

	if len(file.FeatureColumns) == 0 {
		return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
			"model bundle declares no feature columns", nil)
	}
	if file.Scaler == nil {
		return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
			"model bundle is missing the scaler", nil)
	}
	if err := file.Scaler.validate(len(file.FeatureColumns)); err != nil {
		return nil, err
	}
	if file.Model == nil || len(file.Model.Trees) == 0 {
		return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
			"model bundle is missing the classifier", nil)
	}
	if err := file.Model.validate(len(file.FeatureColumns)); err != nil {
		return nil, err
	}

	encoders := make(map[string]*LabelEncoder, len(file.Encoders))
	for name, enc := range file.Encoders {
		if enc == nil || len(enc.Classes) == 0 {
			return nil, types.NewAppError(types.ErrCodeArtifactInvalid,
				fmt.Sprintf("encoder %q has no classes", name), nil)
		}
		encoders[name] = NewLabelEncoder(enc.Classes)
	}

	return &Bundle{
		Version:        file.Version,
		FeatureColumns: file.FeatureColumns,
		Scaler:         file.Scaler,
		Encoders:       encoders,
		Forest:         file.Model,
	}, nil
}

// Encoder returns the label encoder for the named categorical field.
func (b *Bundle) Encoder(name string) (*LabelEncoder, bool) {
	enc, ok := b.Encoders[name]
	return enc, ok
}

// NumFeatures returns the expected feature vector length.
func (b *Bundle) NumFeatures() int {
	return len(b.FeatureColumns)
}
