package artifact

import (
	"fmt"

	"cropwise/internal/types"
)

// LabelEncoder maps categorical labels to the integer codes the model was
// trained with. The code of a label is its index in the fitted class list,
// matching scikit-learn's LabelEncoder semantics.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// NewLabelEncoder builds an encoder over the fitted class list. Order is
// significant: it defines the codes.
func NewLabelEncoder(classes []string) *LabelEncoder {
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &LabelEncoder{classes: classes, index: idx}
}

// Encode returns the integer code for label. A label absent from the trained
// vocabulary yields ErrCodeCategoryUnknown, a deployment-time
// misconfiguration (the farm context names a category the model never saw)
// rather than a runtime sensor fault.
func (e *LabelEncoder) Encode(label string) (int, error) {
	code, ok := e.index[label]
	if !ok {
		return 0, types.NewAppErrorWithDetails(
			types.ErrCodeCategoryUnknown,
			fmt.Sprintf("category %q is not in the encoder's trained vocabulary", label),
			nil,
			map[string]any{"label": label, "known": e.classes},
		)
	}
	return code, nil
}

// Classes returns the fitted class list in code order.
func (e *LabelEncoder) Classes() []string {
	return e.classes
}
