package artifact

import (
	"fmt"

	"cropwise/internal/types"
)

// Forest is a trained decision-forest classifier exported in flattened array
// form: each tree is a set of parallel node arrays, the layout commonly
// produced when dumping scikit-learn tree ensembles.
type Forest struct {
	Trees   []Tree `json:"trees"`
	Classes []int  `json:"classes"`
}

// Tree holds one decision tree in parallel-array form. Node i is a leaf when
// Left[i] < 0; otherwise samples with feature value <= Threshold[i] descend
// to Left[i] and the rest to Right[i]. Value[i] is the class-count
// distribution at node i (meaningful at leaves).
type Tree struct {
	Feature   []int       `json:"feature"`
	Threshold []float64   `json:"threshold"`
	Left      []int       `json:"left"`
	Right     []int       `json:"right"`
	Value     [][]float64 `json:"value"`
}

// Predict returns the class label for a scaled feature vector, by summing
// each tree's leaf class distribution and taking the argmax. Read-only and
// safe for concurrent use.
func (f *Forest) Predict(scaled []float64) int {
	votes := make([]float64, len(f.Classes))
	for i := range f.Trees {
		leaf := f.Trees[i].leafDistribution(scaled)
		for c, v := range leaf {
			votes[c] += v
		}
	}

	best := 0
	for c := 1; c < len(votes); c++ {
		if votes[c] > votes[best] {
			best = c
		}
	}
	return f.Classes[best]
}

// leafDistribution walks the tree for the given sample and returns the class
// distribution at the reached leaf.
func (t *Tree) leafDistribution(sample []float64) []float64 {
	node := 0
	for t.Left[node] >= 0 {
		if sample[t.Feature[node]] <= t.Threshold[node] {
			node = t.Left[node]
		} else {
			node = t.Right[node]
		}
	}
	return t.Value[node]
}

// validate checks structural consistency of every tree against the class
// list and the declared feature-column count so that Predict can walk
// nodes without bounds checks.
func (f *Forest) validate(numColumns int) error {
	if len(f.Classes) == 0 {
		return types.NewAppError(types.ErrCodeArtifactInvalid,
			"classifier declares no classes", nil)
	}
	for ti, t := range f.Trees {
		n := len(t.Feature)
		if len(t.Threshold) != n || len(t.Left) != n || len(t.Right) != n || len(t.Value) != n {
			return types.NewAppError(types.ErrCodeArtifactInvalid,
				fmt.Sprintf("tree %d has inconsistent node arrays", ti), nil)
		}
		if n == 0 {
			return types.NewAppError(types.ErrCodeArtifactInvalid,
				fmt.Sprintf("tree %d is empty", ti), nil)
		}
		for i := 0; i < n; i++ {
			if t.Left[i] >= n || t.Right[i] >= n {
				return types.NewAppError(types.ErrCodeArtifactInvalid,
					fmt.Sprintf("tree %d node %d has out-of-range children", ti, i), nil)
			}
			if t.Left[i] >= 0 {
				if t.Feature[i] < 0 || t.Feature[i] >= numColumns {
					return types.NewAppError(types.ErrCodeArtifactInvalid,
						fmt.Sprintf("tree %d node %d splits on feature %d outside the %d declared columns",
							ti, i, t.Feature[i], numColumns), nil)
				}
				// Children must point strictly forward or the leaf walk
				// could revisit a node and never terminate.
				if t.Left[i] <= i || t.Right[i] <= i {
					return types.NewAppError(types.ErrCodeArtifactInvalid,
						fmt.Sprintf("tree %d node %d has a non-forward child pointer", ti, i), nil)
				}
			}
			if len(t.Value[i]) != len(f.Classes) {
				return types.NewAppError(types.ErrCodeArtifactInvalid,
					fmt.Sprintf("tree %d node %d distribution does not match class count", ti, i), nil)
			}
		}
	}
	return nil
}
