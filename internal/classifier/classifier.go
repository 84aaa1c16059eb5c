// Package classifier provides a uniform training and prediction interface
// over interchangeable model families. All implementations expose the same
// three operations (Train, Predict, PredictProba) aligned to a stable class
// ordering, so signal code downstream never special-cases the model family.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrUnsupportedModel is returned by New for unknown model keys.
var ErrUnsupportedModel = errors.New("unsupported model")

// Model is the capability contract every classifier implements.
// Train mutates internal model state only; no I/O.
type Model interface {
	// Train fits the model on the feature matrix X and labels y.
	Train(X [][]float64, y []int) error
	// Predict returns the most likely label per row.
	Predict(X [][]float64) ([]int, error)
	// PredictProba returns a per-class probability matrix whose columns
	// are aligned to Classes().
	PredictProba(X [][]float64) ([][]float64, error)
	// Classes returns the label set learned during training, in
	// ascending order. Empty before Train.
	Classes() []int
}

// Params carries model hyperparameters by name. Unknown keys are ignored
// by implementations; missing keys fall back to defaults.
type Params map[string]float64

func (p Params) Int(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// New constructs a classifier by its registry key. Unknown keys fail fast
// with ErrUnsupportedModel.
func New(name string, params Params) (Model, error) {
	switch name {
	case "random_forest":
		return newForest(params), nil
	case "logistic":
		return newLogistic(params), nil
	case "svm", "margin":
		return newMargin(params), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}
}

// validateTrainingData checks shape and finiteness of the inputs.
// A malformed row fails the whole call.
func validateTrainingData(X [][]float64, y []int) (int, error) {
	if len(X) == 0 {
		return 0, errors.New("empty feature matrix")
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("feature/label length mismatch: %d vs %d", len(X), len(y))
	}
	nFeatures := len(X[0])
	if nFeatures == 0 {
		return 0, errors.New("feature rows are empty")
	}
	if err := validateFeatures(X, nFeatures); err != nil {
		return 0, err
	}
	return nFeatures, nil
}

func validateFeatures(X [][]float64, nFeatures int) error {
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(row), nFeatures)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("row %d feature %d is not finite: %f", i, j, v)
			}
		}
	}
	return nil
}

// classesOf returns the sorted set of distinct labels.
func classesOf(y []int) []int {
	seen := make(map[int]struct{}, len(y))
	for _, label := range y {
		seen[label] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for label := range seen {
		classes = append(classes, label)
	}
	sort.Ints(classes)
	return classes
}

func classIndexOf(classes []int) map[int]int {
	idx := make(map[int]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return idx
}

// argmaxRow returns the index of the largest value, first wins on ties.
func argmaxRow(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}
