// Package detect computes the per-sample noise signals and fuses them into
// a single risk score with a recommended action. Signal computation is pure
// given a trained model; all persistence happens upstream.
package detect

import (
	"fmt"

	"labelfix/internal/classifier"
)

// ConfidenceResult describes how the trained model relates to a sample's
// current label.
type ConfidenceResult struct {
	PredictedLabel           int
	GivenLabelConfidence     float64
	PredictedLabelConfidence float64
	Flag                     bool
}

// ConfidenceIssues scores each sample's current label against the model.
// A sample is flagged when the model predicts a different label AND assigns
// the current label less than threshold probability. Labels the model never
// saw during training get zero confidence.
func ConfidenceIssues(model classifier.Model, X [][]float64, y []int, threshold float64) ([]ConfidenceResult, error) {
	if len(X) != len(y) {
		return nil, fmt.Errorf("confidence: feature/label length mismatch: %d vs %d", len(X), len(y))
	}

	proba, err := model.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("confidence: %w", err)
	}

	classes := model.Classes()
	classIdx := make(map[int]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}

	results := make([]ConfidenceResult, len(X))
	for i, row := range proba {
		best := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		predicted := classes[best]
		predictedConf := row[best]

		givenConf := 0.0
		if j, ok := classIdx[y[i]]; ok {
			givenConf = row[j]
		}

		results[i] = ConfidenceResult{
			PredictedLabel:           predicted,
			GivenLabelConfidence:     givenConf,
			PredictedLabelConfidence: predictedConf,
			Flag:                     predicted != y[i] && givenConf < threshold,
		}
	}
	return results, nil
}
