package detect

import (
	"fmt"
	"math"
	"strings"

	"labelfix/internal/common"
)

// Fusion is the weighted combination of both risk signals for one sample.
type Fusion struct {
	ConfidenceRisk float64
	AnomalyRisk    float64
	Combined       float64
}

// Fuse combines the two signals into a single risk score in [0, 1].
// Confidence risk only contributes when the confidence signal flagged the
// sample; anomaly risk always contributes. That asymmetry keeps unflagged
// samples from accruing risk off a confidently-correct prediction while
// still letting outlier geometry raise the score on its own.
func Fuse(conf ConfidenceResult, anom AnomalyResult, confWeight, anomWeight float64) (Fusion, error) {
	if math.Abs(confWeight+anomWeight-1.0) > common.WeightSumTolerance {
		return Fusion{}, fmt.Errorf("fusion weights must sum to 1.0, got %f + %f", confWeight, anomWeight)
	}

	confRisk := 0.0
	if conf.Flag {
		confRisk = conf.PredictedLabelConfidence
	}
	anomRisk := anom.Score

	return Fusion{
		ConfidenceRisk: confRisk,
		AnomalyRisk:    anomRisk,
		Combined:       confWeight*confRisk + anomWeight*anomRisk,
	}, nil
}

// Action is the recommended disposition for a sample's current label.
type Action string

const (
	ActionKeep   Action = "KEEP"
	ActionReview Action = "REVIEW"
	ActionReject Action = "REJECT"
)

// Decide maps a combined risk score to an action. Both thresholds are
// inclusive lower bounds.
func Decide(risk, reviewThreshold, rejectThreshold float64) Action {
	switch {
	case risk >= rejectThreshold:
		return ActionReject
	case risk >= reviewThreshold:
		return ActionReview
	default:
		return ActionKeep
	}
}

// Explain produces the human-readable reason shown to reviewers next to a
// flagged sample.
func Explain(conf ConfidenceResult, anomalyRisk float64) string {
	var reasons []string
	if conf.Flag {
		reasons = append(reasons, fmt.Sprintf("Model confident (%.0f%%) in different label", conf.PredictedLabelConfidence*100))
	}
	if anomalyRisk >= 0.5 {
		reasons = append(reasons, fmt.Sprintf("Anomalous features detected (%.0f%%)", anomalyRisk*100))
	}
	if len(reasons) == 0 {
		return "Low risk signals"
	}
	return strings.Join(reasons, "; ")
}
