package pipeline

import (
	"fmt"

	"labelfix/internal/store"
)

// DetectionStats aggregates one iteration's detections. FlaggedBy buckets
// detections by which signal tripped: "confidence", "anomaly", or "both".
type DetectionStats struct {
	Total           int            `json:"total"`
	ByAction        map[string]int `json:"by_action"`
	FlaggedBy       map[string]int `json:"flagged_by"`
	ConfidenceLed   int            `json:"confidence_led"`
	AnomalyLed      int            `json:"anomaly_led"`
	AveragePriority float64        `json:"average_priority"`
}

// DetectionStatsFor summarizes the detections of one iteration. Pass
// iteration < 0 for all iterations.
func (e *Engine) DetectionStatsFor(datasetID uint64, iteration int) (*DetectionStats, error) {
	detections, err := e.store.DetectionsByDataset(datasetID, iteration)
	if err != nil {
		return nil, fmt.Errorf("failed to load detections: %w", err)
	}

	stats := &DetectionStats{
		Total:     len(detections),
		ByAction:  map[string]int{},
		FlaggedBy: map[string]int{},
	}
	sum := 0.0
	for _, d := range detections {
		stats.ByAction[d.Action]++
		sum += d.Priority

		switch {
		case d.Signals.ConfidenceFlag && d.Signals.AnomalyFlag:
			stats.FlaggedBy["both"]++
		case d.Signals.ConfidenceFlag:
			stats.FlaggedBy["confidence"]++
		case d.Signals.AnomalyFlag:
			stats.FlaggedBy["anomaly"]++
		}

		// Which weighted signal dominated the combined score.
		confPart := d.Signals.Weights.Confidence * d.Signals.Confidence
		anomPart := d.Signals.Weights.Anomaly * d.Signals.Anomaly
		if confPart >= anomPart {
			stats.ConfidenceLed++
		} else {
			stats.AnomalyLed++
		}
	}
	if len(detections) > 0 {
		stats.AveragePriority = sum / float64(len(detections))
	}
	return stats, nil
}

// SuggestionStats counts a dataset's suggestions by review status.
type SuggestionStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Pending  int            `json:"pending"`
	Reviewed int            `json:"reviewed"`
}

func (e *Engine) SuggestionStatsFor(datasetID uint64) (*SuggestionStats, error) {
	suggestions, err := e.store.SuggestionsByDataset(datasetID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestions: %w", err)
	}

	stats := &SuggestionStats{Total: len(suggestions), ByStatus: map[string]int{}}
	for _, s := range suggestions {
		stats.ByStatus[s.Status]++
		if s.Status == store.StatusPending {
			stats.Pending++
		} else {
			stats.Reviewed++
		}
	}
	return stats, nil
}

// FeedbackStats describes how reviewers responded to suggestions.
// AcceptanceRate counts accepts and modifies as agreement with the
// engine's flagging, over all recorded decisions.
type FeedbackStats struct {
	Total          int            `json:"total"`
	ByAction       map[string]int `json:"by_action"`
	AcceptanceRate float64        `json:"acceptance_rate"`
}

func (e *Engine) FeedbackStatsFor(datasetID uint64) (*FeedbackStats, error) {
	feedback, err := e.store.FeedbackByDataset(datasetID, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	stats := &FeedbackStats{Total: len(feedback), ByAction: map[string]int{}}
	agreed := 0
	for _, fb := range feedback {
		stats.ByAction[fb.Action]++
		if fb.Action == store.FeedbackAccept || fb.Action == store.FeedbackModify {
			agreed++
		}
	}
	if len(feedback) > 0 {
		stats.AcceptanceRate = float64(agreed) / float64(len(feedback))
	}
	return stats, nil
}

// CorrectionSummary compares the dataset's label distribution before and
// after corrections.
type CorrectionSummary struct {
	TotalSamples         int         `json:"total_samples"`
	CorrectedSamples     int         `json:"corrected_samples"`
	SuspiciousSamples    int         `json:"suspicious_samples"`
	OriginalDistribution map[int]int `json:"original_distribution"`
	CurrentDistribution  map[int]int `json:"current_distribution"`
}

func (e *Engine) CorrectionSummaryFor(datasetID uint64) (*CorrectionSummary, error) {
	samples, err := e.store.SamplesByDataset(datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}

	summary := &CorrectionSummary{
		TotalSamples:         len(samples),
		OriginalDistribution: map[int]int{},
		CurrentDistribution:  map[int]int{},
	}
	for _, s := range samples {
		summary.OriginalDistribution[s.OriginalLabel]++
		summary.CurrentDistribution[s.CurrentLabel]++
		if s.IsCorrected {
			summary.CorrectedSamples++
		}
		if s.IsSuspicious {
			summary.SuspiciousSamples++
		}
	}
	return summary, nil
}
