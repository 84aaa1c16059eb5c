// Package store persists datasets, detection results, and the review
// ledger in a single bbolt file. Records are JSON-encoded under
// monotonically increasing 8-byte keys; multi-record invariants are
// enforced by doing related writes inside one transaction.
package store

import (
	"time"

	"labelfix/internal/classifier"
)

// Suggestion review states.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusModified = "modified"
)

// Feedback actions recorded in the ledger.
const (
	FeedbackAccept = "accept"
	FeedbackReject = "reject"
	FeedbackModify = "modify"
)

// Dataset is an imported labeled dataset. FeatureColumns preserves the
// original CSV header order for export.
type Dataset struct {
	ID             uint64    `json:"id"`
	Name           string    `json:"name"`
	FeatureColumns []string  `json:"feature_columns"`
	LabelColumn    string    `json:"label_column"`
	SampleCount    int       `json:"sample_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// Sample is one row of a dataset. OriginalLabel never changes after
// import; CurrentLabel moves as corrections are applied.
type Sample struct {
	ID            uint64    `json:"id"`
	DatasetID     uint64    `json:"dataset_id"`
	SampleIndex   int       `json:"sample_index"`
	Features      []float64 `json:"features"`
	OriginalLabel int       `json:"original_label"`
	CurrentLabel  int       `json:"current_label"`
	IsSuspicious  bool      `json:"is_suspicious"`
	IsCorrected   bool      `json:"is_corrected"`
}

// PriorityWeights records the fusion weights in force when a detection
// was produced, so old detections stay interpretable after reconfiguration.
type PriorityWeights struct {
	Confidence float64 `json:"confidence"`
	Anomaly    float64 `json:"anomaly"`
}

// SignalBreakdown decomposes a combined risk score into its parts.
type SignalBreakdown struct {
	Confidence     float64         `json:"confidence"`
	Anomaly        float64         `json:"anomaly"`
	ConfidenceFlag bool            `json:"confidence_flag"`
	AnomalyFlag    bool            `json:"anomaly_flag"`
	Weights        PriorityWeights `json:"weights"`
}

// Detection is a flagged sample from one detection run. At most one
// detection exists per (sample, iteration); reruns replace the iteration's
// detections wholesale.
type Detection struct {
	ID                       uint64          `json:"id"`
	DatasetID                uint64          `json:"dataset_id"`
	SampleID                 uint64          `json:"sample_id"`
	Iteration                int             `json:"iteration"`
	PredictedLabel           int             `json:"predicted_label"`
	GivenLabelConfidence     float64         `json:"given_label_confidence"`
	PredictedLabelConfidence float64         `json:"predicted_label_confidence"`
	Priority                 float64         `json:"priority"`
	Signals                  SignalBreakdown `json:"signals"`
	Action                   string          `json:"action"`
	Reason                   string          `json:"reason"`
	CreatedAt                time.Time       `json:"created_at"`
}

// Suggestion is a reviewable correction proposal materialized from a
// detection. DatasetID, Iteration and SampleID are denormalized from the
// detection so review queues never need joins.
type Suggestion struct {
	ID             uint64     `json:"id"`
	DatasetID      uint64     `json:"dataset_id"`
	Iteration      int        `json:"iteration"`
	SampleID       uint64     `json:"sample_id"`
	DetectionID    uint64     `json:"detection_id"`
	SuggestedLabel int        `json:"suggested_label"`
	Priority       float64    `json:"priority"`
	Action         string     `json:"action"`
	Reason         string     `json:"reason"`
	Status         string     `json:"status"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Feedback is the ledger entry behind a reviewed suggestion. Exactly one
// feedback row exists per suggestion; re-reviews update it in place. The
// iteration is copied from the suggestion so corrections can be applied
// one review cycle at a time.
type Feedback struct {
	ID           uint64    `json:"id"`
	SuggestionID uint64    `json:"suggestion_id"`
	DatasetID    uint64    `json:"dataset_id"`
	SampleID     uint64    `json:"sample_id"`
	Iteration    int       `json:"iteration"`
	Action       string    `json:"action"`
	FinalLabel   int       `json:"final_label"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MLModel is a trained model's metadata and held-out metrics. The weights
// themselves are not persisted; models retrain deterministically from the
// stored samples and hyperparameters.
type MLModel struct {
	ID           uint64                `json:"id"`
	DatasetID    uint64                `json:"dataset_id"`
	Name         string                `json:"name"`
	Family       string                `json:"family"`
	Params       map[string]float64    `json:"params,omitempty"`
	IsBaseline   bool                  `json:"is_baseline"`
	Iteration    int                   `json:"iteration"`
	TrainMetrics classifier.Evaluation `json:"train_metrics"`
	TestMetrics  classifier.Evaluation `json:"test_metrics"`
	CreatedAt    time.Time             `json:"created_at"`
}

// ModelIteration records one retrain-and-compare cycle against the
// baseline.
type ModelIteration struct {
	ID               uint64    `json:"id"`
	DatasetID        uint64    `json:"dataset_id"`
	ModelID          uint64    `json:"model_id"`
	Iteration        int       `json:"iteration"`
	SamplesCorrected int       `json:"samples_corrected"`
	NoiseReduced     float64   `json:"noise_reduced"`
	Accuracy         float64   `json:"accuracy"`
	Improvement      float64   `json:"improvement"`
	ImprovementPct   float64   `json:"improvement_pct"`
	CreatedAt        time.Time `json:"created_at"`
}
