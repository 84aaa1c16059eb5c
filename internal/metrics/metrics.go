// Package metrics provides Prometheus metrics collection for the label
// correction engine. It defines counters, gauges, and histograms for the
// detection pipeline, review workflow, and model training, exposed via the
// Prometheus metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the correction engine.
type Metrics struct {
	// Detection pipeline metrics
	DetectionRuns    prometheus.Counter   // Total number of detection runs
	SamplesAnalyzed  prometheus.Counter   // Total number of samples scored
	SamplesFlagged   prometheus.Counter   // Total number of samples flagged suspicious
	RiskScores       prometheus.Histogram // Distribution of combined risk scores
	DetectionLatency prometheus.Histogram // Detection run duration in seconds

	// Review workflow metrics
	SuggestionsCreated  prometheus.Counter // Total number of suggestions materialized
	SuggestionsReviewed prometheus.Counter // Total number of human review decisions
	CorrectionsApplied  prometheus.Counter // Total number of label corrections applied

	// Training metrics
	TrainingRuns     prometheus.Counter   // Total number of model training runs
	TrainingDuration prometheus.Histogram // Model training duration in seconds
	ModelAccuracy    prometheus.Histogram // Evaluated model accuracy

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		DetectionRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "detection_runs_total",
			Help: "Total number of detection runs",
		}),
		SamplesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_analyzed_total",
			Help: "Total number of samples scored by the detection pipeline",
		}),
		SamplesFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_flagged_total",
			Help: "Total number of samples flagged as suspicious",
		}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_scores",
			Help:    "Distribution of combined risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		DetectionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "detection_latency_seconds",
			Help:    "Detection run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SuggestionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "suggestions_created_total",
			Help: "Total number of correction suggestions materialized",
		}),
		SuggestionsReviewed: factory.NewCounter(prometheus.CounterOpts{
			Name: "suggestions_reviewed_total",
			Help: "Total number of human review decisions recorded",
		}),
		CorrectionsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "corrections_applied_total",
			Help: "Total number of label corrections applied",
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of model training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Model training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ModelAccuracy: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_accuracy",
			Help:    "Evaluated model accuracy on held-out data",
			Buckets: []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.95, 1.0},
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
