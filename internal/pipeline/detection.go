package pipeline

import (
	"fmt"
	"math"
	"time"

	"labelfix/internal/common"
	"labelfix/internal/detect"
	"labelfix/internal/store"
)

// DetectionReport summarizes one detection run over a dataset.
type DetectionReport struct {
	Iteration       int     `json:"iteration"`
	TotalAnalyzed   int     `json:"total_analyzed"`
	SuspiciousFound int     `json:"suspicious_found"`
	DetectionRate   float64 `json:"detection_rate"`
}

// DetectionOptions are per-run overrides; nil or zero fields fall back to
// the configured settings.
type DetectionOptions struct {
	ConfidenceThreshold *float64
	ConfidenceWeight    *float64
	AnomalyWeight       *float64
	MaxSamples          int // 0 means all samples
}

// RunDetection trains a fresh model on the dataset's current labels,
// scores every sample with both signals, and persists a detection for
// each flagged sample. Rerunning an iteration replaces its detections
// and re-derives every sample's suspicious flag. Overridden fusion
// weights are validated by the fusion step and recorded on each
// detection.
func (e *Engine) RunDetection(datasetID uint64, iteration int, opts DetectionOptions) (*DetectionReport, error) {
	start := time.Now()

	threshold := e.settings.ConfidenceThreshold
	if opts.ConfidenceThreshold != nil {
		threshold = *opts.ConfidenceThreshold
	}
	confWeight := e.settings.ConfidenceWeight
	if opts.ConfidenceWeight != nil {
		confWeight = *opts.ConfidenceWeight
	}
	anomWeight := e.settings.AnomalyWeight
	if opts.AnomalyWeight != nil {
		anomWeight = *opts.AnomalyWeight
	}
	if opts.ConfidenceWeight != nil || opts.AnomalyWeight != nil {
		if math.Abs(confWeight+anomWeight-1.0) > common.WeightSumTolerance {
			return nil, fmt.Errorf("%w: priority weights must sum to 1.0, got %f + %f",
				ErrValidation, confWeight, anomWeight)
		}
	}

	samples, err := e.trainingSamples(datasetID)
	if err != nil {
		return nil, err
	}
	if opts.MaxSamples > 0 && len(samples) > opts.MaxSamples {
		samples = samples[:opts.MaxSamples]
	}
	X, y := featureMatrix(samples)

	e.report("detection", 10, "training model")
	model, err := e.newModel()
	if err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("train: %w", err)
	}
	if err := model.Train(X, y); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("train: %w", err)
	}

	e.report("detection", 40, "computing confidence signal")
	confidence, err := detect.ConfidenceIssues(model, X, y, threshold)
	if err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("confidence: %w", err)
	}

	e.report("detection", 60, "computing anomaly signal")
	anomalies, err := detect.Anomalies(X, e.settings.AnomalyContamination)
	if err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("anomaly: %w", err)
	}

	e.report("detection", 80, "fusing signals")
	weights := store.PriorityWeights{
		Confidence: confWeight,
		Anomaly:    anomWeight,
	}

	var detections []*store.Detection
	for i, sample := range samples {
		conf, anom := confidence[i], anomalies[i]

		fusion, err := detect.Fuse(conf, anom, weights.Confidence, weights.Anomaly)
		if err != nil {
			e.errorsInc()
			return nil, fmt.Errorf("fusion: %w", err)
		}
		if e.metrics != nil {
			e.metrics.RiskScoreObserve(fusion.Combined)
		}

		flagged := conf.Flag || anom.Flag
		sample.IsSuspicious = flagged
		if !flagged {
			continue
		}

		action := detect.Decide(fusion.Combined, e.settings.ReviewThreshold(), e.settings.RejectThreshold)
		detections = append(detections, &store.Detection{
			DatasetID:                datasetID,
			SampleID:                 sample.ID,
			Iteration:                iteration,
			PredictedLabel:           conf.PredictedLabel,
			GivenLabelConfidence:     conf.GivenLabelConfidence,
			PredictedLabelConfidence: conf.PredictedLabelConfidence,
			Priority:                 fusion.Combined,
			Signals: store.SignalBreakdown{
				Confidence:     fusion.ConfidenceRisk,
				Anomaly:        fusion.AnomalyRisk,
				ConfidenceFlag: conf.Flag,
				AnomalyFlag:    anom.Flag,
				Weights:        weights,
			},
			Action: string(action),
			Reason: detect.Explain(conf, fusion.AnomalyRisk),
		})
	}

	if err := e.store.ReplaceDetections(datasetID, iteration, detections); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("suggestion: failed to persist detections: %w", err)
	}
	if err := e.store.UpdateSamples(samples); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("suggestion: failed to update sample flags: %w", err)
	}

	if e.metrics != nil {
		e.metrics.DetectionRunsInc()
		e.metrics.SamplesAnalyzedAdd(len(samples))
		e.metrics.SamplesFlaggedAdd(len(detections))
		e.metrics.DetectionLatencyObserve(time.Since(start).Seconds())
	}

	report := &DetectionReport{
		Iteration:       iteration,
		TotalAnalyzed:   len(samples),
		SuspiciousFound: len(detections),
		DetectionRate:   float64(len(detections)) / float64(len(samples)),
	}
	e.report("detection", 100, fmt.Sprintf("flagged %d of %d samples", report.SuspiciousFound, report.TotalAnalyzed))
	e.log.Info().Uint64("dataset", datasetID).Int("iteration", iteration).
		Int("analyzed", report.TotalAnalyzed).Int("flagged", report.SuspiciousFound).
		Dur("elapsed", time.Since(start)).Msg("detection run complete")
	return report, nil
}
