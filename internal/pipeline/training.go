package pipeline

import (
	"errors"
	"fmt"
	"time"

	"labelfix/internal/classifier"
	"labelfix/internal/store"
)

// RetrainReport summarizes one retrain-and-compare cycle.
type RetrainReport struct {
	Iteration        int                   `json:"iteration"`
	ModelID          uint64                `json:"model_id"`
	Metrics          classifier.Evaluation `json:"metrics"`
	BaselineAccuracy float64               `json:"baseline_accuracy"`
	Improvement      float64               `json:"improvement"`
	ImprovementPct   float64               `json:"improvement_pct"`
	SamplesCorrected int                   `json:"samples_corrected"`
	NoiseReduced     float64               `json:"noise_reduced"`
}

// TrainBaseline trains and persists the dataset's reference model on the
// current labels. It refuses to run twice: the baseline anchors every
// later comparison and must never be overwritten.
func (e *Engine) TrainBaseline(datasetID uint64) (*store.MLModel, error) {
	if _, err := e.store.BaselineModel(datasetID); err == nil {
		return nil, fmt.Errorf("%w: dataset %d already has a baseline model", ErrValidation, datasetID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up baseline: %w", err)
	}

	samples, err := e.trainingSamples(datasetID)
	if err != nil {
		return nil, err
	}

	_, trainEval, testEval, err := e.trainAndEvaluate(samples)
	if err != nil {
		e.errorsInc()
		return nil, err
	}

	record := &store.MLModel{
		DatasetID:    datasetID,
		Name:         fmt.Sprintf("%s baseline", e.settings.ModelName),
		Family:       e.settings.ModelName,
		Params:       e.settings.ModelParams,
		IsBaseline:   true,
		Iteration:    0,
		TrainMetrics: trainEval,
		TestMetrics:  testEval,
	}
	if err := e.store.SaveModel(record); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("failed to save baseline model: %w", err)
	}

	e.log.Info().Uint64("dataset", datasetID).Float64("test_accuracy", testEval.Accuracy).
		Msg("baseline model trained")
	return record, nil
}

// RetrainAndEvaluate trains a fresh model with the baseline's
// hyperparameters on the corrected labels and records the comparison.
// The baseline record is never modified.
func (e *Engine) RetrainAndEvaluate(datasetID uint64) (*RetrainReport, error) {
	samples, err := e.trainingSamples(datasetID)
	if err != nil {
		return nil, err
	}

	baselineAcc := 0.0
	baseline, err := e.store.BaselineModel(datasetID)
	switch {
	case err == nil:
		baselineAcc = baseline.TestMetrics.Accuracy
		if baselineAcc == 0 {
			baselineAcc = baseline.TrainMetrics.Accuracy
		}
		if baselineAcc == 0 {
			e.log.Warn().Uint64("dataset", datasetID).Msg("baseline has no recorded accuracy, comparing against zero")
		}
	case errors.Is(err, store.ErrNotFound):
		e.log.Warn().Uint64("dataset", datasetID).Msg("no baseline model, comparing against zero")
	default:
		return nil, fmt.Errorf("failed to look up baseline: %w", err)
	}

	e.report("retrain", 10, "training model on corrected labels")
	_, trainEval, testEval, err := e.trainAndEvaluate(samples)
	if err != nil {
		e.errorsInc()
		return nil, err
	}

	latest, err := e.store.LatestIteration(datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up iterations: %w", err)
	}
	iteration := latest + 1

	corrected := 0
	for _, s := range samples {
		if s.IsCorrected {
			corrected++
		}
	}

	improvement := testEval.Accuracy - baselineAcc
	improvementPct := 0.0
	if baselineAcc > 0 {
		improvementPct = improvement / baselineAcc * 100
	}

	record := &store.MLModel{
		DatasetID:    datasetID,
		Name:         fmt.Sprintf("%s (Iteration %d)", e.settings.ModelName, iteration),
		Family:       e.settings.ModelName,
		Params:       e.settings.ModelParams,
		Iteration:    iteration,
		TrainMetrics: trainEval,
		TestMetrics:  testEval,
	}
	if err := e.store.SaveModel(record); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("failed to save model: %w", err)
	}

	it := &store.ModelIteration{
		DatasetID:        datasetID,
		ModelID:          record.ID,
		Iteration:        iteration,
		SamplesCorrected: corrected,
		NoiseReduced:     float64(corrected) / float64(len(samples)),
		Accuracy:         testEval.Accuracy,
		Improvement:      improvement,
		ImprovementPct:   improvementPct,
	}
	if err := e.store.SaveIteration(it); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("failed to save iteration: %w", err)
	}

	e.report("retrain", 100, "retrain complete")
	e.log.Info().Uint64("dataset", datasetID).Int("iteration", iteration).
		Float64("accuracy", testEval.Accuracy).Float64("improvement", improvement).
		Msg("retrain complete")

	return &RetrainReport{
		Iteration:        iteration,
		ModelID:          record.ID,
		Metrics:          testEval,
		BaselineAccuracy: baselineAcc,
		Improvement:      improvement,
		ImprovementPct:   improvementPct,
		SamplesCorrected: corrected,
		NoiseReduced:     it.NoiseReduced,
	}, nil
}

// trainAndEvaluate splits, trains a fresh configured model, and evaluates
// on both partitions.
func (e *Engine) trainAndEvaluate(samples []*store.Sample) (classifier.Model, classifier.Evaluation, classifier.Evaluation, error) {
	var zero classifier.Evaluation

	X, y := featureMatrix(samples)
	XTrain, XTest, yTrain, yTest, err := e.splitWithFallback(X, y)
	if err != nil {
		return nil, zero, zero, fmt.Errorf("split: %w", err)
	}

	model, err := e.newModel()
	if err != nil {
		return nil, zero, zero, err
	}

	start := time.Now()
	if err := model.Train(XTrain, yTrain); err != nil {
		return nil, zero, zero, fmt.Errorf("train: %w", err)
	}
	if e.metrics != nil {
		e.metrics.TrainingRunsInc()
		e.metrics.TrainingDurationObserve(time.Since(start).Seconds())
	}

	trainPred, err := model.Predict(XTrain)
	if err != nil {
		return nil, zero, zero, fmt.Errorf("evaluate: %w", err)
	}
	trainEval, err := classifier.Evaluate(yTrain, trainPred)
	if err != nil {
		return nil, zero, zero, fmt.Errorf("evaluate: %w", err)
	}

	testPred, err := model.Predict(XTest)
	if err != nil {
		return nil, zero, zero, fmt.Errorf("evaluate: %w", err)
	}
	testEval, err := classifier.Evaluate(yTest, testPred)
	if err != nil {
		return nil, zero, zero, fmt.Errorf("evaluate: %w", err)
	}

	if e.metrics != nil {
		e.metrics.ModelAccuracyObserve(testEval.Accuracy)
	}
	return model, trainEval, testEval, nil
}

// ModelComparison lines up every trained model against the baseline.
type ModelComparison struct {
	Baseline   *store.MLModel          `json:"baseline,omitempty"`
	Models     []*store.MLModel        `json:"models"`
	Iterations []*store.ModelIteration `json:"iterations"`
}

// CompareModels returns the baseline, all trained models, and the
// per-iteration comparison records for a dataset.
func (e *Engine) CompareModels(datasetID uint64) (*ModelComparison, error) {
	models, err := e.store.ModelsByDataset(datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load models: %w", err)
	}
	iterations, err := e.store.IterationsByDataset(datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load iterations: %w", err)
	}

	cmp := &ModelComparison{Models: models, Iterations: iterations}
	for _, m := range models {
		if m.IsBaseline {
			cmp.Baseline = m
			break
		}
	}
	return cmp, nil
}
