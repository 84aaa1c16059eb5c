// Package pipeline orchestrates the correction workflow end to end:
// baseline training, noise detection, suggestion review, correction
// application, and retrain-and-compare cycles. All state lives in the
// store; the engine itself only holds configuration and collaborators.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"labelfix/internal/cfg"
	"labelfix/internal/classifier"
	"labelfix/internal/common"
	"labelfix/internal/ingest"
	"labelfix/internal/store"
)

// ErrValidation marks caller mistakes (bad status values, missing custom
// labels, undersized datasets) as distinct from internal failures.
var ErrValidation = errors.New("validation failed")

// Metrics is the instrumentation surface the engine emits to. The nil
// implementation is a no-op, so tests can pass nil.
type Metrics interface {
	DetectionRunsInc()
	SamplesAnalyzedAdd(n int)
	SamplesFlaggedAdd(n int)
	RiskScoreObserve(v float64)
	DetectionLatencyObserve(seconds float64)
	SuggestionsCreatedAdd(n int)
	SuggestionsReviewedInc()
	CorrectionsAppliedAdd(n int)
	TrainingRunsInc()
	TrainingDurationObserve(seconds float64)
	ModelAccuracyObserve(v float64)
	ErrorsInc()
}

// ProgressFunc receives coarse progress events from long-running
// operations. Stage names are stable identifiers, pct is in [0, 100].
type ProgressFunc func(stage string, pct float64, message string)

// Engine runs all pipeline operations against one store.
type Engine struct {
	store    *store.Store
	settings cfg.Settings
	metrics  Metrics
	loader   *ingest.Loader
	progress ProgressFunc
	log      zerolog.Logger
}

func New(s *store.Store, settings cfg.Settings, m Metrics) *Engine {
	return &Engine{
		store:    s,
		settings: settings,
		metrics:  m,
		loader:   ingest.NewLoader(settings.HTTPTimeout),
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// SetProgress installs a progress listener. Pass nil to remove it.
func (e *Engine) SetProgress(fn ProgressFunc) { e.progress = fn }

func (e *Engine) report(stage string, pct float64, message string) {
	if e.progress != nil {
		e.progress(stage, pct, message)
	}
}

func (e *Engine) errorsInc() {
	if e.metrics != nil {
		e.metrics.ErrorsInc()
	}
}

// ImportDataset loads a CSV from a local path or URL and persists the
// dataset with all its samples. Current labels start equal to the
// original labels.
func (e *Engine) ImportDataset(name, source string) (*store.Dataset, error) {
	parsed, err := e.loader.Load(source)
	if err != nil {
		e.errorsInc()
		return nil, err
	}

	dataset := &store.Dataset{
		Name:           name,
		FeatureColumns: parsed.FeatureColumns,
		LabelColumn:    parsed.LabelColumn,
		SampleCount:    len(parsed.Features),
	}
	if err := e.store.CreateDataset(dataset); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}

	samples := make([]*store.Sample, len(parsed.Features))
	for i, features := range parsed.Features {
		samples[i] = &store.Sample{
			DatasetID:     dataset.ID,
			SampleIndex:   i,
			Features:      features,
			OriginalLabel: parsed.Labels[i],
			CurrentLabel:  parsed.Labels[i],
		}
	}
	if err := e.store.InsertSamples(samples); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("failed to insert samples: %w", err)
	}

	e.log.Info().Uint64("dataset", dataset.ID).Str("name", name).
		Int("samples", len(samples)).Msg("dataset imported")
	return dataset, nil
}

// ExportCleaned writes the dataset's current labels to a CSV in the
// configured export directory and returns the path.
func (e *Engine) ExportCleaned(datasetID uint64) (string, error) {
	dataset, err := e.store.GetDataset(datasetID)
	if err != nil {
		return "", fmt.Errorf("failed to load dataset %d: %w", datasetID, err)
	}
	samples, err := e.store.SamplesByDataset(datasetID)
	if err != nil {
		return "", fmt.Errorf("failed to load samples: %w", err)
	}
	path, err := ingest.ExportCSV(e.settings.ExportDir, dataset, samples)
	if err != nil {
		e.errorsInc()
		return "", err
	}
	return path, nil
}

// featureMatrix splits samples into the X/y shape the classifiers expect,
// using current labels.
func featureMatrix(samples []*store.Sample) ([][]float64, []int) {
	X := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		X[i] = s.Features
		y[i] = s.CurrentLabel
	}
	return X, y
}

// trainingSamples loads a dataset's samples and enforces the minimum
// training size.
func (e *Engine) trainingSamples(datasetID uint64) ([]*store.Sample, error) {
	samples, err := e.store.SamplesByDataset(datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	if len(samples) < common.MinSamplesForTraining {
		return nil, fmt.Errorf("%w: need at least %d samples, dataset %d has %d",
			ErrValidation, common.MinSamplesForTraining, datasetID, len(samples))
	}
	return samples, nil
}

// splitWithFallback tries a stratified split and falls back to an
// unstratified one with an explicit warning when a class is too small.
func (e *Engine) splitWithFallback(X [][]float64, y []int) (XTrain, XTest [][]float64, yTrain, yTest []int, err error) {
	XTrain, XTest, yTrain, yTest, err = classifier.Split(X, y, e.settings.TestSize, common.DefaultRandomState, true)
	if errors.Is(err, classifier.ErrCannotStratify) {
		e.log.Warn().Err(err).Msg("falling back to unstratified split")
		return classifier.Split(X, y, e.settings.TestSize, common.DefaultRandomState, false)
	}
	return XTrain, XTest, yTrain, yTest, err
}

// newModel builds a fresh classifier from the configured family and
// hyperparameters.
func (e *Engine) newModel() (classifier.Model, error) {
	return classifier.New(e.settings.ModelName, classifier.Params(e.settings.ModelParams))
}
