package pipeline

import (
	"fmt"
	"sort"
	"time"

	"labelfix/internal/store"
)

// GenerateSuggestions materializes pending suggestions from an iteration's
// detections, highest priority first, optionally capped at topN (0 means
// all). Detections that already have a suggestion are skipped, so the
// operation is safe to repeat.
func (e *Engine) GenerateSuggestions(datasetID uint64, iteration, topN int) ([]*store.Suggestion, error) {
	detections, err := e.store.DetectionsByDataset(datasetID, iteration)
	if err != nil {
		return nil, fmt.Errorf("failed to load detections: %w", err)
	}
	sort.Slice(detections, func(i, j int) bool { return detections[i].Priority > detections[j].Priority })
	if topN > 0 && len(detections) > topN {
		detections = detections[:topN]
	}

	var created []*store.Suggestion
	for _, d := range detections {
		exists, err := e.store.SuggestionExistsForDetection(d.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing suggestions: %w", err)
		}
		if exists {
			continue
		}

		sug := &store.Suggestion{
			DatasetID:      d.DatasetID,
			Iteration:      d.Iteration,
			SampleID:       d.SampleID,
			DetectionID:    d.ID,
			SuggestedLabel: d.PredictedLabel,
			Priority:       d.Priority,
			Action:         d.Action,
			Reason:         d.Reason,
			Status:         store.StatusPending,
		}
		if err := e.store.CreateSuggestion(sug); err != nil {
			e.errorsInc()
			return nil, fmt.Errorf("failed to create suggestion: %w", err)
		}
		created = append(created, sug)
	}

	if e.metrics != nil {
		e.metrics.SuggestionsCreatedAdd(len(created))
	}
	e.log.Info().Uint64("dataset", datasetID).Int("iteration", iteration).
		Int("created", len(created)).Msg("suggestions generated")
	return created, nil
}

// UpdateSuggestionStatus records a human review decision and its feedback
// ledger entry atomically. Valid statuses are accepted, rejected, and
// modified; modified requires a custom label. A reviewed suggestion may be
// re-reviewed to a different terminal status but never back to pending.
func (e *Engine) UpdateSuggestionStatus(suggestionID uint64, status string, customLabel *int, notes string) (*store.Suggestion, error) {
	sug, err := e.store.GetSuggestion(suggestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestion %d: %w", suggestionID, err)
	}

	var action string
	var finalLabel int
	switch status {
	case store.StatusAccepted:
		action = store.FeedbackAccept
		finalLabel = sug.SuggestedLabel
	case store.StatusRejected:
		action = store.FeedbackReject
		sample, err := e.store.GetSample(sug.SampleID)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %w", sug.SampleID, err)
		}
		finalLabel = sample.CurrentLabel
	case store.StatusModified:
		if customLabel == nil {
			return nil, fmt.Errorf("%w: modified status requires a custom label", ErrValidation)
		}
		action = store.FeedbackModify
		finalLabel = *customLabel
	default:
		return nil, fmt.Errorf("%w: invalid status %q", ErrValidation, status)
	}

	now := time.Now().UTC()
	sug.Status = status
	sug.ReviewedAt = &now
	sug.Notes = notes

	fb := &store.Feedback{
		SuggestionID: sug.ID,
		DatasetID:    sug.DatasetID,
		SampleID:     sug.SampleID,
		Iteration:    sug.Iteration,
		Action:       action,
		FinalLabel:   finalLabel,
		Notes:        notes,
	}
	if err := e.store.ReviewSuggestion(sug, fb); err != nil {
		e.errorsInc()
		return nil, fmt.Errorf("failed to record review: %w", err)
	}

	if e.metrics != nil {
		e.metrics.SuggestionsReviewedInc()
	}
	e.log.Info().Uint64("suggestion", sug.ID).Str("status", status).
		Int("final_label", finalLabel).Msg("suggestion reviewed")
	return sug, nil
}

// CorrectionReport counts what one ApplyCorrections pass did.
type CorrectionReport struct {
	Total    int `json:"total"`
	Applied  int `json:"applied"`
	Changed  int `json:"changed"`
	Rejected int `json:"rejected"`
}

// ApplyCorrections replays one iteration's feedback ledger onto the
// dataset's samples in one atomic batch. Accepts and modifies set the
// final label and mark the sample corrected; rejects clear the corrected
// flag and leave the label alone. Re-running after a re-review converges
// on the latest decision. Decisions from other iterations are untouched.
func (e *Engine) ApplyCorrections(datasetID uint64, iteration int) (*CorrectionReport, error) {
	feedback, err := e.store.FeedbackByDataset(datasetID, iteration)
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback: %w", err)
	}

	samples, err := e.store.SamplesByDataset(datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}
	byID := make(map[uint64]*store.Sample, len(samples))
	for _, s := range samples {
		byID[s.ID] = s
	}

	report := &CorrectionReport{Total: len(feedback)}
	var touched []*store.Sample
	for _, fb := range feedback {
		sample, ok := byID[fb.SampleID]
		if !ok {
			return nil, fmt.Errorf("feedback %d references unknown sample %d", fb.ID, fb.SampleID)
		}

		switch fb.Action {
		case store.FeedbackAccept, store.FeedbackModify:
			if sample.CurrentLabel != fb.FinalLabel {
				report.Changed++
			}
			sample.CurrentLabel = fb.FinalLabel
			sample.IsCorrected = true
			report.Applied++
		case store.FeedbackReject:
			sample.IsCorrected = false
			report.Rejected++
		default:
			return nil, fmt.Errorf("feedback %d has unknown action %q", fb.ID, fb.Action)
		}
		touched = append(touched, sample)
	}

	if len(touched) > 0 {
		if err := e.store.UpdateSamples(touched); err != nil {
			e.errorsInc()
			return nil, fmt.Errorf("failed to apply corrections: %w", err)
		}
	}

	if e.metrics != nil {
		e.metrics.CorrectionsAppliedAdd(report.Applied)
	}
	e.log.Info().Uint64("dataset", datasetID).Int("iteration", iteration).
		Int("applied", report.Applied).Int("changed", report.Changed).
		Int("rejected", report.Rejected).Msg("corrections applied")
	return report, nil
}
