package metrics

// Wrapper provides the small method surface the pipeline depends on,
// so domain packages never import prometheus directly.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) DetectionRunsInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.DetectionRuns.Inc()
}

func (w *Wrapper) SamplesAnalyzedAdd(n int) {
	if w == nil || w.m == nil {
		return
	}
	w.m.SamplesAnalyzed.Add(float64(n))
}

func (w *Wrapper) SamplesFlaggedAdd(n int) {
	if w == nil || w.m == nil {
		return
	}
	w.m.SamplesFlagged.Add(float64(n))
}

func (w *Wrapper) RiskScoreObserve(v float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.RiskScores.Observe(v)
}

func (w *Wrapper) DetectionLatencyObserve(seconds float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.DetectionLatency.Observe(seconds)
}

func (w *Wrapper) SuggestionsCreatedAdd(n int) {
	if w == nil || w.m == nil {
		return
	}
	w.m.SuggestionsCreated.Add(float64(n))
}

func (w *Wrapper) SuggestionsReviewedInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.SuggestionsReviewed.Inc()
}

func (w *Wrapper) CorrectionsAppliedAdd(n int) {
	if w == nil || w.m == nil {
		return
	}
	w.m.CorrectionsApplied.Add(float64(n))
}

func (w *Wrapper) TrainingRunsInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.TrainingRuns.Inc()
}

func (w *Wrapper) TrainingDurationObserve(seconds float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.TrainingDuration.Observe(seconds)
}

func (w *Wrapper) ModelAccuracyObserve(v float64) {
	if w == nil || w.m == nil {
		return
	}
	w.m.ModelAccuracy.Observe(v)
}

func (w *Wrapper) ErrorsInc() {
	if w == nil || w.m == nil {
		return
	}
	w.m.ErrorsTotal.Inc()
}
