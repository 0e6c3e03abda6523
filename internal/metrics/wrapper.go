package metrics

// MetricsWrapper adapts Metrics to the small metric interfaces declared by
// the tiling, dataset, ml and cluster packages. A nil wrapper or one over
// nil Metrics discards every observation.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) ok() bool { return w != nil && w.m != nil }

func (w *MetricsWrapper) TilesWrittenInc() {
	if w.ok() {
		w.m.TilesWritten.Inc()
	}
}

func (w *MetricsWrapper) SamplesProcessedInc() {
	if w.ok() {
		w.m.SamplesProcessed.Inc()
	}
}

func (w *MetricsWrapper) SamplesMissingInc() {
	if w.ok() {
		w.m.SamplesMissing.Inc()
	}
}

func (w *MetricsWrapper) SamplesSkippedInc() {
	if w.ok() {
		w.m.SamplesSkipped.Inc()
	}
}

func (w *MetricsWrapper) TrainingDurationObserve(v float64) {
	if w.ok() {
		w.m.TrainingDuration.Observe(v)
	}
}

func (w *MetricsWrapper) ModelAccuracySet(v float64) {
	if w.ok() {
		w.m.ModelAccuracy.Set(v)
	}
}

func (w *MetricsWrapper) ProximityDurationObserve(v float64) {
	if w.ok() {
		w.m.ProximityDuration.Observe(v)
	}
}

func (w *MetricsWrapper) MLPredictionsInc() {
	if w.ok() {
		w.m.Predictions.Inc()
	}
}

func (w *MetricsWrapper) MLFailuresInc() {
	if w.ok() {
		w.m.PredictionErrors.Inc()
	}
}

func (w *MetricsWrapper) MLLatencyObserve(v float64) {
	if w.ok() {
		w.m.PredictionLatency.Observe(v)
	}
}

func (w *MetricsWrapper) MLModelAgeSet(v float64) {
	if w.ok() {
		w.m.ModelAge.Set(v)
	}
}

func (w *MetricsWrapper) MLPredictionScoresObserve(v float64) {
	if w.ok() {
		w.m.PredictionScores.Observe(v)
	}
}
