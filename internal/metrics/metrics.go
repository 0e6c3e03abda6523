// Package metrics defines the Prometheus collectors of the tiling, dataset,
// training, clustering and prediction stages. Batch commands dump the
// registry to a text file when they finish.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Tiling and assembly
	TilesWritten     prometheus.Counter // Tiles written by the partitioner
	SamplesProcessed prometheus.Counter // Sample directories visited
	SamplesMissing   prometheus.Counter // Samples excluded as missing or unreadable
	SamplesSkipped   prometheus.Counter // Samples excluded for lacking a label

	// Training
	TrainingDuration prometheus.Histogram // Forest fit duration in seconds
	ModelAccuracy    prometheus.Gauge     // Held-out accuracy of the last trained model

	// Clustering
	ProximityDuration prometheus.Histogram // Proximity matrix computation time in seconds

	// Inference
	Predictions       prometheus.Counter   // Successful predictions
	PredictionErrors  prometheus.Counter   // Failed predictions
	PredictionLatency prometheus.Histogram // Per-row inference latency in seconds
	PredictionScores  prometheus.Histogram // Distribution of positive-class probabilities
	ModelAge          prometheus.Gauge     // Age of the served model file in seconds

	gatherer prometheus.Gatherer
}

// New registers the metrics on a private registry so a dump contains only
// pipeline metrics.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates metrics on the given registerer. WriteTextfile
// works only when the registerer is also a Gatherer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	m := &Metrics{
		TilesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "tiles_written_total",
			Help: "Total number of tiles written",
		}),
		SamplesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_processed_total",
			Help: "Total number of sample directories processed",
		}),
		SamplesMissing: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_missing_total",
			Help: "Total number of samples excluded as missing",
		}),
		SamplesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_skipped_total",
			Help: "Total number of samples skipped for lacking a label",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Random forest fit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		ModelAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_accuracy",
			Help: "Held-out accuracy of the most recently trained model",
		}),
		ProximityDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proximity_duration_seconds",
			Help:    "Proximity matrix computation time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions made",
		}),
		PredictionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed predictions",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Per-row prediction latency in seconds",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the served model file in seconds",
		}),
	}
	if g, ok := registerer.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// WriteTextfile dumps every registered metric in the text exposition
// format, creating the parent directory if needed.
func (m *Metrics) WriteTextfile(path string) error {
	if m.gatherer == nil {
		return fmt.Errorf("metrics registry cannot be gathered")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}
