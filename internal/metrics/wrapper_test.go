package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wildfire-rf/internal/cluster"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/ml"
	"wildfire-rf/internal/tiling"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ tiling.MetricsInterface  = (*MetricsWrapper)(nil)
	_ dataset.MetricsInterface = (*MetricsWrapper)(nil)
	_ ml.TrainerMetrics        = (*MetricsWrapper)(nil)
	_ ml.MetricsInterface      = (*MetricsWrapper)(nil)
	_ cluster.MetricsInterface = (*MetricsWrapper)(nil)
)

func TestNewWrapper(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)
	require.NotNil(t, wrapper)
	assert.Same(t, metrics, wrapper.m)
}

func TestMetricsWrapper_Counters(t *testing.T) {
	metrics := New()
	w := NewWrapper(metrics)

	w.TilesWrittenInc()
	w.TilesWrittenInc()
	w.SamplesProcessedInc()
	w.SamplesMissingInc()
	w.SamplesSkippedInc()
	w.SamplesSkippedInc()
	w.MLPredictionsInc()
	w.MLFailuresInc()

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.TilesWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SamplesProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SamplesMissing))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SamplesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Predictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PredictionErrors))
}

func TestMetricsWrapper_GaugesAndHistograms(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	w := NewWrapper(metrics)

	w.ModelAccuracySet(0.87)
	w.MLModelAgeSet(120)
	assert.Equal(t, 0.87, testutil.ToFloat64(metrics.ModelAccuracy))
	assert.Equal(t, 120.0, testutil.ToFloat64(metrics.ModelAge))

	w.TrainingDurationObserve(1.5)
	w.ProximityDurationObserve(0.2)
	w.MLLatencyObserve(0.0001)
	w.MLPredictionScoresObserve(0.7)

	count, err := testutil.GatherAndCount(registry,
		"training_duration_seconds", "proximity_duration_seconds",
		"prediction_latency_seconds", "prediction_scores")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestMetricsWrapper_NilSafe(t *testing.T) {
	var nilWrapper *MetricsWrapper
	assert.NotPanics(t, func() {
		nilWrapper.TilesWrittenInc()
		nilWrapper.ModelAccuracySet(1)
		NewWrapper(nil).SamplesProcessedInc()
		NewWrapper(nil).MLLatencyObserve(1)
	})
}

func TestMetrics_WriteTextfile(t *testing.T) {
	metrics := New()
	NewWrapper(metrics).TilesWrittenInc()

	path := filepath.Join(t.TempDir(), "results", "metrics.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "tiles_written_total 1"))

	onlyRegisterer := NewWithRegistry(prometheus.WrapRegistererWithPrefix("x_", prometheus.NewRegistry()))
	assert.Error(t, onlyRegisterer.WriteTextfile(path))
}
