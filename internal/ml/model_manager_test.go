package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/forest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(time.Hour)
		return t
	}
}

// saveForest fits a tiny forest with the given tree count and saves it to
// path, so versions can be told apart by len(Trees).
func saveForest(t *testing.T, path string, trees int) {
	t.Helper()
	model := forest.New(forest.WithNumTrees(trees), forest.WithSeed(1))
	require.NoError(t, model.Fit([][]float64{{0}, {1}, {2}, {3}}, []int{0, 0, 1, 1}))
	require.NoError(t, model.Save(path))
}

func loadTrees(t *testing.T, path string) int {
	t.Helper()
	model, err := forest.Load(path)
	require.NoError(t, err)
	return len(model.Trees)
}

func TestModelManager_AddAndRollback(t *testing.T) {
	dir := t.TempDir()
	served := filepath.Join(dir, "random_forest.json")
	mm, err := NewModelManager(served)
	require.NoError(t, err)
	mm.now = fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	saveForest(t, served, 1)
	v1, err := mm.AddVersion(ModelMetrics{Accuracy: 0.9})
	require.NoError(t, err)
	saveForest(t, served, 3)
	v2, err := mm.AddVersion(ModelMetrics{Accuracy: 0.8})
	require.NoError(t, err)

	assert.Equal(t, "20260301-120000", v1.Version)
	assert.Equal(t, filepath.Join(dir, "random_forest-20260301-120000.json"), v1.Path)
	assert.True(t, v2.IsActive)
	assert.Equal(t, v2.Version, mm.GetCurrentVersion().Version)
	assert.Equal(t, 1, loadTrees(t, v1.Path))
	assert.Equal(t, 3, loadTrees(t, v2.Path))

	versions := mm.ListVersions()
	require.Len(t, versions, 2)
	assert.Equal(t, v2.Path, versions[0].Path, "newest first")

	require.NoError(t, mm.Rollback())
	assert.Equal(t, v1.Version, mm.GetCurrentVersion().Version)
	assert.Equal(t, 1, loadTrees(t, served), "served file must hold the rolled back model")
	assert.Error(t, mm.Rollback(), "no version older than the first")

	reopened, err := NewModelManager(served)
	require.NoError(t, err)
	assert.Equal(t, v1.Version, reopened.GetCurrentVersion().Version)
	assert.Len(t, reopened.ListVersions(), 2)

	require.NoError(t, reopened.ActivateVersion(v2.Version))
	assert.Equal(t, 3, loadTrees(t, served))
}

func TestModelManager_SameSecondVersions(t *testing.T) {
	served := filepath.Join(t.TempDir(), "model.json")
	saveForest(t, served, 1)
	mm, err := NewModelManager(served)
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mm.now = func() time.Time { return at }

	a, err := mm.AddVersion(ModelMetrics{})
	require.NoError(t, err)
	b, err := mm.AddVersion(ModelMetrics{})
	require.NoError(t, err)
	assert.Equal(t, a.Version+"-2", b.Version)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestModelManager_MissingFiles(t *testing.T) {
	served := filepath.Join(t.TempDir(), "model.json")
	mm, err := NewModelManager(served)
	require.NoError(t, err)

	_, err = mm.AddVersion(ModelMetrics{})
	assert.ErrorIs(t, err, common.ErrPersistence, "nothing saved at the served path")
	assert.Empty(t, mm.ListVersions())

	saveForest(t, served, 1)
	v1, err := mm.AddVersion(ModelMetrics{})
	require.NoError(t, err)
	saveForest(t, served, 2)
	_, err = mm.AddVersion(ModelMetrics{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(v1.Path))
	current := mm.GetCurrentVersion().Version
	assert.ErrorIs(t, mm.ActivateVersion(v1.Version), common.ErrPersistence)
	assert.Equal(t, current, mm.GetCurrentVersion().Version)
	assert.Equal(t, 2, loadTrees(t, served))

	_, err = NewModelManager("")
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestModelManager_CorruptLedger(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, versionsFileName), []byte("[{"), 0o600))

	mm, err := NewModelManager(filepath.Join(dir, "model.json"))
	require.NoError(t, err)
	assert.Empty(t, mm.ListVersions())
	assert.Nil(t, mm.GetCurrentVersion())
	assert.Error(t, mm.ActivateVersion("missing"))
}

func TestMetricsFromReport(t *testing.T) {
	r := Report{Accuracy: 0.9, TrainRows: 70, TestRows: 30}
	r.Classes[1] = ClassStats{Precision: 0.8, Recall: 0.7, F1: 0.75}
	m := MetricsFromReport(r, 100)
	assert.Equal(t, ModelMetrics{Accuracy: 0.9, F1Score: 0.75, Precision: 0.8, Recall: 0.7,
		TrainingSamples: 70, TestSamples: 30, NumTrees: 100}, m)
}
