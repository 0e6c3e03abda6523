package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testDataset() (*dataset.Dataset, dataset.Summary) {
	ds := &dataset.Dataset{
		FeatureNames: []string{"humidity", "temperature"},
		LabelChannel: "label",
		Rows: []dataset.Row{
			{Index: 0, Features: []float64{30.5, 21}, Label: 1},
			{Index: 3, Features: []float64{80, 12.25}, Label: 0},
			{Index: 256, Features: []float64{45, 18}, Label: 0},
		},
	}
	return ds, dataset.Summary{Expected: 300, Rows: 3, Missing: 1, MissingSamples: []int{1}}
}

func TestNew(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	store, err := New(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.FileExists(t, filepath.Join(dir, dbFileName))
	assert.Equal(t, filepath.Join(dir, dbFileName), store.Path())
}

func TestNew_InvalidPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, err := New(filepath.Join(blocker, "db"))
	assert.Error(t, err)
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "closing twice is harmless")

	assert.NoError(t, (&Store{}).Close())
}

func TestDataset_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ds, summary := testDataset()

	require.NoError(t, store.SaveDataset(ds, summary))
	loaded, loadedSummary, err := store.LoadDataset()
	require.NoError(t, err)
	assert.Equal(t, ds, loaded)
	assert.Equal(t, summary, loadedSummary)

	at, ok, err := store.DatasetSavedAt()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestDatasetSavedAt(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.DatasetSavedAt()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).Put(keySavedAt, []byte("yesterday"))
	}))
	_, ok, err = store.DatasetSavedAt()
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.False(t, ok)

	require.NoError(t, store.Close())
	_, _, err = store.DatasetSavedAt()
	assert.Error(t, err)
}

func TestDataset_FullRebuild(t *testing.T) {
	store := newTestStore(t)
	ds, summary := testDataset()
	require.NoError(t, store.SaveDataset(ds, summary))
	require.NoError(t, store.SaveSplit("default", ml.Split{Train: []int{0, 1}, Test: []int{2}}))

	smaller := &dataset.Dataset{
		FeatureNames: []string{"ndvi"},
		LabelChannel: "label",
		Rows:         []dataset.Row{{Index: 5, Features: []float64{0.3}, Label: 1}},
	}
	require.NoError(t, store.SaveDataset(smaller, dataset.Summary{Expected: 6, Rows: 1}))

	loaded, _, err := store.LoadDataset()
	require.NoError(t, err)
	assert.Equal(t, smaller, loaded, "no rows of the previous dataset survive")

	_, ok, err := store.LoadSplit("default")
	require.NoError(t, err)
	assert.False(t, ok, "splits of the previous dataset are dropped")
}

func TestDataset_Errors(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.LoadDataset()
	assert.ErrorIs(t, err, common.ErrEmptyDataset)

	ragged := &dataset.Dataset{
		FeatureNames: []string{"a", "b"},
		Rows:         []dataset.Row{{Index: 0, Features: []float64{1}}},
	}
	assert.ErrorIs(t, store.SaveDataset(ragged, dataset.Summary{}), common.ErrDataShape)
}

func TestSplit_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ds, summary := testDataset()
	require.NoError(t, store.SaveDataset(ds, summary))

	split, err := ml.SplitRows(ds.Len(), 0.3, 9)
	require.NoError(t, err)
	require.NoError(t, store.SaveSplit("default", split))

	loaded, ok, err := store.LoadSplit("default")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, split, loaded)

	_, ok, err = store.LoadSplit("other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuns(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	id1, err := store.RecordRun(RunRecord{Kind: "train", StartedAt: started, Rows: 70, Accuracy: 0.9})
	require.NoError(t, err)
	id2, err := store.RecordRun(RunRecord{Kind: "cluster", StartedAt: started.Add(time.Hour), Rows: 100})
	require.NoError(t, err)
	assert.Less(t, id1, id2)

	all, err := store.ListRuns("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "train", all[0].Kind)
	assert.Equal(t, id1, all[0].ID)
	assert.True(t, started.Equal(all[0].StartedAt))

	train, err := store.ListRuns("train")
	require.NoError(t, err)
	require.Len(t, train, 1)
	assert.Equal(t, 0.9, train[0].Accuracy)
}

func TestPostgresSampleRecorder(t *testing.T) {
	url := os.Getenv(common.EnvPostgresURL)
	if url == "" {
		t.Skip("POSTGRES_URL not set")
	}
	ctx := context.Background()
	db, err := ConnectPostgres(ctx, url)
	require.NoError(t, err)
	defer db.Close()

	ds, _ := testDataset()
	runID := "test-" + time.Now().Format("20060102150405.000000000")
	rec := NewPostgresSampleRecorder(db)
	require.NoError(t, rec.RecordSamples(ctx, runID, ds))
	require.NoError(t, rec.RecordSamples(ctx, runID, ds), "re-recording a run is idempotent")

	var n int
	require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM training_samples WHERE run_id = $1`, runID))
	assert.Equal(t, ds.Len(), n)

	_, err = db.ExecContext(ctx, `DELETE FROM training_samples WHERE run_id = $1`, runID)
	assert.NoError(t, err)
}
