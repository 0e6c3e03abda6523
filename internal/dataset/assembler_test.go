package dataset

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/features"
	"wildfire-rf/internal/raster"
	"wildfire-rf/internal/tiling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu        sync.Mutex
	processed int
	missing   int
	skipped   int
}

func (m *MockMetrics) SamplesProcessedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
}

func (m *MockMetrics) SamplesMissingInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missing++
}

func (m *MockMetrics) SamplesSkippedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

var testChannels = []string{"humidity", "temperature", "ndvi"}

func writeTile(t *testing.T, root string, sample int, channel string, v float64) {
	t.Helper()
	path := filepath.Join(tiling.SampleDir(root, "sample_", sample), tiling.TileName(channel, 0, 0))
	require.NoError(t, raster.TIFF{}.Write(path, raster.NewGrid(3, 3).Fill(v)))
}

// writeSample writes one tile per feature channel with value base+position,
// plus a label tile unless withLabel is false.
func writeSample(t *testing.T, root string, sample int, base float64, label float64, withLabel bool) {
	t.Helper()
	for i, ch := range testChannels {
		writeTile(t, root, sample, ch, base+float64(i))
	}
	if withLabel {
		writeTile(t, root, sample, "label", label)
	}
}

func newAssembler(t *testing.T, root string, opts ...Option) *Assembler {
	t.Helper()
	layout, err := features.NewLayout(testChannels, "label")
	require.NoError(t, err)
	a, err := NewAssembler(Config{Root: root, Prefix: "sample_", Layout: layout, ProgressEvery: 2, Workers: 3},
		raster.TIFF{}, opts...)
	require.NoError(t, err)
	return a
}

func TestAssemble_SkipsSampleWithoutLabel(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeSample(t, root, i, float64(10*i), float64(i%2), i != 2)
	}
	metrics := &MockMetrics{}

	ds, summary, err := newAssembler(t, root, WithMetrics(metrics)).Assemble(context.Background(), 5)
	require.NoError(t, err)

	require.Equal(t, 4, ds.Len())
	assert.Equal(t, []int{0, 1, 3, 4}, ds.Indices())
	assert.Equal(t, []float64{30, 31, 32}, ds.Rows[2].Features)
	assert.Equal(t, []int{0, 1, 1, 0}, ds.Y())
	assert.Equal(t, testChannels, ds.FeatureNames)
	assert.Equal(t, "label", ds.LabelChannel)

	assert.Equal(t, Summary{Expected: 5, Rows: 4, Skipped: 1, SkippedSamples: []int{2}}, summary)
	assert.Equal(t, 5, metrics.processed)
	assert.Equal(t, 1, metrics.skipped)
	assert.Zero(t, metrics.missing)
	assert.NoError(t, ds.Validate())
}

func TestAssemble_MissingSamplesDoNotAbort(t *testing.T) {
	root := t.TempDir()
	writeSample(t, root, 0, 1, 1, true)
	// sample 1 directory absent entirely
	writeSample(t, root, 2, 1, 0, true)
	// sample 3 lacks a feature channel
	writeTile(t, root, 3, "humidity", 1)
	writeTile(t, root, 3, "label", 1)
	// sample 4 has a corrupt tile
	writeSample(t, root, 4, 1, 1, true)
	corrupt := filepath.Join(tiling.SampleDir(root, "sample_", 4), tiling.TileName("ndvi", 0, 0))
	require.NoError(t, os.WriteFile(corrupt, []byte("not a tiff"), 0o600))

	metrics := &MockMetrics{}
	ds, summary, err := newAssembler(t, root, WithMetrics(metrics)).Assemble(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2}, ds.Indices())
	assert.Equal(t, 3, summary.Missing)
	assert.Equal(t, []int{1, 3, 4}, summary.MissingSamples)
	assert.Equal(t, 3, metrics.missing)
}

func TestAssemble_Progress(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeSample(t, root, i, 1, 1, true)
	}

	var events []Progress
	a := newAssembler(t, root, WithProgress(func(p Progress) {
		events = append(events, p)
	}))
	_, _, err := a.Assemble(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, []Progress{{2, 5}, {4, 5}, {5, 5}}, events)
}

func TestAssemble_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeSample(t, root, 0, 1, 1, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ds, _, err := newAssembler(t, root).Assemble(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, ds, "partial datasets must not be returned")
}

func TestAssemble_CustomPatterns(t *testing.T) {
	root := t.TempDir()
	dir := tiling.SampleDir(root, "sample_", 0)
	require.NoError(t, raster.TIFF{}.Write(filepath.Join(dir, "Humidity_crop.tif"), raster.NewGrid(2, 2).Fill(4)))
	require.NoError(t, raster.TIFF{}.Write(filepath.Join(dir, "MTBS_burn.tif"), raster.NewGrid(2, 2).Fill(1)))

	layout, err := features.NewLayout([]string{"humidity"}, "label")
	require.NoError(t, err)
	a, err := NewAssembler(Config{
		Root:     root,
		Prefix:   "sample_",
		Layout:   layout,
		Patterns: map[string]string{"humidity": "Humidity_*.tif", "label": "MTBS_*.tif"},
	}, raster.TIFF{})
	require.NoError(t, err)

	ds, _, err := a.Assemble(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, []float64{4}, ds.Rows[0].Features)
	assert.Equal(t, 1, ds.Rows[0].Label)
}

func TestAssemble_EndToEndFromRasters(t *testing.T) {
	srcDir := t.TempDir()
	for _, ch := range testChannels {
		require.NoError(t, raster.TIFF{}.Write(filepath.Join(srcDir, ch+".tif"), raster.NewGrid(8, 8).Fill(5)))
	}
	require.NoError(t, raster.TIFF{}.Write(filepath.Join(srcDir, "label.tif"), raster.NewGrid(8, 8).Fill(1)))

	root := t.TempDir()
	tiler, err := tiling.NewTiler(raster.TIFF{}, root, "sample_", 4, 0, nil)
	require.NoError(t, err)
	counts, err := tiler.SplitDir(context.Background(), srcDir)
	require.NoError(t, err)
	for _, n := range counts {
		assert.Equal(t, 4, n)
	}

	n, err := CountSamples(root, "sample_")
	require.NoError(t, err)
	require.Equal(t, 4, n)

	ds, summary, err := newAssembler(t, root).Assemble(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, 4, ds.Len())
	assert.Zero(t, summary.Missing+summary.Skipped)
	for _, r := range ds.Rows {
		assert.Equal(t, []float64{5, 5, 5}, r.Features)
		assert.Equal(t, 1, r.Label)
	}
}

func TestNewAssembler_Invalid(t *testing.T) {
	layout, err := features.NewLayout(testChannels, "label")
	require.NoError(t, err)

	_, err = NewAssembler(Config{Prefix: "s", Layout: layout}, raster.TIFF{})
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = NewAssembler(Config{Root: "r", Layout: layout}, raster.TIFF{})
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = NewAssembler(Config{Root: "r", Prefix: "s"}, raster.TIFF{})
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = NewAssembler(Config{Root: "r", Prefix: "s", Layout: layout, Patterns: map[string]string{"ndvi": "[bad"}}, raster.TIFF{})
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestCountSamples(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"sample_0", "sample_7", "sample_x", "other_9"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}
	n, err := CountSamples(root, "sample_")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = CountSamples(filepath.Join(root, "absent"), "sample_")
	assert.Error(t, err)
}

func TestDataset_Validate(t *testing.T) {
	ds := &Dataset{FeatureNames: []string{"a", "b"}}
	assert.ErrorIs(t, ds.Validate(), common.ErrEmptyDataset)

	ds.Rows = []Row{{Index: 0, Features: []float64{1, 2}, Label: 1}, {Index: 1, Features: []float64{1}, Label: 0}}
	assert.ErrorIs(t, ds.Validate(), common.ErrDataShape)

	ds.Rows[1].Features = []float64{1, 2}
	ds.Rows[1].Label = 3
	assert.ErrorIs(t, ds.Validate(), common.ErrDataShape)

	ds.Rows[1].Label = 0
	assert.NoError(t, ds.Validate())

	x, y := ds.Subset([]int{1})
	assert.Equal(t, [][]float64{{1, 2}}, x)
	assert.Equal(t, []int{0}, y)
}
