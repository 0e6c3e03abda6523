package tiling

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/raster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu    sync.Mutex
	tiles int
}

func (m *MockMetrics) TilesWrittenInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiles++
}

func writeSource(t *testing.T, path string, w, h int, v float64) {
	t.Helper()
	g := raster.NewGrid(w, h).Fill(v)
	g.Transform = raster.GeoTransform{1000, 30, 0, 2000, 0, -30}
	require.NoError(t, raster.TIFF{}.Write(path, g))
}

func TestTiler_Split(t *testing.T) {
	src := filepath.Join(t.TempDir(), "temperature.tif")
	writeSource(t, src, 8, 8, 5)
	dest := t.TempDir()
	metrics := &MockMetrics{}

	tiler, err := NewTiler(raster.TIFF{}, dest, "sample_", 4, 0, metrics)
	require.NoError(t, err)

	n, err := tiler.Split(context.Background(), src, "temperature")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, metrics.tiles)

	expected := []string{
		"sample_0/temperature_0_0.tif",
		"sample_1/temperature_4_0.tif",
		"sample_2/temperature_0_4.tif",
		"sample_3/temperature_4_4.tif",
	}
	for _, rel := range expected {
		_, err := os.Stat(filepath.Join(dest, rel))
		assert.NoError(t, err, rel)
	}

	tile, err := raster.TIFF{}.Read(filepath.Join(dest, "sample_3/temperature_4_4.tif"))
	require.NoError(t, err)
	assert.Equal(t, 4, tile.Width)
	assert.Equal(t, 1120.0, tile.Transform[0], "origin x shifted by 4 pixels of 30")
	assert.Equal(t, 1880.0, tile.Transform[3], "origin y shifted by 4 pixels of -30")
	for _, v := range tile.Data {
		assert.Equal(t, 5.0, v)
	}
}

func TestTiler_SplitFloatSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "ndvi.tif")
	g := raster.NewGrid(4, 4)
	g.Float = true
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			g.Set(x, y, float64(x)-float64(y)*0.5-1)
		}
	}
	require.NoError(t, raster.TIFF{}.Write(src, g))

	dest := t.TempDir()
	tiler, err := NewTiler(raster.TIFF{}, dest, "sample_", 2, 0, nil)
	require.NoError(t, err)
	n, err := tiler.Split(context.Background(), src, "ndvi")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	tile, err := raster.TIFF{}.Read(filepath.Join(dest, "sample_1/ndvi_2_0.tif"))
	require.NoError(t, err)
	assert.True(t, tile.Float)
	assert.Equal(t, []float64{1, 2, 0.5, 1.5}, tile.Data)

	tile, err = raster.TIFF{}.Read(filepath.Join(dest, "sample_2/ndvi_0_2.tif"))
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -1, -2.5, -1.5}, tile.Data)
}

func TestTiler_WindowTooLarge(t *testing.T) {
	src := filepath.Join(t.TempDir(), "humidity.tif")
	writeSource(t, src, 8, 8, 1)
	dest := t.TempDir()

	tiler, err := NewTiler(raster.TIFF{}, dest, "sample_", 16, 0, nil)
	require.NoError(t, err)

	n, err := tiler.Split(context.Background(), src, "humidity")
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	assert.Zero(t, n)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing should be written")
}

func TestNewTiler_Invalid(t *testing.T) {
	_, err := NewTiler(raster.TIFF{}, "", "sample_", 4, 0, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = NewTiler(raster.TIFF{}, "out", "", 4, 0, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = NewTiler(raster.TIFF{}, "out", "sample_", 4, 1.5, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
	_, err = NewTiler(raster.TIFF{}, "out", "sample_", 0, 0, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestTiler_SplitCancelled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "lst.tif")
	writeSource(t, src, 8, 8, 2)

	tiler, err := NewTiler(raster.TIFF{}, t.TempDir(), "sample_", 4, 0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tiler.Split(ctx, src, "lst")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTiler_SplitDir(t *testing.T) {
	srcDir := t.TempDir()
	writeSource(t, filepath.Join(srcDir, "humidity.tif"), 8, 8, 3)
	writeSource(t, filepath.Join(srcDir, "label.tif"), 8, 8, 1)
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "notes.txt"), []byte("x"), 0o600))
	dest := t.TempDir()

	tiler, err := NewTiler(raster.TIFF{}, dest, "sample_", 4, 0.5, nil)
	require.NoError(t, err)

	counts, err := tiler.SplitDir(context.Background(), srcDir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"humidity": 9, "label": 9}, counts)

	_, err = os.Stat(filepath.Join(dest, "sample_4", "label_2_2.tif"))
	assert.NoError(t, err)
}

func TestTiler_SplitDirMismatchedSizes(t *testing.T) {
	srcDir := t.TempDir()
	writeSource(t, filepath.Join(srcDir, "a.tif"), 8, 8, 3)
	writeSource(t, filepath.Join(srcDir, "b.tif"), 12, 8, 3)
	dest := t.TempDir()

	tiler, err := NewTiler(raster.TIFF{}, dest, "sample_", 4, 0, nil)
	require.NoError(t, err)

	_, err = tiler.SplitDir(context.Background(), srcDir)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTileNaming(t *testing.T) {
	assert.Equal(t, filepath.Join("root", "sample_12"), SampleDir("root", "sample_", 12))
	assert.Equal(t, "land_surface_temp_100_50.tif", TileName("land_surface_temp", 100, 50))

	channel, x, y, ok := ParseTileName("land_surface_temp_100_50.tif")
	require.True(t, ok)
	assert.Equal(t, "land_surface_temp", channel)
	assert.Equal(t, 100, x)
	assert.Equal(t, 50, y)

	_, _, _, ok = ParseTileName("humidity.tif")
	assert.False(t, ok)
	_, _, _, ok = ParseTileName("humidity_1_2.tif.meta.yaml")
	assert.False(t, ok)

	assert.Equal(t, "ndvi", ChannelFromPath("/data/ndvi.tif"))
}
