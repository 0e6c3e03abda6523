package tiling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/raster"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the tiler
type MetricsInterface interface {
	TilesWrittenInc()
}

// Tiler cuts source rasters into per-sample tile files under destDir.
type Tiler struct {
	rw      raster.ReadWriter
	destDir string
	prefix  string
	size    int
	overlap float64
	metrics MetricsInterface
}

// NewTiler checks the window parameters before any file is touched.
func NewTiler(rw raster.ReadWriter, destDir, prefix string, size int, overlap float64, metrics MetricsInterface) (*Tiler, error) {
	if destDir == "" {
		return nil, fmt.Errorf("%w: destination directory cannot be empty", common.ErrInvalidConfiguration)
	}
	if prefix == "" {
		return nil, fmt.Errorf("%w: sample prefix cannot be empty", common.ErrInvalidConfiguration)
	}
	// Dimensions are unknown until a source is opened; validate against a
	// window-sized image so only size and overlap are checked here.
	if _, err := validate(size, size, size, overlap); err != nil {
		return nil, err
	}
	return &Tiler{
		rw:      rw,
		destDir: destDir,
		prefix:  prefix,
		size:    size,
		overlap: overlap,
		metrics: metrics,
	}, nil
}

// Split tiles one source raster as the given channel and returns the number
// of tiles written. Tile i lands in sample directory i.
func (t *Tiler) Split(ctx context.Context, srcPath, channel string) (int, error) {
	if channel == "" {
		return 0, fmt.Errorf("%w: channel name cannot be empty", common.ErrInvalidConfiguration)
	}

	grid, err := t.rw.Read(srcPath)
	if err != nil {
		return 0, err
	}

	windows, err := Partition(grid.Width, grid.Height, t.size, t.overlap)
	if err != nil {
		return 0, fmt.Errorf("tile %s: %w", srcPath, err)
	}

	written := 0
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		tile, err := grid.Window(w.X, w.Y, w.Size, w.Size)
		if err != nil {
			return written, fmt.Errorf("tile %s window %d: %w", srcPath, i, err)
		}
		path := filepath.Join(SampleDir(t.destDir, t.prefix, i), TileName(channel, w.X, w.Y))
		if err := t.rw.Write(path, tile); err != nil {
			return written, err
		}
		written++
		if t.metrics != nil {
			t.metrics.TilesWrittenInc()
		}
		log.Debug().Int("sample", i).Str("path", path).Msg("Saved tile")
	}

	log.Info().
		Str("source", srcPath).
		Str("channel", channel).
		Int("tiles", written).
		Msg("Raster tiled")
	return written, nil
}

// SplitDir tiles every TIFF in srcDir, naming each channel after its file
// stem. All sources must share dimensions so sample indices line up across
// channels; this is checked before any tile is written when the backend can
// report sizes cheaply.
func (t *Tiler) SplitDir(ctx context.Context, srcDir string) (map[string]int, error) {
	sources, err := ListSources(srcDir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no source rasters in %s", common.ErrInvalidConfiguration, srcDir)
	}

	if sizer, ok := t.rw.(raster.Sizer); ok {
		var w0, h0 int
		for i, src := range sources {
			w, h, err := sizer.Size(src)
			if err != nil {
				return nil, err
			}
			if i == 0 {
				w0, h0 = w, h
				continue
			}
			if w != w0 || h != h0 {
				return nil, fmt.Errorf("%w: %s is %dx%d but %s is %dx%d",
					common.ErrInvalidConfiguration, src, w, h, sources[0], w0, h0)
			}
		}
	}

	counts := make(map[string]int, len(sources))
	for _, src := range sources {
		channel := ChannelFromPath(src)
		n, err := t.Split(ctx, src, channel)
		if err != nil {
			return counts, err
		}
		counts[channel] = n
	}
	return counts, nil
}

// ListSources returns the TIFF files directly inside dir in lexical order.
func ListSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".tif" || ext == ".tiff" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ChannelFromPath names a channel after the file stem of its source raster.
func ChannelFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
