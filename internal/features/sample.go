package features

import (
	"fmt"
	"math"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/raster"

	"gonum.org/v1/gonum/stat"
)

// Sample is one training example.
type Sample struct {
	Features []float64
	Label    int
}

// Build aggregates each tile to its mean and places feature means at their
// layout positions. The label is 1 when the label tile's mean is positive.
//
// A sample without a label tile is skipped: skipped is true and err is nil.
// A missing feature tile, or a tile with no finite mean, yields an error
// wrapping common.ErrMissingSample. Tiles for channels outside the layout
// are ignored.
func Build(tiles map[string]*raster.Grid, layout *Layout) (s Sample, skipped bool, err error) {
	labelTile, ok := tiles[layout.Label()]
	if !ok || labelTile == nil {
		return Sample{}, true, nil
	}
	labelMean, err := Mean(labelTile)
	if err != nil {
		return Sample{}, false, fmt.Errorf("channel %s: %w", layout.Label(), err)
	}

	vec := make([]float64, layout.Len())
	for i, name := range layout.features {
		tile, ok := tiles[name]
		if !ok || tile == nil {
			return Sample{}, false, fmt.Errorf("%w: channel %s absent", common.ErrMissingSample, name)
		}
		m, err := Mean(tile)
		if err != nil {
			return Sample{}, false, fmt.Errorf("channel %s: %w", name, err)
		}
		vec[i] = m
	}

	return Sample{Features: vec, Label: LabelFromMean(labelMean)}, false, nil
}

// Mean is the arithmetic mean of every pixel in g.
func Mean(g *raster.Grid) (float64, error) {
	if len(g.Data) == 0 {
		return 0, fmt.Errorf("%w: empty tile", common.ErrMissingSample)
	}
	m := stat.Mean(g.Data, nil)
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, fmt.Errorf("%w: tile mean is not finite", common.ErrMissingSample)
	}
	return m, nil
}

// LabelFromMean maps the label channel aggregate to the positive class when
// it is strictly greater than zero.
func LabelFromMean(m float64) int {
	if m > 0 {
		return 1
	}
	return 0
}
