package cluster

import (
	"fmt"
	"math/rand/v2"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/forest"
)

// SyntheticContrast returns the real rows labelled 1 followed by as many
// synthetic rows labelled 0. Each synthetic column is drawn with
// replacement from the same column of the real rows, which keeps the
// marginals and breaks the dependence between columns.
func SyntheticContrast(x [][]float64, seed uint64) ([][]float64, []int, error) {
	n := len(x)
	if n == 0 {
		return nil, nil, fmt.Errorf("contrast: %w: no rows", common.ErrEmptyDataset)
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return nil, nil, fmt.Errorf("contrast: %w: row %d has %d features, expected %d", common.ErrDataShape, i, len(row), width)
		}
	}

	rng := rand.New(rand.NewPCG(seed, contrastStream))
	all := make([][]float64, 0, 2*n)
	y := make([]int, 0, 2*n)
	for _, row := range x {
		all = append(all, row)
		y = append(y, 1)
	}
	for i := 0; i < n; i++ {
		row := make([]float64, width)
		for j := range row {
			row[j] = x[rng.IntN(n)][j]
		}
		all = append(all, row)
		y = append(y, 0)
	}
	return all, y, nil
}

// FitUnsupervised fits a forest that separates the rows of x from their
// synthetic contrast. Its leaf assignments on x drive clustering when no
// labels are used.
func FitUnsupervised(x [][]float64, seed uint64, opts ...forest.Option) (*forest.Forest, error) {
	all, y, err := SyntheticContrast(x, seed)
	if err != nil {
		return nil, err
	}
	model := forest.New(append([]forest.Option{forest.WithSeed(seed)}, opts...)...)
	if err := model.Fit(all, y); err != nil {
		return nil, fmt.Errorf("contrast: %w", err)
	}
	return model, nil
}
