// Package cluster groups samples by random forest proximity: the share of
// trees that route two samples to the same leaf. Dissimilarities 1-P feed
// a Ward agglomerative clustering whose merge tree is cut at a distance
// threshold.
package cluster

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"slices"

	"wildfire-rf/internal/common"

	"github.com/unixpickle/essentials"
	"gonum.org/v1/gonum/mat"
)

// Proximity builds the n x n proximity matrix from a leaf assignment table
// (leaves[i][t] is the leaf of sample i in tree t). Only the upper triangle
// is computed; rows are spread over workers. Cost is O(n^2 * trees) time
// and O(n^2) memory, which is why Config.MaxSamples exists.
func Proximity(leaves [][]int, workers int) (*mat.SymDense, error) {
	n := len(leaves)
	if n == 0 {
		return nil, fmt.Errorf("proximity: %w: no samples", common.ErrEmptyDataset)
	}
	trees := len(leaves[0])
	if trees == 0 {
		return nil, fmt.Errorf("proximity: %w: leaf table has no trees", common.ErrDataShape)
	}
	for i, row := range leaves {
		if len(row) != trees {
			return nil, fmt.Errorf("proximity: %w: sample %d has %d leaves, expected %d", common.ErrDataShape, i, len(row), trees)
		}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := mat.NewSymDense(n, nil)
	inv := 1 / float64(trees)
	// Each worker writes only row i of the upper triangle.
	essentials.ConcurrentMap(workers, n, func(i int) {
		a := leaves[i]
		p.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			b := leaves[j]
			same := 0
			for t := range a {
				if a[t] == b[t] {
					same++
				}
			}
			p.SetSym(i, j, float64(same)*inv)
		}
	})
	return p, nil
}

// Dissimilarity returns 1 - P.
func Dissimilarity(p *mat.SymDense) *mat.SymDense {
	n := p.SymmetricDim()
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, 1-p.At(i, j))
		}
	}
	return d
}

// SampleRows picks at most max of n row positions with a seeded RNG and
// returns them ascending. max <= 0 or max >= n keeps every row.
func SampleRows(n, max int, seed uint64) []int {
	if max <= 0 || max >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	rows := rand.New(rand.NewPCG(seed, sampleStream)).Perm(n)[:max]
	slices.Sort(rows)
	return rows
}
