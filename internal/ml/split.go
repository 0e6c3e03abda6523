package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"wildfire-rf/internal/common"
)

// splitStream separates the split permutation from the forest's per-tree
// streams, which share the same seed.
const splitStream = 0x5eed

// Split is a disjoint train/test partition of dataset row positions. Both
// lists are ascending.
type Split struct {
	Train        []int   `json:"train"`
	Test         []int   `json:"test"`
	Seed         uint64  `json:"seed"`
	TestFraction float64 `json:"test_fraction"`
}

// SplitRows partitions n rows with a seeded permutation. The test subset
// holds ceil(n*testFraction) rows and at least one row must remain for
// training. The same (n, testFraction, seed) always yields the same split.
func SplitRows(n int, testFraction float64, seed uint64) (Split, error) {
	if testFraction <= 0 || testFraction >= 1 || math.IsNaN(testFraction) {
		return Split{}, fmt.Errorf("split: %w: test fraction must be in (0, 1), got %g", common.ErrInvalidConfiguration, testFraction)
	}
	if n <= 0 {
		return Split{}, fmt.Errorf("split: %w: no rows", common.ErrEmptyDataset)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if n-nTest < 1 {
		return Split{}, fmt.Errorf("split: %w: %d rows leave none for training at test fraction %g",
			common.ErrEmptyDataset, n, testFraction)
	}

	perm := rand.New(rand.NewPCG(seed, splitStream)).Perm(n)
	s := Split{
		Test:         slices.Clone(perm[:nTest]),
		Train:        slices.Clone(perm[nTest:]),
		Seed:         seed,
		TestFraction: testFraction,
	}
	slices.Sort(s.Test)
	slices.Sort(s.Train)
	return s, nil
}

// Validate checks that the split addresses n rows without overlap.
func (s Split) Validate(n int) error {
	if len(s.Train) == 0 {
		return fmt.Errorf("%w: split has no training rows", common.ErrEmptyDataset)
	}
	seen := make([]bool, n)
	for _, part := range [][]int{s.Train, s.Test} {
		for _, i := range part {
			if i < 0 || i >= n {
				return fmt.Errorf("%w: split row %d outside dataset of %d rows", common.ErrDataShape, i, n)
			}
			if seen[i] {
				return fmt.Errorf("%w: split row %d appears twice", common.ErrDataShape, i)
			}
			seen[i] = true
		}
	}
	return nil
}
