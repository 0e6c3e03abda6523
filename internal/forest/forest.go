// Package forest implements a random forest of CART classification trees
// for binary labels. Trees are stored as flat node arrays so a fitted forest
// serialises as plain JSON and leaf assignments are node indices.
package forest

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"time"

	"wildfire-rf/internal/common"

	"github.com/rs/zerolog/log"
	"github.com/unixpickle/essentials"
)

// Params are the hyperparameters a forest was fitted with.
type Params struct {
	NumTrees int `json:"num_trees"`
	// MaxDepth 0 means unlimited.
	MaxDepth int `json:"max_depth"`
	MinSplit int `json:"min_split"`
	MinLeaf  int `json:"min_leaf"`
	// MaxFeatures 0 means floor(sqrt(features)).
	MaxFeatures int    `json:"max_features"`
	Bootstrap   bool   `json:"bootstrap"`
	Seed        uint64 `json:"seed"`
	Workers     int    `json:"-"`
}

type Option func(*Params)

func WithNumTrees(n int) Option    { return func(p *Params) { p.NumTrees = n } }
func WithMaxDepth(d int) Option    { return func(p *Params) { p.MaxDepth = d } }
func WithMinSplit(n int) Option    { return func(p *Params) { p.MinSplit = n } }
func WithMinLeaf(n int) Option     { return func(p *Params) { p.MinLeaf = n } }
func WithMaxFeatures(n int) Option { return func(p *Params) { p.MaxFeatures = n } }
func WithBootstrap(b bool) Option  { return func(p *Params) { p.Bootstrap = b } }
func WithSeed(s uint64) Option     { return func(p *Params) { p.Seed = s } }
func WithWorkers(n int) Option     { return func(p *Params) { p.Workers = n } }

// Forest is a fitted or unfitted ensemble. Predict, PredictProba and Apply
// are safe for concurrent use once Fit has returned.
type Forest struct {
	Params      Params    `json:"params"`
	NumFeatures int       `json:"num_features"`
	Trees       []Tree    `json:"trees"`
	Importance  []float64 `json:"importance"`
}

// New returns an unfitted forest. Without options it grows 100 fully
// developed bootstrapped trees with sqrt feature sampling.
func New(opts ...Option) *Forest {
	p := Params{
		NumTrees:  common.DefaultNumTrees,
		MinSplit:  common.DefaultMinSplit,
		MinLeaf:   common.DefaultMinLeaf,
		Bootstrap: true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &Forest{Params: p}
}

func (p Params) validate() error {
	switch {
	case p.NumTrees < 1:
		return fmt.Errorf("%w: number of trees must be at least 1, got %d", common.ErrInvalidConfiguration, p.NumTrees)
	case p.MaxDepth < 0:
		return fmt.Errorf("%w: max depth cannot be negative, got %d", common.ErrInvalidConfiguration, p.MaxDepth)
	case p.MinSplit < 2:
		return fmt.Errorf("%w: min split must be at least 2, got %d", common.ErrInvalidConfiguration, p.MinSplit)
	case p.MinLeaf < 1:
		return fmt.Errorf("%w: min leaf must be at least 1, got %d", common.ErrInvalidConfiguration, p.MinLeaf)
	case p.MaxFeatures < 0:
		return fmt.Errorf("%w: max features cannot be negative, got %d", common.ErrInvalidConfiguration, p.MaxFeatures)
	}
	return nil
}

// featuresPerSplit resolves MaxFeatures against the feature count.
func (p Params) featuresPerSplit(nFeatures int) int {
	m := p.MaxFeatures
	if m == 0 {
		m = int(math.Sqrt(float64(nFeatures)))
	}
	return max(1, min(m, nFeatures))
}

// Fit grows every tree on x and binary labels y. Tree t draws its bootstrap
// sample and feature subsets from a PCG stream keyed by (Seed, t), so a fit
// is reproducible regardless of the worker count.
func (f *Forest) Fit(x [][]float64, y []int) error {
	if err := f.Params.validate(); err != nil {
		return err
	}
	if len(x) == 0 {
		return fmt.Errorf("fit: %w: no rows", common.ErrEmptyDataset)
	}
	if len(x) != len(y) {
		return fmt.Errorf("fit: %w: %d feature rows but %d labels", common.ErrDataShape, len(x), len(y))
	}
	nFeatures := len(x[0])
	if nFeatures == 0 {
		return fmt.Errorf("fit: %w: rows have no features", common.ErrDataShape)
	}
	for i, row := range x {
		if len(row) != nFeatures {
			return fmt.Errorf("fit: %w: row %d has %d features, expected %d", common.ErrDataShape, i, len(row), nFeatures)
		}
		if y[i] != 0 && y[i] != 1 {
			return fmt.Errorf("fit: %w: row %d has label %d", common.ErrDataShape, i, y[i])
		}
	}

	workers := f.Params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	trees := make([]Tree, f.Params.NumTrees)
	perTree := make([][]float64, f.Params.NumTrees)
	mtry := f.Params.featuresPerSplit(nFeatures)

	essentials.ConcurrentMap(workers, f.Params.NumTrees, func(t int) {
		rng := rand.New(rand.NewPCG(f.Params.Seed, uint64(t)))
		idx := make([]int, len(x))
		for i := range idx {
			if f.Params.Bootstrap {
				idx[i] = rng.IntN(len(x))
			} else {
				idx[i] = i
			}
		}
		b := newBuilder(x, y, f.Params, mtry, rng)
		trees[t] = b.grow(idx)
		perTree[t] = b.importance
	})

	f.NumFeatures = nFeatures
	f.Trees = trees
	f.Importance = averageImportance(perTree, nFeatures)

	log.Debug().
		Int("trees", len(trees)).
		Int("rows", len(x)).
		Int("features", nFeatures).
		Int("max_features", mtry).
		Float64("mean_leaves", meanLeaves(trees)).
		Dur("elapsed", time.Since(start)).
		Msg("Forest fitted")
	return nil
}

func meanLeaves(trees []Tree) float64 {
	if len(trees) == 0 {
		return 0
	}
	total := 0
	for i := range trees {
		total += trees[i].Leaves()
	}
	return float64(total) / float64(len(trees))
}

// averageImportance normalises each tree's impurity decrease to sum to 1,
// averages over trees and renormalises. Trees without splits contribute
// nothing; if no tree split, all importances are 0.
func averageImportance(perTree [][]float64, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, imp := range perTree {
		var total float64
		for _, v := range imp {
			total += v
		}
		if total <= 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / total
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func (f *Forest) checkRow(row []float64) error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("%w: forest is not fitted", common.ErrInvalidConfiguration)
	}
	if len(row) != f.NumFeatures {
		return fmt.Errorf("%w: row has %d features, model expects %d", common.ErrDataShape, len(row), f.NumFeatures)
	}
	return nil
}

// Proba returns the positive-class probability of one row: the mean over
// trees of the positive fraction in the leaf the row reaches.
func (f *Forest) Proba(row []float64) (float64, error) {
	if err := f.checkRow(row); err != nil {
		return 0, err
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].leafProba(f.Trees[i].leaf(row))
	}
	return sum / float64(len(f.Trees)), nil
}

// PredictProba returns Proba for every row.
func (f *Forest) PredictProba(x [][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, row := range x {
		p, err := f.Proba(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// Predict labels a row positive when its probability exceeds 0.5. An exact
// tie goes to the negative class.
func (f *Forest) Predict(x [][]float64) ([]int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		if p > 0.5 {
			out[i] = 1
		}
	}
	return out, nil
}

// Apply returns the leaf assignment table: out[i][t] is the node index of
// the leaf tree t routes row i to.
func (f *Forest) Apply(x [][]float64) ([][]int, error) {
	out := make([][]int, len(x))
	for i, row := range x {
		if err := f.checkRow(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		leaves := make([]int, len(f.Trees))
		for t := range f.Trees {
			leaves[t] = f.Trees[t].leaf(row)
		}
		out[i] = leaves
	}
	return out, nil
}

// Importances returns a copy of the mean decrease in impurity per feature.
func (f *Forest) Importances() []float64 {
	return append([]float64(nil), f.Importance...)
}
