// Package dataset assembles per-sample tile directories into a feature
// matrix and label vector with a stable row order.
package dataset

import (
	"fmt"

	"wildfire-rf/internal/common"
)

// Row is one usable sample. Index is the sample identifier it came from.
type Row struct {
	Index    int       `json:"index"`
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// Dataset rows are ordered by ascending sample index.
type Dataset struct {
	FeatureNames []string `json:"feature_names"`
	LabelChannel string   `json:"label_channel"`
	Rows         []Row    `json:"rows"`
}

func (d *Dataset) Len() int { return len(d.Rows) }

// X returns the feature matrix. Rows alias the dataset's slices.
func (d *Dataset) X() [][]float64 {
	x := make([][]float64, len(d.Rows))
	for i, r := range d.Rows {
		x[i] = r.Features
	}
	return x
}

func (d *Dataset) Y() []int {
	y := make([]int, len(d.Rows))
	for i, r := range d.Rows {
		y[i] = r.Label
	}
	return y
}

// Indices returns the sample identifier of every row.
func (d *Dataset) Indices() []int {
	idx := make([]int, len(d.Rows))
	for i, r := range d.Rows {
		idx[i] = r.Index
	}
	return idx
}

// Subset returns the features and labels of the given row positions.
func (d *Dataset) Subset(rows []int) ([][]float64, []int) {
	x := make([][]float64, len(rows))
	y := make([]int, len(rows))
	for i, r := range rows {
		x[i] = d.Rows[r].Features
		y[i] = d.Rows[r].Label
	}
	return x, y
}

// Validate checks that every feature vector matches the declared channels
// and that at least one row exists.
func (d *Dataset) Validate() error {
	if len(d.FeatureNames) == 0 {
		return fmt.Errorf("%w: dataset declares no feature channels", common.ErrDataShape)
	}
	for _, r := range d.Rows {
		if len(r.Features) != len(d.FeatureNames) {
			return fmt.Errorf("%w: sample %d has %d features, expected %d",
				common.ErrDataShape, r.Index, len(r.Features), len(d.FeatureNames))
		}
		if r.Label != 0 && r.Label != 1 {
			return fmt.Errorf("%w: sample %d has label %d", common.ErrDataShape, r.Index, r.Label)
		}
	}
	if len(d.Rows) == 0 {
		return fmt.Errorf("%w: no usable rows", common.ErrEmptyDataset)
	}
	return nil
}

// Summary accounts for every candidate sample identifier.
type Summary struct {
	Expected       int   `json:"expected"`
	Rows           int   `json:"rows"`
	Missing        int   `json:"missing"`
	Skipped        int   `json:"skipped"`
	MissingSamples []int `json:"missing_samples,omitempty"`
	SkippedSamples []int `json:"skipped_samples,omitempty"`
}
