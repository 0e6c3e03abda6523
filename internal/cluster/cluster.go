package cluster

import (
	"fmt"
	"time"

	"wildfire-rf/internal/common"
	"wildfire-rf/internal/dataset"
	"wildfire-rf/internal/ml"

	"github.com/rs/zerolog/log"
)

// RNG streams for the seeded helpers; distinct from the forest's per-tree
// streams.
const (
	sampleStream   = 0xc105
	contrastStream = 0xc106
)

// MetricsInterface defines metrics methods needed by the clusterer
type MetricsInterface interface {
	ProximityDurationObserve(float64)
}

// LeafAssigner is the part of a fitted forest the clusterer needs.
type LeafAssigner interface {
	Apply(x [][]float64) ([][]int, error)
}

type Config struct {
	Threshold float64
	// MaxSamples caps the rows clustered; 0 keeps all of them.
	MaxSamples int
	Seed       uint64
	Workers    int
}

// Result assigns each clustered sample one cluster id. Samples[i] is the
// caller's identifier of the i-th clustered row and Clusters[i] its id.
type Result struct {
	Samples     []int
	Clusters    []int
	Linkage     []Merge
	NumClusters int
}

// Map returns sample identifier -> cluster id.
func (r *Result) Map() map[int]int {
	m := make(map[int]int, len(r.Samples))
	for i, s := range r.Samples {
		m[s] = r.Clusters[i]
	}
	return m
}

// ClusterTraining clusters only the training rows of split, the rows a
// supervised model was fitted on. Result samples are dataset sample indices.
func ClusterTraining(model LeafAssigner, ds *dataset.Dataset, split ml.Split, cfg Config, metrics MetricsInterface) (*Result, error) {
	if err := split.Validate(ds.Len()); err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	x, _ := ds.Subset(split.Train)
	ids := make([]int, len(split.Train))
	for i, r := range split.Train {
		ids[i] = ds.Rows[r].Index
	}
	log.Debug().Int("train_rows", len(ids)).Int("held_out", len(split.Test)).Msg("Clustering training rows")
	return Cluster(model, x, ids, cfg, metrics)
}

// Cluster routes x through model, builds the proximity matrix over the
// (possibly capped) rows and cuts the Ward linkage of 1-P at
// cfg.Threshold. ids names each row of x in the result.
func Cluster(model LeafAssigner, x [][]float64, ids []int, cfg Config, metrics MetricsInterface) (*Result, error) {
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("cluster: %w: distance threshold cannot be negative, got %g", common.ErrInvalidConfiguration, cfg.Threshold)
	}
	if cfg.MaxSamples < 0 {
		return nil, fmt.Errorf("cluster: %w: max samples cannot be negative, got %d", common.ErrInvalidConfiguration, cfg.MaxSamples)
	}
	if len(ids) != len(x) {
		return nil, fmt.Errorf("cluster: %w: %d identifiers for %d rows", common.ErrDataShape, len(ids), len(x))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("cluster: %w: no rows", common.ErrEmptyDataset)
	}

	keep := SampleRows(len(x), cfg.MaxSamples, cfg.Seed)
	rows := make([][]float64, len(keep))
	samples := make([]int, len(keep))
	for i, k := range keep {
		rows[i] = x[k]
		samples[i] = ids[k]
	}
	if len(keep) < len(x) {
		log.Info().Int("rows", len(x)).Int("kept", len(keep)).Msg("Sampling rows for proximity")
	}

	leaves, err := model.Apply(rows)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}

	start := time.Now()
	p, err := Proximity(leaves, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	elapsed := time.Since(start)
	if metrics != nil {
		metrics.ProximityDurationObserve(elapsed.Seconds())
	}

	merges, err := Ward(Dissimilarity(p))
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	labels, err := FlatClusters(merges, len(rows), cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}

	res := &Result{Samples: samples, Clusters: labels, Linkage: merges}
	for _, c := range labels {
		res.NumClusters = max(res.NumClusters, c)
	}

	log.Info().
		Int("samples", len(rows)).
		Int("clusters", res.NumClusters).
		Float64("threshold", cfg.Threshold).
		Dur("proximity", elapsed).
		Msg("Clustering complete")
	return res, nil
}
