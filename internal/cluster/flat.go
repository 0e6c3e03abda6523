package cluster

import (
	"fmt"

	"wildfire-rf/internal/common"
)

// FlatClusters cuts a linkage over n samples at threshold. A merge joins
// its two clusters when its distance is at most threshold, so a merge
// exactly at the threshold joins. Cluster ids start at 1 and are numbered
// in order of the smallest sample position each cluster contains.
func FlatClusters(merges []Merge, n int, threshold float64) ([]int, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: distance threshold cannot be negative, got %g", common.ErrInvalidConfiguration, threshold)
	}
	if n > 0 && len(merges) != n-1 {
		return nil, fmt.Errorf("%w: %d merges for %d samples", common.ErrDataShape, len(merges), n)
	}

	parent := make([]int, 2*n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for k, m := range merges {
		if m.A >= n+k || m.B >= n+k || m.A < 0 || m.B < 0 {
			return nil, fmt.Errorf("%w: merge %d references cluster not yet formed", common.ErrDataShape, k)
		}
		node := n + k
		if m.Distance <= threshold {
			parent[find(m.A)] = node
			parent[find(m.B)] = node
		}
	}

	labels := make([]int, n)
	ids := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(i)
		c, ok := ids[root]
		if !ok {
			c = len(ids) + 1
			ids[root] = c
		}
		labels[i] = c
	}
	return labels, nil
}
