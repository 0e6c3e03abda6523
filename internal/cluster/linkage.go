package cluster

import (
	"fmt"
	"math"

	"wildfire-rf/internal/common"

	"gonum.org/v1/gonum/mat"
)

// Merge is one row of a linkage. Clusters 0..n-1 are the input samples;
// the cluster created by merge k has id n+k. A < B always.
type Merge struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Ward runs minimum variance agglomerative clustering on a dissimilarity
// matrix using the Lance-Williams update
//
//	d(k, i+j) = sqrt(((ni+nk)d(k,i)^2 + (nj+nk)d(k,j)^2 - nk d(i,j)^2) / (ni+nj+nk))
//
// and returns the n-1 merges in order. When several pairs share the
// smallest dissimilarity, the pair with the lowest (row, column) slot
// wins, where slots are input positions and a merged cluster takes the
// lower slot of its two parts.
func Ward(d *mat.SymDense) ([]Merge, error) {
	n := d.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("ward: %w: no samples", common.ErrEmptyDataset)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			dist[i][j] = d.At(i, j)
		}
	}
	active := make([]bool, n)
	size := make([]int, n)
	id := make([]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
		id[i] = i
	}

	// nearest[i] is the closest active slot j > i, with its distance.
	nearest := make([]int, n)
	nearestD := make([]float64, n)
	rescan := func(i int) {
		nearest[i], nearestD[i] = -1, math.Inf(1)
		for j := i + 1; j < n; j++ {
			if active[j] && dist[i][j] < nearestD[i] {
				nearest[i], nearestD[i] = j, dist[i][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		rescan(i)
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		a := -1
		for i := 0; i < n; i++ {
			if active[i] && nearest[i] >= 0 && (a < 0 || nearestD[i] < nearestD[a]) {
				a = i
			}
		}
		b := nearest[a]
		dab := dist[a][b]

		idA, idB := id[a], id[b]
		if idA > idB {
			idA, idB = idB, idA
		}
		merges = append(merges, Merge{A: idA, B: idB, Distance: dab, Size: size[a] + size[b]})

		na, nb := float64(size[a]), float64(size[b])
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			nk := float64(size[k])
			dak, dbk := dist[a][k], dist[b][k]
			v := ((na+nk)*dak*dak + (nb+nk)*dbk*dbk - nk*dab*dab) / (na + nb + nk)
			nd := math.Sqrt(math.Max(v, 0))
			dist[a][k], dist[k][a] = nd, nd
		}
		active[b] = false
		size[a] += size[b]
		id[a] = n + step

		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			switch {
			case i == a || nearest[i] == a || nearest[i] == b:
				rescan(i)
			case i < a && (dist[i][a] < nearestD[i] || (dist[i][a] == nearestD[i] && a < nearest[i])):
				nearest[i], nearestD[i] = a, dist[i][a]
			}
		}
	}
	return merges, nil
}
