package forest

import (
	"math/rand/v2"
	"slices"
)

// Node is one tree node. Leaves have Feature -1. Rows with
// x[Feature] <= Threshold go Left.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	// Counts holds the in-bag class counts that reached the node.
	Counts [2]int `json:"c"`
}

func (n *Node) isLeaf() bool { return n.Feature < 0 }

// Tree is a flattened binary tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leaf(row []float64) int {
	i := 0
	for !t.Nodes[i].isLeaf() {
		n := &t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

func (t *Tree) leafProba(i int) float64 {
	c := t.Nodes[i].Counts
	total := c[0] + c[1]
	if total == 0 {
		return 0
	}
	return float64(c[1]) / float64(total)
}

// Leaves returns the number of terminal nodes.
func (t *Tree) Leaves() int {
	n := 0
	for i := range t.Nodes {
		if t.Nodes[i].isLeaf() {
			n++
		}
	}
	return n
}

func gini(c [2]int) float64 {
	n := float64(c[0] + c[1])
	if n == 0 {
		return 0
	}
	p0, p1 := float64(c[0])/n, float64(c[1])/n
	return 1 - p0*p0 - p1*p1
}

type builder struct {
	x          [][]float64
	y          []int
	params     Params
	mtry       int
	rng        *rand.Rand
	features   []int
	nodes      []Node
	importance []float64
}

func newBuilder(x [][]float64, y []int, p Params, mtry int, rng *rand.Rand) *builder {
	features := make([]int, len(x[0]))
	for i := range features {
		features[i] = i
	}
	return &builder{
		x:          x,
		y:          y,
		params:     p,
		mtry:       mtry,
		rng:        rng,
		features:   features,
		importance: make([]float64, len(features)),
	}
}

type pending struct {
	node  int
	idx   []int
	depth int
}

type split struct {
	feature   int
	threshold float64
	decrease  float64
}

// grow builds a tree depth-first from the in-bag row indices. idx may hold
// duplicates and is reordered in place.
func (b *builder) grow(idx []int) Tree {
	b.nodes = b.nodes[:0]
	stack := []pending{{node: b.newNode(idx), idx: idx}}

	for len(stack) > 0 {
		w := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		counts := b.nodes[w.node].Counts
		n := len(w.idx)
		if n < b.params.MinSplit || n < 2*b.params.MinLeaf ||
			(b.params.MaxDepth > 0 && w.depth >= b.params.MaxDepth) || gini(counts) == 0 {
			continue
		}

		s, ok := b.bestSplit(w.idx, counts)
		if !ok {
			continue
		}

		// Partition by the chosen threshold; the sweep guarantees both
		// sides are non-empty and respect MinLeaf.
		i, j := 0, n
		for i < j {
			if b.x[w.idx[i]][s.feature] <= s.threshold {
				i++
			} else {
				j--
				w.idx[i], w.idx[j] = w.idx[j], w.idx[i]
			}
		}
		left, right := w.idx[:i], w.idx[i:]

		l := b.newNode(left)
		r := b.newNode(right)
		node := &b.nodes[w.node]
		node.Feature = s.feature
		node.Threshold = s.threshold
		node.Left = l
		node.Right = r
		b.importance[s.feature] += s.decrease

		stack = append(stack,
			pending{node: r, idx: right, depth: w.depth + 1},
			pending{node: l, idx: left, depth: w.depth + 1})
	}

	return Tree{Nodes: slices.Clone(b.nodes)}
}

func (b *builder) newNode(idx []int) int {
	var c [2]int
	for _, i := range idx {
		c[b.y[i]]++
	}
	b.nodes = append(b.nodes, Node{Feature: -1, Counts: c})
	return len(b.nodes) - 1
}

// bestSplit visits features in a fresh random order until mtry features
// with more than one distinct value have been examined, and returns the
// split with the largest weighted Gini decrease. Constant features do not
// count toward mtry. Among equal decreases the first one found wins.
func (b *builder) bestSplit(idx []int, counts [2]int) (split, bool) {
	n := len(idx)
	parent := gini(counts) * float64(n)
	best := split{decrease: -1}
	found := false

	sorted := make([]int, n)
	visited := 0
	for k := 0; k < len(b.features) && visited < b.mtry; k++ {
		r := k + b.rng.IntN(len(b.features)-k)
		b.features[k], b.features[r] = b.features[r], b.features[k]
		f := b.features[k]

		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			va, vc := b.x[a][f], b.x[c][f]
			switch {
			case va < vc:
				return -1
			case va > vc:
				return 1
			}
			return 0
		})
		if b.x[sorted[0]][f] == b.x[sorted[n-1]][f] {
			continue
		}
		visited++

		var left [2]int
		for i := 1; i < n; i++ {
			left[b.y[sorted[i-1]]]++
			lo, hi := b.x[sorted[i-1]][f], b.x[sorted[i]][f]
			if lo == hi {
				continue
			}
			if i < b.params.MinLeaf || n-i < b.params.MinLeaf {
				continue
			}
			right := [2]int{counts[0] - left[0], counts[1] - left[1]}
			dec := parent - gini(left)*float64(i) - gini(right)*float64(n-i)
			if dec > best.decrease {
				thr := lo + (hi-lo)/2
				if thr >= hi {
					thr = lo
				}
				best = split{feature: f, threshold: thr, decrease: dec}
				found = true
			}
		}
	}
	if found && best.decrease < 0 {
		best.decrease = 0
	}
	return best, found
}
