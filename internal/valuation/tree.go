package valuation

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

type treeParams struct {
	maxDepth  int
	maxLeaves int
	minLeaf   int
	l1        float64
	l2        float64
}

type treeNode struct {
	leaf      bool
	feature   int
	threshold float64
	left      int
	right     int
	value     float64
}

// regressionTree is a binary tree stored flat; node 0 is the root.
type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for !t.nodes[i].leaf {
		n := t.nodes[i]
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
	return t.nodes[i].value
}

// maxBins bounds the histogram per feature; bin indexes fit in a uint8.
const maxBins = 256

// binnedFeatures quantizes every feature once per training run so split
// search is a single histogram pass per node.
type binnedFeatures struct {
	bins [][]uint8   // bins[row][feature]
	cuts [][]float64 // bin b of feature f holds values <= cuts[f][b]
}

func binFeatures(x [][]float64) *binnedFeatures {
	bf := &binnedFeatures{bins: make([][]uint8, len(x))}
	if len(x) == 0 {
		return bf
	}
	nf := len(x[0])
	bf.cuts = make([][]float64, nf)
	col := make([]float64, len(x))
	for f := 0; f < nf; f++ {
		for i, row := range x {
			col[i] = row[f]
		}
		bf.cuts[f] = cutPoints(col)
	}
	for i, row := range x {
		b := make([]uint8, nf)
		for f, v := range row {
			b[f] = uint8(sort.SearchFloat64s(bf.cuts[f], v))
		}
		bf.bins[i] = b
	}
	return bf
}

// cutPoints returns midpoints between distinct sorted values, thinned evenly
// when there are more than maxBins-1 of them.
func cutPoints(col []float64) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	var mids []float64
	for i := 1; i < len(sorted); i++ {
		lo, hi := sorted[i-1], sorted[i]
		if lo != hi {
			mids = append(mids, lo+(hi-lo)/2)
		}
	}
	if len(mids) <= maxBins-1 {
		return mids
	}
	out := make([]float64, maxBins-1)
	for i := range out {
		out[i] = mids[i*len(mids)/len(out)]
	}
	return out
}

type pendingNode struct {
	node  int
	rows  []int
	depth int
}

type split struct {
	feature   int
	bin       int
	threshold float64
	gain      float64
	left      []int
	right     []int
}

// fitTree grows a tree breadth-first on the residuals of the given rows,
// stopping at maxDepth or maxLeaves.
func fitTree(bf *binnedFeatures, residual []float64, rows []int, p treeParams) *regressionTree {
	t := &regressionTree{nodes: []treeNode{{}}}
	queue := []pendingNode{{node: 0, rows: rows, depth: 0}}
	leaves := 1

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var best split
		found := false
		if cur.depth < p.maxDepth && leaves < p.maxLeaves && len(cur.rows) >= 2*p.minLeaf {
			best, found = bestSplit(bf, residual, cur.rows, p)
		}
		if !found {
			t.nodes[cur.node] = treeNode{leaf: true, value: leafValue(residual, cur.rows, p)}
			continue
		}

		left := len(t.nodes)
		t.nodes = append(t.nodes, treeNode{}, treeNode{})
		t.nodes[cur.node] = treeNode{
			feature:   best.feature,
			threshold: best.threshold,
			left:      left,
			right:     left + 1,
		}
		leaves++
		queue = append(queue,
			pendingNode{node: left, rows: best.left, depth: cur.depth + 1},
			pendingNode{node: left + 1, rows: best.right, depth: cur.depth + 1},
		)
	}
	return t
}

func bestSplit(bf *binnedFeatures, residual []float64, rows []int, p treeParams) (split, bool) {
	n := len(rows)
	vals := make([]float64, n)
	for i, r := range rows {
		vals[i] = residual[r]
	}
	total := floats.Sum(vals)
	parent := splitScore(total, n, p)

	best := split{gain: 0}
	found := false
	grad := make([]float64, maxBins)
	count := make([]int, maxBins)
	for f, cuts := range bf.cuts {
		if len(cuts) == 0 {
			continue
		}
		nb := len(cuts) + 1
		clear(grad[:nb])
		clear(count[:nb])
		for _, r := range rows {
			b := bf.bins[r][f]
			grad[b] += residual[r]
			count[b]++
		}

		var gl float64
		nl := 0
		for b := 0; b < nb-1; b++ {
			gl += grad[b]
			nl += count[b]
			if count[b] == 0 || nl < p.minLeaf {
				continue
			}
			if n-nl < p.minLeaf {
				break
			}
			gain := splitScore(gl, nl, p) + splitScore(total-gl, n-nl, p) - parent
			if gain > best.gain {
				best = split{feature: f, bin: b, threshold: cuts[b], gain: gain}
				found = true
			}
		}
	}
	if !found {
		return best, false
	}
	for _, r := range rows {
		if int(bf.bins[r][best.feature]) <= best.bin {
			best.left = append(best.left, r)
		} else {
			best.right = append(best.right, r)
		}
	}
	return best, true
}

// softThreshold applies L1 shrinkage to a gradient sum.
func softThreshold(g, l1 float64) float64 {
	if math.Abs(g) <= l1 {
		return 0
	}
	if g > 0 {
		return g - l1
	}
	return g + l1
}

func splitScore(g float64, n int, p treeParams) float64 {
	t := softThreshold(g, p.l1)
	return t * t / (float64(n) + p.l2)
}

func leafValue(residual []float64, rows []int, p treeParams) float64 {
	var g float64
	for _, r := range rows {
		g += residual[r]
	}
	return softThreshold(g, p.l1) / (float64(len(rows)) + p.l2)
}
