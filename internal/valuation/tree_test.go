package valuation

import (
	"math"
	"testing"
)

func TestCutPointsMidpoints(t *testing.T) {
	got := cutPoints([]float64{3, 1, 1, 2})
	if len(got) != 2 || got[0] != 1.5 || got[1] != 2.5 {
		t.Fatalf("cuts %v", got)
	}
	if got := cutPoints([]float64{7, 7, 7}); len(got) != 0 {
		t.Fatalf("constant column should have no cuts, got %v", got)
	}
}

func TestCutPointsThinned(t *testing.T) {
	col := make([]float64, 5000)
	for i := range col {
		col[i] = float64(i)
	}
	cuts := cutPoints(col)
	if len(cuts) != maxBins-1 {
		t.Fatalf("expected %d cuts, got %d", maxBins-1, len(cuts))
	}
	for i := 1; i < len(cuts); i++ {
		if cuts[i] <= cuts[i-1] {
			t.Fatalf("cuts not strictly increasing at %d: %v <= %v", i, cuts[i], cuts[i-1])
		}
	}
}

func TestBinFeaturesMatchesThresholds(t *testing.T) {
	x := [][]float64{{1, 10}, {2, 10}, {3, 20}, {4, 30}}
	bf := binFeatures(x)
	for f := range bf.cuts {
		for i, row := range x {
			for b, c := range bf.cuts[f] {
				if (int(bf.bins[i][f]) <= b) != (row[f] <= c) {
					t.Fatalf("row %d feature %d: bin %d disagrees with cut %v", i, f, bf.bins[i][f], c)
				}
			}
		}
	}
}

func TestFitTreeSplitsOnSignal(t *testing.T) {
	x := make([][]float64, 1000)
	residual := make([]float64, len(x))
	rows := make([]int, len(x))
	for i := range x {
		x[i] = []float64{float64(i) * 1.5, float64(i % 7)}
		if i >= 600 {
			residual[i] = 10
		} else {
			residual[i] = -10
		}
		rows[i] = i
	}
	tree := fitTree(binFeatures(x), residual, rows, treeParams{maxDepth: 1, maxLeaves: 2, minLeaf: 1})
	root := tree.nodes[0]
	if root.leaf || root.feature != 0 {
		t.Fatalf("expected a split on feature 0, got %+v", root)
	}
	if lo, hi := tree.predict([]float64{0, 0}), tree.predict([]float64{1498, 0}); lo >= 0 || hi <= 0 {
		t.Fatalf("leaves not separated: %v %v", lo, hi)
	}
	// Thinned bins put the cut near, not exactly at, the 600th row.
	if math.Abs(root.threshold-600*1.5) > 10 {
		t.Fatalf("threshold %v far from the step at 900", root.threshold)
	}
}
