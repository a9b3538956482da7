package training

import (
	"context"
	"math"
	"math/rand"
	"sort"
)

// TreeNode is one node of a regression tree stored in a flat slice.
// Left and Right index into the same slice.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64 // Leaf prediction value
	IsLeaf    bool
}

// RegressionTree is a binary tree whose leaves hold the mean target of the
// training rows that reached them
type RegressionTree struct {
	Nodes []TreeNode
}

// Predict walks the tree from the root to a leaf
func (t *RegressionTree) Predict(features []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		node := &t.Nodes[i]
		if node.IsLeaf {
			return node.Value
		}
		if features[node.Feature] <= node.Threshold {
			i = node.Left
		} else {
			i = node.Right
		}
	}
}

// ctxCheckInterval is how many nodes are grown between cancellation checks
const ctxCheckInterval = 256

// treeBuilder grows one tree using variance reduction splits
type treeBuilder struct {
	ctx        context.Context
	err        error
	features   [][]float64
	target     []float64
	maxDepth   int
	minSamples int
	nodes      []TreeNode
	scratch    []int
}

func newTreeBuilder(ctx context.Context, features [][]float64, target []float64, maxDepth, minSamples int) *treeBuilder {
	return &treeBuilder{
		ctx:        ctx,
		features:   features,
		target:     target,
		maxDepth:   maxDepth,
		minSamples: minSamples,
		scratch:    make([]int, len(target)),
	}
}

// build grows a tree over rows. It stops early with the context's error
// when the context ends.
func (b *treeBuilder) build(rows []int) (RegressionTree, error) {
	b.nodes = b.nodes[:0]
	b.err = nil
	b.grow(rows, 0)
	if b.err != nil {
		return RegressionTree{}, b.err
	}
	return RegressionTree{Nodes: b.nodes}, nil
}

// grow recursively builds the subtree for rows and returns its node index.
// rows is reordered in place.
func (b *treeBuilder) grow(rows []int, depth int) int {
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{IsLeaf: true, Value: b.mean(rows)})

	if b.err == nil && idx%ctxCheckInterval == 0 {
		b.err = b.ctx.Err()
	}

	// Stop conditions
	if b.err != nil || depth >= b.maxDepth || len(rows) < b.minSamples || b.isHomogeneous(rows) {
		return idx
	}

	feature, threshold, ok := b.findBestSplit(rows)
	if !ok {
		return idx
	}

	k := partition(rows, func(r int) bool { return b.features[r][feature] <= threshold })
	if k == 0 || k == len(rows) {
		return idx
	}

	left := b.grow(rows[:k], depth+1)
	right := b.grow(rows[k:], depth+1)
	b.nodes[idx] = TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      left,
		Right:     right,
	}
	return idx
}

// findBestSplit scans every feature in sorted order and picks the threshold
// that maximizes sumL^2/nL + sumR^2/nR, which is equivalent to minimizing
// the summed squared error of both children
func (b *treeBuilder) findBestSplit(rows []int) (int, float64, bool) {
	n := len(rows)
	total := 0.0
	for _, r := range rows {
		total += b.target[r]
	}
	parentScore := total * total / float64(n)
	minGain := 1e-12 * math.Max(1, math.Abs(parentScore))

	bestFeature := -1
	bestThreshold := 0.0
	bestGain := minGain

	sorted := b.scratch[:n]
	numFeatures := len(b.features[rows[0]])
	for f := 0; f < numFeatures; f++ {
		copy(sorted, rows)
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][f] < b.features[sorted[j]][f]
		})

		leftSum := 0.0
		for i := 0; i < n-1; i++ {
			leftSum += b.target[sorted[i]]
			lo := b.features[sorted[i]][f]
			hi := b.features[sorted[i+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(i + 1)
			nr := float64(n - i - 1)
			rightSum := total - leftSum
			gain := leftSum*leftSum/nl + rightSum*rightSum/nr - parentScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func (b *treeBuilder) mean(rows []int) float64 {
	if len(rows) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range rows {
		sum += b.target[r]
	}
	return sum / float64(len(rows))
}

func (b *treeBuilder) isHomogeneous(rows []int) bool {
	if len(rows) == 0 {
		return true
	}
	first := b.target[rows[0]]
	for _, r := range rows[1:] {
		if b.target[r] != first {
			return false
		}
	}
	return true
}

// partition moves rows matching pred to the front and returns their count
func partition(rows []int, pred func(int) bool) int {
	k := 0
	for i, r := range rows {
		if pred(r) {
			rows[i], rows[k] = rows[k], rows[i]
			k++
		}
	}
	return k
}

// bootstrap draws n row indices with replacement
func bootstrap(n int, seed int64) []int {
	rng := rand.New(rand.NewSource(seed))
	rows := make([]int, n)
	for i := range rows {
		rows[i] = rng.Intn(n)
	}
	return rows
}
