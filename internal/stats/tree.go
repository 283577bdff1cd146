package stats

import (
	"math"
	"math/rand/v2"
	"sort"
)

// Task selects the split criterion and leaf value of a tree.
type Task int

const (
	// Classification splits on Gini impurity; leaves hold class frequencies.
	Classification Task = iota
	// Regression splits on squared error; leaves hold the mean target.
	Regression
)

const leafFeature = -1

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	// cover is the number of training samples that reached the node.
	cover    float64
	value    []float64
	impurity float64
}

func (n *treeNode) isLeaf() bool { return n.feature == leafFeature }

// Tree is a fitted CART tree grown until leaves are pure or too small to split.
type Tree struct {
	task      Task
	nClasses  int
	nodes     []treeNode
	gains     []float64
	nFeatures int
}

type treeBuilder struct {
	x           [][]float64
	y           []float64
	task        Task
	nClasses    int
	maxFeatures int
	minSplit    int
	rng         *rand.Rand
	tree        *Tree
}

// growTree fits a tree on the rows listed in sample. Duplicated row indices
// act as sample weights.
func growTree(x [][]float64, y []float64, sample []int, task Task, nClasses, maxFeatures, minSplit int, rng *rand.Rand) *Tree {
	p := len(x[0])
	if maxFeatures <= 0 || maxFeatures > p {
		maxFeatures = p
	}
	if minSplit < 2 {
		minSplit = 2
	}
	b := &treeBuilder{
		x:           x,
		y:           y,
		task:        task,
		nClasses:    nClasses,
		maxFeatures: maxFeatures,
		minSplit:    minSplit,
		rng:         rng,
		tree: &Tree{
			task:      task,
			nClasses:  nClasses,
			gains:     make([]float64, p),
			nFeatures: p,
		},
	}
	b.build(append([]int(nil), sample...))
	return b.tree
}

func (b *treeBuilder) build(idx []int) int {
	value, impurity := b.summarize(idx)
	id := len(b.tree.nodes)
	b.tree.nodes = append(b.tree.nodes, treeNode{
		feature:  leafFeature,
		cover:    float64(len(idx)),
		value:    value,
		impurity: impurity,
	})

	if len(idx) < b.minSplit || impurity <= 1e-12 {
		return id
	}

	feature, threshold, pos, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	sort.SliceStable(idx, func(i, j int) bool { return b.x[idx[i]][feature] < b.x[idx[j]][feature] })
	leftIdx := append([]int(nil), idx[:pos]...)
	rightIdx := append([]int(nil), idx[pos:]...)

	_, impL := b.summarize(leftIdx)
	_, impR := b.summarize(rightIdx)
	n := float64(len(idx))
	b.tree.gains[feature] += n*impurity - float64(len(leftIdx))*impL - float64(len(rightIdx))*impR

	left := b.build(leftIdx)
	right := b.build(rightIdx)

	node := &b.tree.nodes[id]
	node.feature = feature
	node.threshold = threshold
	node.left = left
	node.right = right
	return id
}

// summarize returns the leaf value and impurity of the rows in idx.
func (b *treeBuilder) summarize(idx []int) ([]float64, float64) {
	n := float64(len(idx))
	if b.task == Classification {
		counts := make([]float64, b.nClasses)
		for _, i := range idx {
			counts[int(b.y[i])]++
		}
		gini := 1.0
		for c := range counts {
			counts[c] /= n
			gini -= counts[c] * counts[c]
		}
		return counts, gini
	}

	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	mean := sum / n
	return []float64{mean}, math.Max(0, sumSq/n-mean*mean)
}

// bestSplit scans up to maxFeatures non-constant features in random order
// and returns the split minimising the weighted child impurity.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold float64, pos int, ok bool) {
	best := math.Inf(1)
	visited := 0
	sorted := make([]int, len(idx))

	for _, f := range b.rng.Perm(len(b.x[0])) {
		if visited >= b.maxFeatures {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })
		if b.x[sorted[0]][f] == b.x[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		score, at := b.scanFeature(sorted, f)
		if at > 0 && score < best {
			best = score
			feature = f
			pos = at
			lo, hi := b.x[sorted[at-1]][f], b.x[sorted[at]][f]
			threshold = lo + (hi-lo)/2
			if threshold == hi {
				threshold = lo
			}
			ok = true
		}
	}
	return feature, threshold, pos, ok
}

// scanFeature sweeps the rows sorted by feature f and returns the lowest
// nL*impL + nR*impR and the position of the first right-hand row.
func (b *treeBuilder) scanFeature(sorted []int, f int) (float64, int) {
	n := len(sorted)
	best, bestPos := math.Inf(1), 0

	if b.task == Classification {
		left := make([]float64, b.nClasses)
		right := make([]float64, b.nClasses)
		for _, i := range sorted {
			right[int(b.y[i])]++
		}
		for i := 0; i < n-1; i++ {
			c := int(b.y[sorted[i]])
			left[c]++
			right[c]--
			if b.x[sorted[i]][f] == b.x[sorted[i+1]][f] {
				continue
			}
			nl, nr := float64(i+1), float64(n-i-1)
			score := nl*gini(left, nl) + nr*gini(right, nr)
			if score < best {
				best, bestPos = score, i+1
			}
		}
		return best, bestPos
	}

	var totalSum, totalSq float64
	for _, i := range sorted {
		totalSum += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}
	var sumL, sqL float64
	for i := 0; i < n-1; i++ {
		v := b.y[sorted[i]]
		sumL += v
		sqL += v * v
		if b.x[sorted[i]][f] == b.x[sorted[i+1]][f] {
			continue
		}
		nl, nr := float64(i+1), float64(n-i-1)
		sumR, sqR := totalSum-sumL, totalSq-sqL
		// n*variance = sum of squares minus n*mean^2
		score := (sqL - sumL*sumL/nl) + (sqR - sumR*sumR/nr)
		if score < best {
			best, bestPos = score, i+1
		}
	}
	return best, bestPos
}

func gini(counts []float64, n float64) float64 {
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

// leaf returns the leaf reached by row.
func (t *Tree) leaf(row []float64) *treeNode {
	node := &t.nodes[0]
	for !node.isLeaf() {
		if row[node.feature] <= node.threshold {
			node = &t.nodes[node.left]
		} else {
			node = &t.nodes[node.right]
		}
	}
	return node
}

// Predict returns the leaf value for row: class frequencies for
// classification trees, a single mean for regression trees.
func (t *Tree) Predict(row []float64) []float64 {
	return t.leaf(row).value
}

// NodeCount is the number of nodes in the tree.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// importances returns the impurity decrease per feature normalised to sum 1.
func (t *Tree) importances() []float64 {
	out := make([]float64, len(t.gains))
	total := Sum(t.gains)
	if total <= 0 {
		return out
	}
	for i, g := range t.gains {
		out[i] = g / total
	}
	return out
}

// conditionalExpectation is the tree output when only the features in
// known (bitmask over feature indices) are observed; unobserved splits
// are averaged by training cover.
func (t *Tree) conditionalExpectation(row []float64, known uint64, output func([]float64) float64) float64 {
	var walk func(id int) float64
	walk = func(id int) float64 {
		node := &t.nodes[id]
		if node.isLeaf() {
			return output(node.value)
		}
		if known&(1<<uint(node.feature)) != 0 {
			if row[node.feature] <= node.threshold {
				return walk(node.left)
			}
			return walk(node.right)
		}
		l, r := &t.nodes[node.left], &t.nodes[node.right]
		return (l.cover*walk(node.left) + r.cover*walk(node.right)) / node.cover
	}
	return walk(0)
}
