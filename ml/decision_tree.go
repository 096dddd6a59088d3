package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Criterion is the impurity measure used to rank candidate splits.
type Criterion string

const (
	Gini    Criterion = "gini"
	Entropy Criterion = "entropy"
)

// ParseCriterion validates a criterion name. The empty string selects Gini.
func ParseCriterion(name string) (Criterion, error) {
	switch Criterion(name) {
	case "", Gini:
		return Gini, nil
	case Entropy:
		return Entropy, nil
	default:
		return "", fmt.Errorf("unknown criterion %q", name)
	}
}

// DecisionTree is a binary CART classifier stored as a flat node slice with
// the root at index 0.
type DecisionTree struct {
	// MaxDepth limits the depth of the tree; zero or less grows until leaves
	// are pure.
	MaxDepth  int
	Criterion Criterion
	// MaxFeatures is the number of features drawn at random per split; zero
	// or less considers every feature.
	MaxFeatures int
	Nodes       []TreeNode

	rng *rand.Rand
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Confidence float64 `json:"confidence"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(maxDepth int, criterion Criterion) *DecisionTree {
	if criterion == "" {
		criterion = Gini
	}
	return &DecisionTree{MaxDepth: maxDepth, Criterion: criterion}
}

// WithRand sets the random source used for feature subsampling.
func (dt *DecisionTree) WithRand(rng *rand.Rand) *DecisionTree {
	dt.rng = rng
	return dt
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, feature := range features {
		if len(feature) != width {
			return fmt.Errorf("feature vector %d has %d values, expected %d", i, len(feature), width)
		}
	}
	classes := 0
	for _, label := range labels {
		if label < 0 {
			return fmt.Errorf("negative class label %d", label)
		}
		if label+1 > classes {
			classes = label + 1
		}
	}
	if dt.Criterion == "" {
		dt.Criterion = Gini
	}

	b := &treeBuilder{tree: dt, classes: classes, width: width}
	dt.Nodes = b.buildNode(features, labels, 0)
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	if len(dt.Nodes) == 0 {
		return 0, 0, ErrNotTrained
	}
	idx := 0
	for {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.ClassLabel, node.Confidence, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.Nodes) {
			return 0, 0, errors.New("invalid tree state")
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.Nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return 0
		}
		left, right := walk(node.LeftChild), walk(node.RightChild)
		if left > right {
			return left + 1
		}
		return right + 1
	}
	return walk(0)
}

type treeBuilder struct {
	tree    *DecisionTree
	classes int
	width   int
}

func (b *treeBuilder) buildNode(features [][]float64, labels []int, depth int) []TreeNode {
	counts := b.classCounts(labels)
	label, confidence := majorityLabel(counts, len(labels))
	leaf := []TreeNode{{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		ClassLabel: label,
		Confidence: confidence,
		IsLeaf:     true,
	}}
	if (b.tree.MaxDepth > 0 && depth >= b.tree.MaxDepth) || isPure(counts) {
		return leaf
	}

	bestFeature, threshold, ok := b.findBestSplit(features, labels)
	if !ok {
		return leaf
	}

	leftFeatures, leftLabels, rightFeatures, rightLabels := splitData(features, labels, bestFeature, threshold)
	if len(leftLabels) == 0 || len(rightLabels) == 0 {
		return leaf
	}

	leftNodes := b.buildNode(leftFeatures, leftLabels, depth+1)
	rightNodes := b.buildNode(rightFeatures, rightLabels, depth+1)

	root := TreeNode{
		FeatureIdx: bestFeature,
		Threshold:  threshold,
		LeftChild:  1,
		RightChild: 1 + len(leftNodes),
		ClassLabel: label,
		Confidence: confidence,
		IsLeaf:     false,
	}

	nodes := make([]TreeNode, 0, 1+len(leftNodes)+len(rightNodes))
	nodes = append(nodes, root)
	nodes = append(nodes, offsetChildren(leftNodes, 1)...)
	nodes = append(nodes, offsetChildren(rightNodes, 1+len(leftNodes))...)
	return nodes
}

// offsetChildren rebases child indices of a subtree placed at offset.
func offsetChildren(nodes []TreeNode, offset int) []TreeNode {
	for i := range nodes {
		if nodes[i].IsLeaf {
			continue
		}
		nodes[i].LeftChild += offset
		nodes[i].RightChild += offset
	}
	return nodes
}

type labeledValue struct {
	value float64
	label int
}

// findBestSplit keeps looking past the sampled features when none of them
// can separate the node.
func (b *treeBuilder) findBestSplit(features [][]float64, labels []int) (int, float64, bool) {
	candidates := b.candidateFeatures()
	feature, threshold, ok := b.scanSplits(features, labels, candidates)
	if ok || len(candidates) == b.width {
		return feature, threshold, ok
	}
	all := make([]int, b.width)
	for i := range all {
		all[i] = i
	}
	return b.scanSplits(features, labels, all)
}

// scanSplits scans midpoints between consecutive distinct values of each
// candidate feature and keeps the split with the lowest weighted impurity.
// Ties keep the earliest feature and the lowest threshold.
func (b *treeBuilder) scanSplits(features [][]float64, labels []int, candidates []int) (int, float64, bool) {
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	total := len(labels)
	pairs := make([]labeledValue, total)
	left := make([]int, b.classes)
	right := make([]int, b.classes)

	for _, featureIdx := range candidates {
		for i := range features {
			pairs[i] = labeledValue{value: features[i][featureIdx], label: labels[i]}
		}
		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

		for c := range left {
			left[c] = 0
			right[c] = 0
		}
		for _, p := range pairs {
			right[p.label]++
		}

		for i := 0; i < total-1; i++ {
			left[pairs[i].label]++
			right[pairs[i].label]--
			if pairs[i].value == pairs[i+1].value {
				continue
			}
			nLeft := i + 1
			nRight := total - nLeft
			impurity := (float64(nLeft)*b.impurity(left, nLeft) + float64(nRight)*b.impurity(right, nRight)) / float64(total)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = featureIdx
				bestThreshold = (pairs[i].value + pairs[i+1].value) / 2
			}
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (b *treeBuilder) candidateFeatures() []int {
	all := make([]int, b.width)
	for i := range all {
		all[i] = i
	}
	k := b.tree.MaxFeatures
	if k <= 0 || k >= b.width {
		return all
	}
	rng := b.tree.rng
	if rng == nil {
		rng = NewTimeRand()
	}
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	chosen := all[:k]
	sort.Ints(chosen)
	return chosen
}

func (b *treeBuilder) impurity(counts []int, n int) float64 {
	if b.tree.Criterion == Entropy {
		return entropy(counts, n)
	}
	return gini(counts, n)
}

func (b *treeBuilder) classCounts(labels []int) []int {
	counts := make([]int, b.classes)
	for _, label := range labels {
		counts[label]++
	}
	return counts
}

func splitData(features [][]float64, labels []int, featureIdx int, threshold float64) ([][]float64, []int, [][]float64, []int) {
	leftFeatures := make([][]float64, 0)
	leftLabels := make([]int, 0)
	rightFeatures := make([][]float64, 0)
	rightLabels := make([]int, 0)
	for i, feature := range features {
		if feature[featureIdx] <= threshold {
			leftFeatures = append(leftFeatures, feature)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightFeatures = append(rightFeatures, feature)
			rightLabels = append(rightLabels, labels[i])
		}
	}
	return leftFeatures, leftLabels, rightFeatures, rightLabels
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, count := range counts {
		prob := float64(count) / float64(n)
		impurity -= prob * prob
	}
	return impurity
}

func entropy(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	h := 0.0
	for _, count := range counts {
		if count == 0 {
			continue
		}
		prob := float64(count) / float64(n)
		h -= prob * math.Log2(prob)
	}
	return h
}

// majorityLabel picks the most frequent class; ties go to the lowest label.
func majorityLabel(counts []int, n int) (int, float64) {
	bestLabel := 0
	bestCount := -1
	for label, count := range counts {
		if count > bestCount {
			bestCount = count
			bestLabel = label
		}
	}
	if n == 0 {
		return bestLabel, 0
	}
	return bestLabel, float64(bestCount) / float64(n)
}

func isPure(counts []int) bool {
	seen := 0
	for _, count := range counts {
		if count > 0 {
			seen++
		}
	}
	return seen <= 1
}
