package ml

import (
	"errors"
	"math"
	"math/rand"
)

// RandomForest is a bagged ensemble of decision trees, each grown on a
// bootstrap sample with sqrt(n) features considered per split.
type RandomForest struct {
	NTrees    int
	MaxDepth  int
	Criterion Criterion
	Trees     []*DecisionTree

	rng *rand.Rand
}

func NewRandomForest(nTrees, maxDepth int) *RandomForest {
	if nTrees <= 0 {
		nTrees = 100
	}
	return &RandomForest{NTrees: nTrees, MaxDepth: maxDepth, Criterion: Gini}
}

// WithRand sets the random source used for bootstrap sampling and for
// seeding each member tree.
func (rf *RandomForest) WithRand(rng *rand.Rand) *RandomForest {
	rf.rng = rng
	return rf
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	rng := rf.rng
	if rng == nil {
		rng = NewTimeRand()
	}
	maxFeatures := int(math.Sqrt(float64(len(features[0]))))
	if maxFeatures < 1 {
		maxFeatures = 1
	}

	trees := make([]*DecisionTree, 0, rf.NTrees)
	n := len(features)
	sampleX := make([][]float64, n)
	sampleY := make([]int, n)
	for t := 0; t < rf.NTrees; t++ {
		for i := 0; i < n; i++ {
			idx := rng.Intn(n)
			sampleX[i] = features[idx]
			sampleY[i] = labels[idx]
		}
		tree := NewDecisionTree(rf.MaxDepth, rf.Criterion)
		tree.MaxFeatures = maxFeatures
		tree.WithRand(rand.New(rand.NewSource(rng.Int63())))
		if err := tree.Train(sampleX, sampleY); err != nil {
			return err
		}
		trees = append(trees, tree)
	}
	rf.Trees = trees
	return nil
}

// Predict returns the majority vote across trees and the share of trees that
// voted for it. Ties go to the lowest label.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	if len(rf.Trees) == 0 {
		return 0, 0, ErrNotTrained
	}
	votes := make(map[int]int)
	for _, tree := range rf.Trees {
		label, _, err := tree.Predict(features)
		if err != nil {
			return 0, 0, err
		}
		votes[label]++
	}
	bestLabel, bestCount := -1, -1
	for label, count := range votes {
		if count > bestCount || (count == bestCount && label < bestLabel) {
			bestLabel, bestCount = label, count
		}
	}
	return bestLabel, float64(bestCount) / float64(len(rf.Trees)), nil
}
