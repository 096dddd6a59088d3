package ml

import (
	"math"
	"math/rand"
	"time"
)

// TrainTestSplit shuffles the samples with rng and holds out
// ceil(len*testRatio) of them for evaluation. A ratio outside (0, 1) falls
// back to 0.2.
func TrainTestSplit(features [][]float64, labels []int, testRatio float64, rng *rand.Rand) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	if rng == nil {
		rng = NewTimeRand()
	}
	indices := rng.Perm(len(features))

	testCount := int(math.Ceil(float64(len(features)) * testRatio))
	split := len(features) - testCount
	for i, idx := range indices {
		if i < split {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		} else {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}

// NewSeededRand returns a deterministic source for reproducible training.
func NewSeededRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NewTimeRand returns a source seeded from the wall clock.
func NewTimeRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
