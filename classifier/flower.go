package classifier

import (
	"context"
	"fmt"

	"mlserve/dataset"
	"mlserve/ml"
)

const (
	defaultFlowerTestRatio = 0.5
	defaultForestTrees     = 100
)

// Flower is one iris measurement in centimetres.
type Flower struct {
	SepalLength float64
	SepalWidth  float64
	PetalLength float64
	PetalWidth  float64
}

func (f Flower) vector() []float64 {
	return []float64{f.SepalLength, f.SepalWidth, f.PetalLength, f.PetalWidth}
}

// FlowerStore trains a decision tree or random forest on the iris data.
// Every Train draws a fresh split, so accuracy varies between runs.
type FlowerStore struct {
	*store
	data *dataset.Dataset
}

// NewFlowerStore returns an untrained store of the given kind.
func NewFlowerStore(kind Kind, data *dataset.Dataset, opts ...Option) (*FlowerStore, error) {
	if kind != DecisionTree && kind != RandomForest {
		return nil, fmt.Errorf("unsupported flower classifier kind %q", kind)
	}
	if data == nil || data.Len() == 0 {
		return nil, fmt.Errorf("flower dataset is empty")
	}
	o := buildOptions(options{
		testRatio:   defaultFlowerTestRatio,
		newRand:     ml.NewTimeRand,
		forestTrees: defaultForestTrees,
	}, opts)
	s, err := newStore(string(kind), kind, o)
	if err != nil {
		return nil, err
	}
	return &FlowerStore{store: s, data: data}, nil
}

// Train fits a new model and returns its held-out accuracy.
func (fs *FlowerStore) Train(ctx context.Context) (float64, error) {
	rng := fs.opts.newRand()
	trainX, trainY, testX, testY := ml.TrainTestSplit(fs.data.Features, fs.data.Labels, fs.opts.testRatio, rng)

	var model ml.MLModel
	switch fs.kind {
	case RandomForest:
		forest := ml.NewRandomForest(fs.opts.forestTrees, fs.opts.maxDepth).WithRand(rng)
		forest.Criterion = ml.Gini
		model = forest
	default:
		model = ml.NewDecisionTree(fs.opts.maxDepth, ml.Gini).WithRand(rng)
	}
	if err := model.Train(trainX, trainY); err != nil {
		return 0, fmt.Errorf("train %s: %w", fs.name, err)
	}
	accuracy, err := ml.Accuracy(model, testX, testY)
	if err != nil {
		return 0, fmt.Errorf("evaluate %s: %w", fs.name, err)
	}

	fs.swap(ctx, fitResult{
		model:     model,
		accuracy:  &accuracy,
		source:    sourceTrain,
		trainRows: len(trainY),
		testRows:  len(testY),
	})
	return accuracy, nil
}

// Predict returns the species name for f.
func (fs *FlowerStore) Predict(f Flower) (string, error) {
	label, err := fs.predictLabel(f.vector())
	if err != nil {
		return "", err
	}
	return fs.data.LabelName(label)
}
