package classifier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"mlserve/dataset"
	"mlserve/ml"
	"mlserve/pipeline"
)

const (
	defaultSurvivalTestRatio = 0.25
	defaultSurvivalSeed      = 42
	defaultSurvivalDepth     = 3
	// DefaultArtifactPath is where the survival model is saved when no path
	// is configured.
	DefaultArtifactPath = "models/titanic_dt.gob"

	survived = "Survived"
	death    = "Death"
)

// FrameSource supplies the raw survival table.
type FrameSource interface {
	Frame() (*dataset.Frame, error)
	Name() string
}

// Passenger is an encoded survival feature vector. Sex is 0 for male and 1
// otherwise, see pipeline.EncodeSex.
type Passenger struct {
	Pclass float64
	Sex    float64
	Age    float64
	SibSp  float64
}

func (p Passenger) vector() []float64 {
	return []float64{p.Pclass, p.Sex, p.Age, p.SibSp}
}

// SurvivalStore trains a depth-limited decision tree on the passenger data
// and persists it to a single artifact file.
type SurvivalStore struct {
	*store
	source       FrameSource
	artifactPath string

	// artifactMu serialises file access; artifactModTime is the mtime of
	// the artifact as last written or read by this store.
	artifactMu      sync.Mutex
	artifactModTime time.Time
}

// NewSurvivalStore returns an untrained store reading from source and
// persisting to artifactPath.
func NewSurvivalStore(source FrameSource, artifactPath string, opts ...Option) (*SurvivalStore, error) {
	if source == nil {
		return nil, errors.New("survival source is nil")
	}
	if artifactPath == "" {
		artifactPath = DefaultArtifactPath
	}
	o := buildOptions(options{
		testRatio: defaultSurvivalTestRatio,
		newRand:   func() *rand.Rand { return ml.NewSeededRand(defaultSurvivalSeed) },
		maxDepth:  defaultSurvivalDepth,
	}, opts)
	s, err := newStore("titanic", SurvivalTree, o)
	if err != nil {
		return nil, err
	}
	ss := &SurvivalStore{
		store:        s,
		source:       source,
		artifactPath: artifactPath,
	}
	return ss, nil
}

// ArtifactPath returns the file Save writes and Load reads.
func (ss *SurvivalStore) ArtifactPath() string {
	return ss.artifactPath
}

// Train preprocesses the current table, fits a Gini and an entropy tree on
// the same split and keeps the one with the higher held-out accuracy. Ties
// keep the Gini tree.
func (ss *SurvivalStore) Train(ctx context.Context) (float64, error) {
	frame, err := ss.source.Frame()
	if err != nil {
		return 0, err
	}
	prepared, err := pipeline.Preprocess(frame)
	if err != nil {
		return 0, fmt.Errorf("preprocess %s: %w", ss.source.Name(), err)
	}

	rng := ss.opts.newRand()
	trainX, trainY, testX, testY := ml.TrainTestSplit(prepared.Features, prepared.Labels, ss.opts.testRatio, rng)

	var (
		best         ml.MLModel
		bestAccuracy float64
	)
	for _, criterion := range []ml.Criterion{ml.Gini, ml.Entropy} {
		tree := ml.NewDecisionTree(ss.opts.maxDepth, criterion).WithRand(rng)
		if err := tree.Train(trainX, trainY); err != nil {
			return 0, fmt.Errorf("train %s tree: %w", criterion, err)
		}
		accuracy, err := ml.Accuracy(tree, testX, testY)
		if err != nil {
			return 0, fmt.Errorf("evaluate %s tree: %w", criterion, err)
		}
		ss.opts.logger.Debug("candidate tree scored",
			zap.String("criterion", string(criterion)),
			zap.Float64("accuracy", accuracy))
		if best == nil || accuracy > bestAccuracy {
			best, bestAccuracy = tree, accuracy
		}
	}

	ss.swap(ctx, fitResult{
		model:     best,
		accuracy:  &bestAccuracy,
		source:    sourceTrain,
		trainRows: len(trainY),
		testRows:  len(testY),
	})
	return bestAccuracy, nil
}

// Predict returns "Survived" or "Death" for p.
func (ss *SurvivalStore) Predict(p Passenger) (string, error) {
	label, err := ss.predictLabel(p.vector())
	if err != nil {
		return "", err
	}
	if label == 1 {
		return survived, nil
	}
	return death, nil
}

// Save writes the current model to the artifact path, replacing any
// previous artifact.
func (ss *SurvivalStore) Save() error {
	model, _, err := ss.current()
	if err != nil {
		return err
	}

	ss.artifactMu.Lock()
	defer ss.artifactMu.Unlock()

	if err := ml.SaveModel(ss.artifactPath, model); err != nil {
		return fmt.Errorf("save %s: %w", ss.artifactPath, err)
	}
	if info, err := os.Stat(ss.artifactPath); err == nil {
		ss.artifactModTime = info.ModTime()
	}
	ss.opts.logger.Info("model saved", zap.String("model", ss.name), zap.String("path", ss.artifactPath))
	ss.notify("model.saved", ss.Status())
	return nil
}

// Load replaces the current model with the artifact on disk. The artifact
// carries no accuracy, so a loaded store reports none. On failure the store
// is left unchanged.
func (ss *SurvivalStore) Load(ctx context.Context) error {
	ss.artifactMu.Lock()
	defer ss.artifactMu.Unlock()
	return ss.loadLocked(ctx)
}

func (ss *SurvivalStore) loadLocked(ctx context.Context) error {
	info, statErr := os.Stat(ss.artifactPath)
	model, err := ml.LoadModel(ss.artifactPath)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrArtifactNotFound, ss.artifactPath)
	case errors.Is(err, ml.ErrCorruptArtifact):
		return fmt.Errorf("%w: %v", ErrArtifactCorrupt, err)
	default:
		return fmt.Errorf("load %s: %w", ss.artifactPath, err)
	}
	if statErr == nil {
		ss.artifactModTime = info.ModTime()
	}
	ss.swap(ctx, fitResult{model: model, source: sourceLoad})
	return nil
}

// ReloadIfChanged loads the artifact when its modification time differs
// from the one this store last wrote or read. It reports whether a reload
// happened.
func (ss *SurvivalStore) ReloadIfChanged(ctx context.Context) (bool, error) {
	ss.artifactMu.Lock()
	defer ss.artifactMu.Unlock()

	info, err := os.Stat(ss.artifactPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if info.ModTime().Equal(ss.artifactModTime) {
		return false, nil
	}
	if err := ss.loadLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}
