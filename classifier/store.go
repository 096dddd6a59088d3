package classifier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"mlserve/db"
	"mlserve/ml"
)

const (
	sourceTrain = "train"
	sourceLoad  = "load"
)

// store holds the lifecycle state shared by every classifier. The model
// handle and its accuracy are only ever replaced together under mu.
type store struct {
	name string
	kind Kind
	opts options

	cache *predictionCache

	mu         sync.RWMutex
	status     FitStatus
	model      ml.MLModel
	accuracy   *float64
	generation uint64
	trainedAt  time.Time
	source     string
}

func newStore(name string, kind Kind, opts options) (*store, error) {
	cache, err := newPredictionCache(opts.cacheSize)
	if err != nil {
		return nil, err
	}
	return &store{name: name, kind: kind, opts: opts, cache: cache}, nil
}

type fitResult struct {
	model     ml.MLModel
	accuracy  *float64
	source    string
	trainRows int
	testRows  int
}

// swap installs a freshly fitted model and reports it to the hooks.
func (s *store) swap(ctx context.Context, fit fitResult) Snapshot {
	s.mu.Lock()
	s.status = Trained
	s.model = fit.model
	s.accuracy = fit.accuracy
	s.generation++
	s.trainedAt = time.Now().UTC()
	s.source = fit.source
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.cache.purge()

	fields := []zap.Field{
		zap.String("model", s.name),
		zap.String("source", fit.source),
		zap.Uint64("generation", snap.Generation),
	}
	if fit.accuracy != nil {
		fields = append(fields, zap.Float64("accuracy", *fit.accuracy))
	}
	s.opts.logger.Info("model swapped", fields...)

	if s.opts.recorder != nil {
		entry := db.TrainingLog{
			ModelName: s.name,
			Source:    fit.source,
			Accuracy:  fit.accuracy,
			TrainRows: fit.trainRows,
			TestRows:  fit.testRows,
			TrainedAt: snap.TrainedAt.UTC(),
		}
		if err := s.opts.recorder.SaveTrainingLog(ctx, entry); err != nil {
			s.opts.logger.Warn("failed to record training log", zap.String("model", s.name), zap.Error(err))
		}
	}
	s.notify("model."+eventVerb(fit.source), snap)
	return snap
}

func eventVerb(source string) string {
	if source == sourceLoad {
		return "loaded"
	}
	return "trained"
}

func (s *store) notify(event string, payload interface{}) {
	if s.opts.notifier != nil {
		s.opts.notifier.Notify(event, payload)
	}
}

// current returns the model handle and generation, or ErrModelNotTrained.
func (s *store) current() (ml.MLModel, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != Trained {
		return nil, 0, ErrModelNotTrained
	}
	return s.model, s.generation, nil
}

func (s *store) predictLabel(vector []float64) (int, error) {
	model, generation, err := s.current()
	if err != nil {
		return 0, err
	}
	if label, ok := s.cache.get(generation, vector); ok {
		return label, nil
	}
	label, _, err := model.Predict(vector)
	if err != nil {
		return 0, err
	}
	s.cache.add(generation, vector, label)
	return label, nil
}

// Status returns a consistent snapshot of the store.
func (s *store) Status() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Name:       s.name,
		Kind:       s.kind,
		Status:     s.status,
		Source:     s.source,
		Generation: s.generation,
	}
	if s.accuracy != nil {
		accuracy := *s.accuracy
		snap.Accuracy = &accuracy
	}
	if !s.trainedAt.IsZero() {
		trainedAt := s.trainedAt
		snap.TrainedAt = &trainedAt
	}
	return snap
}

// Name identifies the store in logs, history and /models.
func (s *store) Name() string {
	return s.name
}
