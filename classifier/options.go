package classifier

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"mlserve/db"
)

// Recorder persists a line of training history.
type Recorder interface {
	SaveTrainingLog(ctx context.Context, entry db.TrainingLog) error
}

// Notifier receives lifecycle events such as "model.trained".
type Notifier interface {
	Notify(event string, payload interface{})
}

type options struct {
	logger      *zap.Logger
	recorder    Recorder
	notifier    Notifier
	cacheSize   int
	testRatio   float64
	newRand     func() *rand.Rand
	forestTrees int
	maxDepth    int
}

// Option configures a store.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithRecorder(recorder Recorder) Option {
	return func(o *options) { o.recorder = recorder }
}

func WithNotifier(notifier Notifier) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithCacheSize enables an LRU of recent predictions; zero disables it.
func WithCacheSize(size int) Option {
	return func(o *options) { o.cacheSize = size }
}

// WithTestRatio sets the held-out fraction used to score a training run.
func WithTestRatio(ratio float64) Option {
	return func(o *options) { o.testRatio = ratio }
}

// WithRand sets the factory called once per training run for the split and
// for any randomness inside the learner.
func WithRand(newRand func() *rand.Rand) Option {
	return func(o *options) { o.newRand = newRand }
}

// WithForestTrees sets the ensemble size of random forest stores.
func WithForestTrees(n int) Option {
	return func(o *options) { o.forestTrees = n }
}

// WithMaxDepth limits tree depth; zero grows trees until leaves are pure.
func WithMaxDepth(depth int) Option {
	return func(o *options) { o.maxDepth = depth }
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
