package classifier

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher reloads a SurvivalStore when another process replaces its
// artifact file.
type ArtifactWatcher struct {
	store   *SurvivalStore
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	start   sync.Once
	done    chan struct{}
}

// WatchArtifact watches the directory holding the store's artifact. The
// directory is created if needed since SaveModel replaces the file by rename.
func WatchArtifact(store *SurvivalStore, logger *zap.Logger) (*ArtifactWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(store.ArtifactPath())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return &ArtifactWatcher{
		store:   store,
		watcher: watcher,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// Start handles file events in the background until ctx is cancelled or
// Close is called.
func (w *ArtifactWatcher) Start(ctx context.Context) {
	w.start.Do(func() { go w.run(ctx) })
}

func (w *ArtifactWatcher) run(ctx context.Context) {
	defer close(w.done)
	target := filepath.Clean(w.store.ArtifactPath())
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			reloaded, err := w.store.ReloadIfChanged(ctx)
			if err != nil {
				w.logger.Warn("artifact reload failed", zap.String("path", target), zap.Error(err))
				continue
			}
			if reloaded {
				w.logger.Info("artifact reloaded", zap.String("path", target))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher and waits for the event loop started by Start.
// Start is a no-op after Close.
func (w *ArtifactWatcher) Close() error {
	err := w.watcher.Close()
	w.start.Do(func() { close(w.done) })
	<-w.done
	return err
}
