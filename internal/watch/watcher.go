package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultDebounce = 500 * time.Millisecond

type ReloadFunc func(ctx context.Context) error

// CorpusWatcher triggers a reload when the corpus file changes. The parent
// directory is watched so editors that replace the file by rename are seen
// too. Bursts of events collapse into one reload after the debounce delay.
type CorpusWatcher struct {
	path     string
	debounce time.Duration
	reload   ReloadFunc
	watcher  *fsnotify.Watcher
}

func NewCorpusWatcher(path string, debounce time.Duration, reload ReloadFunc) (*CorpusWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &CorpusWatcher{path: abs, debounce: debounce, reload: reload, watcher: w}, nil
}

// Run blocks until ctx is done or the watcher is closed.
func (w *CorpusWatcher) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx).With(zap.String("path", w.path))
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug("corpus file event", zap.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("corpus watcher error", zap.Error(err))
		case <-timer.C:
			if err := w.reload(ctx); err != nil {
				logger.Error("corpus reload failed", zap.Error(err))
				continue
			}
			logger.Info("corpus reloaded after file change")
		}
	}
}

func (w *CorpusWatcher) Close() error {
	return w.watcher.Close()
}

func (w *CorpusWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}
