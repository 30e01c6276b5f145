package serving

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher triggers a hot reload when the artifact file changes on disk.
// The parent directory is watched so atomic rename-into-place writes are
// seen; events are debounced because writers fire several in a row.
type Watcher struct {
	fw       *fsnotify.Watcher
	store    *Store
	path     string
	debounce time.Duration
	log      *zap.Logger
}

func WatchArtifact(path string, store *Store, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		fw:       fw,
		store:    store,
		path:     filepath.Clean(path),
		debounce: 500 * time.Millisecond,
		log:      log,
	}, nil
}

// Run blocks until ctx is cancelled or the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("artifact watcher error", zap.Error(err))
		case <-fire:
			timer = nil
			fire = nil
			if _, err := w.store.Reload(ctx); err != nil {
				if errors.Is(err, ErrReloadInProgress) {
					w.log.Debug("artifact changed during an active reload")
					continue
				}
				w.log.Warn("automatic reload failed", zap.Error(err))
				continue
			}
			w.log.Info("automatic reload after artifact change", zap.String("path", w.path))
		}
	}
}

func (w *Watcher) Close() error {
	return w.fw.Close()
}
