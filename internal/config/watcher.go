package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Change carries a freshly reloaded Config after the watched file changed.
type Change struct {
	Config *Config
}

// Watcher hot-reloads a config file: on every write to path, it reloads and
// validates the file and, if it parses cleanly, emits a Change.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu        sync.Mutex
	isWatching bool
}

// NewWatcher constructs a Watcher for the config file at path.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{path: path, watcher: fw}, nil
}

// Watch begins watching the config file's directory for writes. It returns
// channels of Changes and errors; both close when ctx is canceled or Stop
// is called. Malformed reloads are reported on the error channel without
// ever sending a Change — the last valid Config keeps being used by callers.
func (w *Watcher) Watch(ctx context.Context) (<-chan *Change, <-chan error) {
	changes := make(chan *Change, 1)
	errs := make(chan error, 1)

	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		errs <- fmt.Errorf("watch directory %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	w.isWatching = true
	w.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(w.path)
				if err != nil {
					errs <- err
					continue
				}
				changes <- &Change{Config: cfg}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, errs
}

// Stop releases the underlying file-system watch.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.isWatching = false
	return w.watcher.Close()
}
