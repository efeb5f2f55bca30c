package missionplan

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// WatchParamsDirectory watches the store's params directory and invalidates
// the cache on any write, create, remove, or rename, so a mission plan YAML
// dropped into place takes effect on the next Get without a process restart.
// It returns a channel signaled once per invalidation and an error channel;
// both close when ctx is canceled.
func (s *Store) WatchParamsDirectory(ctx context.Context) (<-chan struct{}, <-chan error, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("create params directory watcher: %w", err)
	}
	if err := fw.Add(s.paramsDirectory); err != nil {
		fw.Close()
		return nil, nil, fmt.Errorf("watch params directory %s: %w", s.paramsDirectory, err)
	}

	invalidated := make(chan struct{}, 1)
	errs := make(chan error, 1)

	go func() {
		defer fw.Close()
		defer close(invalidated)
		defer close(errs)
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				s.InvalidateAll()
				select {
				case invalidated <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()

	return invalidated, errs, nil
}
