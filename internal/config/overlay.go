package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Overlay watches a YAML file on disk and applies its contents as
// SchedulerConfig overrides whenever the file changes, matching the
// field names accepted by SchedulerConfig.ApplyOverrides.
type Overlay struct {
	path    string
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	started bool
}

// NewOverlay constructs an Overlay for path. The file need not exist yet.
func NewOverlay(path string) (*Overlay, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Overlay{path: path, watcher: watcher}, nil
}

// Load reads the overlay file once, returning an empty override map if the
// file does not exist.
func (o *Overlay) Load() (map[string]any, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read overlay %s: %w", o.path, err)
	}
	var overrides map[string]any
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse overlay %s: %w", o.path, err)
	}
	if overrides == nil {
		overrides = map[string]any{}
	}
	return overrides, nil
}

// Watch streams parsed overrides on apply whenever the overlay file is
// written, until ctx is cancelled. Parse errors are sent on the error
// channel rather than stopping the watch.
func (o *Overlay) Watch(ctx context.Context) (<-chan map[string]any, <-chan error) {
	changes := make(chan map[string]any, 4)
	errs := make(chan error, 4)

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}
	dir := filepath.Dir(o.path)
	if err := o.watcher.Add(dir); err != nil {
		o.mu.Unlock()
		errs <- fmt.Errorf("watch dir %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	o.started = true
	o.mu.Unlock()

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case e, ok := <-o.watcher.Events:
				if !ok {
					return
				}
				if e.Name != o.path {
					continue
				}
				if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				overrides, err := o.Load()
				if err != nil {
					errs <- err
					continue
				}
				changes <- overrides
			case err, ok := <-o.watcher.Errors:
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

// Close releases the underlying file watcher.
func (o *Overlay) Close() error { return o.watcher.Close() }
