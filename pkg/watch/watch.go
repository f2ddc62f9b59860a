// Package watch reloads an ecosystem file whenever it changes on disk.
package watch

import (
	"context"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"github.com/cywhale/woa23/pkg/ecosystem"
	"github.com/cywhale/woa23/pkg/errors"
	"github.com/cywhale/woa23/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

const (
	eventBufferSize = 16
	defaultDebounce = 100 * time.Millisecond
)

// Event is the outcome of one reload. Either Ecosystem or Err is set.
// Changed names the apps that were added, removed or modified since the
// previous successful load; on the first load it names every app. The first
// good load after a failed one is always emitted, even with nothing changed.
type Event struct {
	Ecosystem *ecosystem.Ecosystem
	Err       error
	Changed   []string
}

type Watcher struct {
	path     string
	debounce time.Duration
	logger   logging.Logger
	events   chan Event
	current  *ecosystem.Ecosystem
	failed   bool
}

func NewWatcher(path string, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.NewIOError("failed to resolve ecosystem file path", err).WithContext("filename", path)
	}
	return &Watcher{
		path:     abs,
		debounce: defaultDebounce,
		logger:   logging.OrNop(logger),
		events:   make(chan Event, eventBufferSize),
	}, nil
}

// Events is closed once the watcher stops
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start loads the file once, emits the result, and keeps reloading it until ctx is done.
// The parent directory is watched because editors often replace files instead of writing them.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewInternalError("failed to create file watcher", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return errors.NewIOError("failed to watch ecosystem file", err).WithContext("filename", w.path)
	}

	w.logger.Infof("Watching ecosystem file, path: %s", w.path)
	w.reload(ctx)

	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.events)
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debugf("Stopped watching ecosystem file, path: %s", w.path)
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("File watcher error, path: %s, error: %v", w.path, err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	eco, err := ecosystem.Load(w.path)
	if err != nil {
		w.logger.Errorf("Ecosystem file reload failed, path: %s, error: %v", w.path, err)
		w.failed = true
		w.emit(ctx, Event{Err: err})
		return
	}

	changed := Diff(w.current, eco)
	w.current = eco
	if len(changed) == 0 && !w.failed {
		w.logger.Debugf("Ecosystem file rewritten without changes, path: %s", w.path)
		return
	}
	if w.failed {
		w.logger.Infof("Ecosystem file is valid again, path: %s", w.path)
	}
	w.failed = false

	w.logger.Infof("Ecosystem file reloaded, path: %s, changed: %v", w.path, changed)
	w.emit(ctx, Event{Ecosystem: eco, Changed: changed})
}

func (w *Watcher) emit(ctx context.Context, event Event) {
	select {
	case w.events <- event:
	case <-ctx.Done():
	}
}

// Diff names the apps that differ between two loads, sorted.
// A nil previous load counts as empty.
func Diff(previous, next *ecosystem.Ecosystem) []string {
	before := index(previous)
	after := index(next)

	var changed []string
	for name, spec := range after {
		if old, ok := before[name]; !ok || !reflect.DeepEqual(old, spec) {
			changed = append(changed, name)
		}
	}
	for name := range before {
		if _, ok := after[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func index(eco *ecosystem.Ecosystem) map[string]ecosystem.ProcessSpec {
	specs := make(map[string]ecosystem.ProcessSpec)
	if eco == nil {
		return specs
	}
	for _, spec := range eco.Apps() {
		specs[spec.Name] = spec
	}
	return specs
}
