// Package watch reports debounced changes to a single task file.
//
// The parent directory is watched rather than the file itself so that
// editors which save by writing a temporary file and renaming it over the
// original keep being observed. Every event for the file re-arms a per-path
// timer; when the timer fires the file is stat'ed and either OnChange or
// OnDelete is called. A remove followed by a re-create inside the window is
// therefore reported as a change.
package watch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 300 * time.Millisecond

// Events receives debounced notifications. Nil callbacks are skipped.
type Events struct {
	OnChange func(path string)
	OnDelete func(path string)
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Logger   *log.Logger
}

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Watcher watches one file.
type Watcher struct {
	path     string
	debounce time.Duration
	events   Events
	logger   *log.Logger
	fsw      *fsnotify.Watcher

	mu     sync.Mutex
	timers map[string]pending
	gen    uint64
	closed bool
	done   chan struct{}

	// callbacks counts callbacks that passed the closed check.
	callbacks sync.WaitGroup
}

// New starts watching path. The parent directory must exist.
func New(path string, events Events, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		debounce: opts.Debounce,
		events:   events,
		logger:   opts.Logger,
		fsw:      fsw,
		timers:   make(map[string]pending),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			if w.logger != nil {
				w.logger.Debug("file event", "path", ev.Name, "op", ev.Op.String())
			}
			w.schedule(w.path)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("file watcher error", "path", w.path, "err", err)
			}
		}
	}
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.timers[path]; ok {
		p.timer.Stop()
	}
	w.gen++
	gen := w.gen
	w.timers[path] = pending{timer: time.AfterFunc(w.debounce, func() { w.fire(path, gen) }), gen: gen}
}

func (w *Watcher) fire(path string, gen uint64) {
	w.mu.Lock()
	if p, ok := w.timers[path]; w.closed || !ok || p.gen != gen {
		// Closed, or superseded by a newer event.
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	w.callbacks.Add(1)
	w.mu.Unlock()
	defer w.callbacks.Done()

	_, err := os.Stat(path)
	switch {
	case err == nil:
		if w.events.OnChange != nil {
			w.events.OnChange(path)
		}
	case errors.Is(err, os.ErrNotExist):
		if w.events.OnDelete != nil {
			w.events.OnDelete(path)
		}
	default:
		if w.logger != nil {
			w.logger.Warn("stat watched file", "path", path, "err", err)
		}
	}
}

// Close stops all timers and the underlying watcher. It is safe to call from
// inside a callback. A callback that was already due may still be running,
// or about to start, when Close returns; call Wait to rule that out.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, p := range w.timers {
		p.timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	<-w.done
	return err
}

// Wait blocks until every callback admitted before Close has returned. No
// callback starts after Wait returns. It must be called after Close and
// never from inside a callback.
func (w *Watcher) Wait() {
	w.callbacks.Wait()
}
