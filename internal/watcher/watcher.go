// Package watcher reports saves of a single source file.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"livecode/internal/logger"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 300 * time.Millisecond

// ChangeCallback is called after the watched file changes.
type ChangeCallback func(path string)

// Watcher monitors one file for writes.
type Watcher struct {
	path      string
	debounce  time.Duration
	callback  ChangeCallback
	fsWatcher *fsnotify.Watcher
	log       *zap.Logger

	cancel    chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
}

// New starts watching path. The parent directory is watched rather than
// the file itself so editors that save by rename keep being tracked.
func New(path string, debounce time.Duration, callback ChangeCallback, log *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:      abs,
		debounce:  debounce,
		callback:  callback,
		fsWatcher: fsW,
		log:       logger.OrNop(log),
		cancel:    make(chan struct{}),
		loopDone:  make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Close stops watching. Pending debounced callbacks are dropped.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.cancel)
		err = w.fsWatcher.Close()
		<-w.loopDone
	})
	return err
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop() {
	defer close(w.loopDone)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.cancel:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.fire)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", zap.String("path", w.path), zap.Error(err))
		}
	}
}

func (w *Watcher) fire() {
	select {
	case <-w.cancel:
		return
	default:
	}
	if w.callback != nil {
		w.callback(w.path)
	}
}
