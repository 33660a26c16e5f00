// Package watcher provides debounced file system watching. The registry uses it
// to notice when another process has written the shared database, and to pick
// up edits to the discovery snapshot file.
package watcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/connreg/internal/log"
)

// ErrNoPaths is returned by New when the config names no files.
var ErrNoPaths = errors.New("watcher: no paths configured")

// Watcher monitors a set of files and sends a signal when any of them changes.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dirs      []string
	names     map[string]struct{} // cleaned absolute-or-relative paths we react to
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	// Paths lists the files to watch. Their parent directories are watched so
	// that files created after Start (e.g. a sqlite -wal file) are seen.
	Paths       []string
	DebounceDur time.Duration
}

// DefaultConfig returns defaults for watching a sqlite database and its WAL.
func DefaultConfig(dbPath string) Config {
	return Config{
		Paths:       SQLitePaths(dbPath),
		DebounceDur: 100 * time.Millisecond,
	}
}

// SQLitePaths returns the database file plus the journal files sqlite writes
// next to it in WAL mode.
func SQLitePaths(dbPath string) []string {
	return []string{dbPath, dbPath + "-wal"}
}

// New creates a new watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, ErrNoPaths
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	names := make(map[string]struct{}, len(cfg.Paths))
	seenDir := make(map[string]struct{})
	var dirs []string
	for _, p := range cfg.Paths {
		clean := filepath.Clean(p)
		names[clean] = struct{}{}
		dir := filepath.Dir(clean)
		if _, ok := seenDir[dir]; !ok {
			seenDir[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}

	return &Watcher{
		fsWatcher: fsw,
		dirs:      dirs,
		names:     names,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching.
// Returns a channel that receives a signal when a watched file changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	for _, dir := range w.dirs {
		if err := w.fsWatcher.Add(dir); err != nil {
			return nil, fmt.Errorf("watching directory %s: %w", dir, err)
		}
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
			pending = true

		case <-timerC:
			timerC = nil
			if pending {
				// Non-blocking send - a signal is already queued
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "fsnotify error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent checks if the event should trigger a signal.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	// Writes, or creates (a WAL file or an atomically replaced file appears fresh)
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	_, ok := w.names[filepath.Clean(event.Name)]
	return ok
}
