package config

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-runs the file+env overlay (never the CLI layer, which only
// applies once at startup) whenever the config file changes on disk, and
// publishes the result atomically so concurrent readers never observe a
// half-applied Config.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching path for changes, seeding current with initial.
func NewWatcher(path string, initial *Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fsw: fsw, done: make(chan struct{})}
	w.current.Store(initial)
	go w.loop()
	return w, nil
}

// Current returns the most recently, successfully loaded Config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Close stops the watcher and releases its inotify/kqueue handle.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}

// reload re-parses the file and, on success, swaps it in atomically. A
// parse failure is logged and discarded: the previously-loaded Config
// stays in effect rather than a half-applied value taking over (spec
// property: a bad edit never degrades a running gateway).
func (w *Watcher) reload() {
	cfg, err := loadFile(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	overlayEnv(&cfg, os.Environ())
	w.current.Store(&cfg)
	slog.Info("config reloaded", "path", w.path)
}
