// Package watcher reloads runtime-tunable configuration when the config
// file changes on disk.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadHandler is called after a debounced change to the config file.
type ReloadHandler func() error

// Watcher watches the config file for changes. It watches the parent
// directory rather than the file itself, so editors that replace the file
// (write to temp, rename over) do not silently kill the watch.
type Watcher struct {
	path     string // absolute config file path
	handler  ReloadHandler
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu         sync.Mutex
	lastReload time.Time
}

// New creates a watcher for the given config file.
func New(path string, debounce time.Duration, handler ReloadHandler, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("reload handler is required")
	}
	if debounce <= 0 {
		debounce = time.Second
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     abs,
		handler:  handler,
		debounce: debounce,
		logger:   logger.With("component", "watcher"),
		fsw:      fsw,
	}, nil
}

// Start begins watching in the background until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.logger.Info("Watching config file", "path", w.path, "debounce", w.debounce)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.reload(ev)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if time.Since(w.lastReload) < w.debounce {
		return
	}

	w.logger.Info("Config file changed, reloading", "event", ev.Op.String())
	if err := w.handler(); err != nil {
		// lastReload stays put so the next event retries immediately.
		w.logger.Error("Config reload failed, keeping previous config", "error", err)
		return
	}
	w.lastReload = time.Now()
}

// Stop closes the underlying file watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}
