package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Handle holds the current configuration snapshot. Readers call Current once
// per pass and work off that immutable snapshot; reloads swap the pointer
// atomically, never mutating a snapshot in place.
type Handle struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[Config]

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// NewHandle loads the initial snapshot from path.
func NewHandle(path string, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, err
	}

	h := &Handle{path: path, logger: logger}
	h.current.Store(cfg)
	return h, nil
}

// Current returns the active configuration snapshot.
func (h *Handle) Current() *Config {
	return h.current.Load()
}

// Watch starts reloading the snapshot whenever the file changes. A reload
// that fails to parse or validate is logged and discarded; the previous
// snapshot stays active.
func (h *Handle) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = watcher

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(h.path)); err != nil {
		watcher.Close()
		return err
	}

	h.wg.Add(1)
	go h.watchLoop(ctx)

	h.logger.Info("watching config file", "path", h.path)
	return nil
}

// Close stops the watcher.
func (h *Handle) Close() error {
	if h.watcher == nil {
		return nil
	}
	err := h.watcher.Close()
	h.wg.Wait()
	return err
}

func (h *Handle) watchLoop(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(h.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			h.reload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Warn("config watcher error", "err", err)
		}
	}
}

func (h *Handle) reload() {
	cfg, err := LoadAndValidate(h.path)
	if err != nil {
		h.logger.Error("config reload failed, keeping previous snapshot", "err", err)
		return
	}
	h.current.Store(cfg)
	h.logger.Info("config reloaded", "path", h.path)
}
