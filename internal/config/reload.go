package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// ApplyFunc receives each successfully reloaded configuration.
type ApplyFunc func(*Config) error

// Reloader watches the config file and re-applies it after edits.
type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	apply   ApplyFunc
	logger  *slog.Logger
}

// NewReloader watches path. The parent directory is watched so that
// editors that replace the file by rename are still seen.
func NewReloader(path string, apply ApplyFunc, logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}
	return &Reloader{
		watcher: watcher,
		path:    abs,
		apply:   apply,
		logger:  logger.With("component", "reload"),
	}, nil
}

// Run watches for changes and reloads. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("hot-reload failed, keeping previous config", "path", r.path, "error", err)
		return
	}
	if err := r.apply(cfg); err != nil {
		r.logger.Error("hot-reload apply failed", "path", r.path, "error", err)
		return
	}
	r.logger.Info("hot-reload: config reloaded", "path", r.path)
}
