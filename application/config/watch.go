package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/reglet-dev/reglet-fetch/domain/entities"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for reload failures.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher reloads a configuration file when it changes on disk.
// The parent directory is watched so atomic renames are seen.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	path     string
	debounce time.Duration
}

// NewWatcher starts watching path. The file need not exist yet.
func NewWatcher(path string, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		fsw:      fsw,
		logger:   slog.Default(),
		path:     abs,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run delivers each successfully reloaded config to onChange until ctx is
// done or the watcher is closed. Invalid files are logged and skipped; the
// previous config stays in effect.
func (w *Watcher) Run(ctx context.Context, onChange func(*entities.Config)) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "config watch error", "path", w.path, "error", err)

		case <-fire:
			fire = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.WarnContext(ctx, "config reload rejected", "path", w.path, "error", err)
				continue
			}
			w.logger.InfoContext(ctx, "config reloaded", "path", w.path)
			onChange(cfg)
		}
	}
}

// Close stops the watcher. A running Run returns nil.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
