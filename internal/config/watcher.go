package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives the previous and the newly loaded configuration.
type ReloadFunc func(old, next *Config)

// Watcher reloads a config file when its content changes. Change detection
// is by SHA-256 of the file bytes, so saving an unchanged file is a no-op.
// A file that fails to parse or validate is reported once per distinct
// content and the last good configuration stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc
	log      *slog.Logger

	mu       sync.Mutex
	current  *Config
	applied  [sha256.Size]byte
	rejected [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger for reload and rejection messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWatcher loads path once and returns a Watcher primed with it. Nothing
// is polled until [Watcher.Run] is called.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onReload: onReload,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	cfg, sum, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.applied = cfg, sum
	return w, nil
}

// Current returns the last configuration that loaded cleanly.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx is done and then returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := w.Poll(); err != nil {
				w.log.Warn("config: watch failed", "path", w.path, "err", err)
			}
		}
	}
}

// Poll checks the file once. It reports whether a new configuration was
// applied. An error means the file could not be read; invalid content is
// logged rather than returned.
func (w *Watcher) Poll() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	if sum == w.applied || sum == w.rejected {
		w.mu.Unlock()
		return false, nil
	}
	w.mu.Unlock()

	next, err := LoadFromBytes(data)
	if err != nil {
		w.mu.Lock()
		w.rejected = sum
		w.mu.Unlock()
		w.log.Warn("config: rejected edit, keeping the running configuration", "path", w.path, "err", err)
		return false, nil
	}

	w.mu.Lock()
	old := w.current
	w.current, w.applied = next, sum
	w.mu.Unlock()

	w.log.Info("config: reloaded", "path", w.path)
	if w.onReload != nil {
		w.onReload(old, next)
	}
	return true, nil
}

func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
