package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/noironetworks/neutron/pkg/telemetry"
)

// DefaultReloadDelay is how long the watcher waits for writes to settle.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reloads a configuration file whenever it changes on disk.
// Invalid revisions are logged and skipped; the last good one stays current.
type Watcher struct {
	path     string
	delay    time.Duration
	logger   *telemetry.Logger
	onChange func(*Config)

	mu      sync.RWMutex
	current *Config
}

// NewWatcher creates a watcher for path whose first revision is initial.
func NewWatcher(path string, initial *Config, logger *telemetry.Logger, onChange func(*Config)) *Watcher {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Watcher{
		path:     path,
		delay:    DefaultReloadDelay,
		logger:   logger.NewComponentLogger("config-watcher").WithField("path", path),
		onChange: onChange,
		current:  initial,
	}
}

// Current returns the last configuration that loaded successfully.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(w.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	w.logger.Info("watching configuration")

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.WithField("op", event.Op.String()).Debug("configuration file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.delay, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("ignoring invalid configuration revision")
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	w.logger.Info("configuration reloaded")
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
