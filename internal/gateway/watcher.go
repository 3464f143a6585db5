package gateway

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskly/trackd/internal/log"
)

// RulesReloader receives a fresh ruleset when the config file changes.
type RulesReloader interface {
	ReloadRules(rules RulesConfig)
}

// WatcherConfig is the configuration for the config file watcher.
type WatcherConfig struct {
	ConfigPath string
	Reloader   RulesReloader
	Logger     log.Logger
	// DebounceInterval collapses bursts of filesystem events into a single
	// reload.
	DebounceInterval time.Duration
}

func (c *WatcherConfig) defaults() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config path is required")
	}
	if c.Reloader == nil {
		return fmt.Errorf("reloader is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "gateway.Watcher"})
	if c.DebounceInterval == 0 {
		c.DebounceInterval = 250 * time.Millisecond
	}
	return nil
}

// Watcher reloads the classification rules when the gateway config file
// changes on disk.
type Watcher struct {
	configPath string
	reloader   RulesReloader
	logger     log.Logger
	debounce   time.Duration
}

// NewWatcher creates a new config file watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid watcher config: %w", err)
	}

	return &Watcher{
		configPath: cfg.ConfigPath,
		reloader:   cfg.Reloader,
		logger:     cfg.Logger,
		debounce:   cfg.DebounceInterval,
	}, nil
}

// Run watches the config file and blocks until ctx is cancelled. Editors
// replace files instead of writing in place, so the parent directory is
// watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create filesystem watcher: %w", err)
	}
	defer fsWatcher.Close()

	dir := filepath.Dir(w.configPath)
	if err := fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}

	w.logger.Infof("watching %s for rule changes", w.configPath)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounce == nil {
				debounce = time.NewTimer(w.debounce)
			} else {
				debounce.Reset(w.debounce)
			}
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("filesystem watcher error: %s", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		w.logger.Errorf("could not reload config, keeping previous rules: %s", err)
		return
	}

	w.reloader.ReloadRules(cfg.Rules)
}
