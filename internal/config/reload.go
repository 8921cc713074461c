package config

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/config/watcher"
)

// ReloadHandler is called with the previous and the new configuration
// after a successful reload.
type ReloadHandler func(old, cur *Config)

// Watcher reloads a configuration file when it changes. A reload that fails
// to load or validate keeps the current configuration.
type Watcher struct {
	path   string
	opts   []LoadOption
	logger zerolog.Logger
	fw     *watcher.Watcher
	fwOpts []watcher.Option

	mu       sync.RWMutex
	current  *Config
	handlers []ReloadHandler
	onError  func(error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLoadOptions sets the options used for every reload.
func WithLoadOptions(opts ...LoadOption) WatcherOption {
	return func(w *Watcher) {
		w.opts = opts
	}
}

// WithWatchLogger sets the logger for reload outcomes.
func WithWatchLogger(logger zerolog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithReloadError registers a callback for failed reloads.
func WithReloadError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithDebounce sets how long the file must be quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.fwOpts = append(w.fwOpts, watcher.WithDebounce(d))
	}
}

// NewWatcher creates a watcher for path that starts from current.
func NewWatcher(path string, current *Config, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:    path,
		logger:  zerolog.Nop(),
		current: current,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With().Str("component", "config").Str("path", path).Logger()
	w.fw = watcher.New(append(w.fwOpts, watcher.WithLogger(w.logger))...)
	w.fw.OnChange(w.handle)
	return w
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload registers a handler for successful reloads.
func (w *Watcher) OnReload(fn ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Start begins watching the file.
func (w *Watcher) Start() error {
	if err := w.fw.Add(w.path); err != nil {
		return err
	}
	return w.fw.Start()
}

// Stop stops watching the file.
func (w *Watcher) Stop() error {
	return w.fw.Stop()
}

// Reload loads the file now and, on success, notifies the handlers.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path, w.opts...)
	if err != nil {
		w.logger.Warn().Err(err).Msg("config reload failed; keeping previous configuration")
		if w.onError != nil {
			w.onError(err)
		}
		return err
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	handlers := make([]ReloadHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	w.logger.Info().Msg("config reloaded")
	for _, fn := range handlers {
		fn(old, cfg)
	}
	return nil
}

func (w *Watcher) handle(e watcher.Event) {
	if e.Op == watcher.Remove {
		w.logger.Warn().Msg("config file removed; keeping previous configuration")
		return
	}
	_ = w.Reload()
}
