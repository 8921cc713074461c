// Package config provides typed configuration for dispatchloop.
//
// Settings are resolved in layers, higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  4. Command line flags      │  ← applied by the CLI
//	├─────────────────────────────┤
//	│  3. Environment variables   │  ← DISPATCHLOOP_*
//	├─────────────────────────────┤
//	│  2. Config file             │  ← .toml, .yaml or .yml
//	├─────────────────────────────┤
//	│  1. Built-in defaults       │  ← Default()
//	└─────────────────────────────┘
//
// # Sub-packages
//
//   - loader: TOML/YAML file parsing and environment variable mapping
//   - watcher: fsnotify-based file change notification
//
// # Usage
//
//	cfg, err := config.Load("dispatchloop.toml")
//	if err != nil {
//	    return err
//	}
//	d := dispatcher.NewRegistry(dispatcher.WithConfig(cfg.Dispatcher.Options())).Current()
//
// A Watcher reloads the file when it changes and hands the new Config to
// registered callbacks:
//
//	w := config.NewWatcher("dispatchloop.toml", cfg)
//	w.OnReload(func(old, cur *config.Config) {
//	    log.Info().Str("level", cur.Logging.Level).Msg("config reloaded")
//	})
//	if err := w.Start(); err != nil {
//	    return err
//	}
//	defer w.Stop()
//
// Environment variables map onto settings by section and camel-cased key:
// DISPATCHLOOP_DISPATCHER_MAX_FRAME_DEPTH sets dispatcher.maxFrameDepth.
// DISPATCHLOOP_LOG_LEVEL, DISPATCHLOOP_LOG_FORMAT,
// DISPATCHLOOP_ABANDON_POLICY, DISPATCHLOOP_INVOKE_TIMEOUT and
// DISPATCHLOOP_SCRIPT are shorthands.
package config
