package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/dispatcher"
)

// Config is the complete dispatchloop configuration.
type Config struct {
	Dispatcher DispatcherConfig `toml:"dispatcher" yaml:"dispatcher"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Input      InputConfig      `toml:"input" yaml:"input"`
	Script     ScriptConfig     `toml:"script" yaml:"script"`
	Bench      BenchConfig      `toml:"bench" yaml:"bench"`
}

// DispatcherConfig maps onto dispatcher.Config.
type DispatcherConfig struct {
	AbandonPolicy dispatcher.AbandonPolicy `toml:"abandonPolicy" yaml:"abandonPolicy"`
	MaxFrameDepth int                      `toml:"maxFrameDepth" yaml:"maxFrameDepth"`
	InvokeTimeout Duration                 `toml:"invokeTimeout" yaml:"invokeTimeout"`
	Metrics       bool                     `toml:"metrics" yaml:"metrics"`
	Audit         bool                     `toml:"audit" yaml:"audit"`
}

// Options converts the section into a dispatcher.Config.
func (c DispatcherConfig) Options() dispatcher.Config {
	cfg := dispatcher.DefaultConfig().
		WithAbandonPolicy(c.AbandonPolicy).
		WithMaxFrameDepth(c.MaxFrameDepth).
		WithInvokeTimeout(c.InvokeTimeout.Std())
	if c.Metrics {
		cfg = cfg.WithMetrics()
	}
	if c.Audit {
		cfg = cfg.WithAudit()
	}
	return cfg
}

// LoggingConfig controls the process logger. Level is a zerolog level name
// and Format is "console" or "json".
type LoggingConfig struct {
	Level     string `toml:"level" yaml:"level"`
	Format    string `toml:"format" yaml:"format"`
	Timestamp bool   `toml:"timestamp" yaml:"timestamp"`
}

// InputConfig controls the terminal input pump.
type InputConfig struct {
	Enabled        bool                `toml:"enabled" yaml:"enabled"`
	Mouse          bool                `toml:"mouse" yaml:"mouse"`
	KeyPriority    dispatcher.Priority `toml:"keyPriority" yaml:"keyPriority"`
	MousePriority  dispatcher.Priority `toml:"mousePriority" yaml:"mousePriority"`
	ResizePriority dispatcher.Priority `toml:"resizePriority" yaml:"resizePriority"`
}

// ScriptConfig controls the Lua script host. An empty Path disables
// scripting. Priority is used by post() calls that name none, and Timeout
// bounds each script call when positive.
type ScriptConfig struct {
	Path     string              `toml:"path" yaml:"path"`
	Priority dispatcher.Priority `toml:"priority" yaml:"priority"`
	Timeout  Duration            `toml:"timeout" yaml:"timeout"`
}

// BenchConfig controls the bench command's load generator. Rate limits
// submissions per second across all producers; zero means unlimited.
type BenchConfig struct {
	Producers  int                   `toml:"producers" yaml:"producers"`
	Operations int                   `toml:"operations" yaml:"operations"`
	Rate       float64               `toml:"rate" yaml:"rate"`
	Burst      int                   `toml:"burst" yaml:"burst"`
	Priorities []dispatcher.Priority `toml:"priorities" yaml:"priorities"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := dispatcher.DefaultConfig()
	return &Config{
		Dispatcher: DispatcherConfig{
			AbandonPolicy: d.AbandonPolicy,
			MaxFrameDepth: d.MaxFrameDepth,
			InvokeTimeout: Duration(d.DefaultInvokeTimeout),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			Timestamp: true,
		},
		Input: InputConfig{
			KeyPriority:    dispatcher.PriorityInput,
			MousePriority:  dispatcher.PriorityInput,
			ResizePriority: dispatcher.PriorityRender,
		},
		Script: ScriptConfig{
			Priority: dispatcher.PriorityNormal,
		},
		Bench: BenchConfig{
			Producers:  4,
			Operations: 10000,
			Burst:      100,
			Priorities: []dispatcher.Priority{
				dispatcher.PriorityInput,
				dispatcher.PriorityRender,
				dispatcher.PriorityNormal,
				dispatcher.PriorityBackground,
			},
		},
	}
}

// Validate checks every section and reports all problems at once. Each
// reported error wraps ErrValidationFailed.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrValidationFailed}, args...)...))
	}

	if err := c.Dispatcher.Options().Validate(); err != nil {
		fail("dispatcher: %v", err)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		fail("logging.level: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		fail("logging.format: must be console or json, got %q", c.Logging.Format)
	}

	for _, f := range []struct {
		name string
		p    dispatcher.Priority
	}{
		{"input.keyPriority", c.Input.KeyPriority},
		{"input.mousePriority", c.Input.MousePriority},
		{"input.resizePriority", c.Input.ResizePriority},
		{"script.priority", c.Script.Priority},
	} {
		if !postable(f.p) {
			fail("%s: %v cannot be posted", f.name, f.p)
		}
	}
	if c.Script.Timeout < 0 {
		fail("script.timeout: must not be negative")
	}

	if c.Bench.Producers < 1 {
		fail("bench.producers: must be at least 1")
	}
	if c.Bench.Operations < 1 {
		fail("bench.operations: must be at least 1")
	}
	if c.Bench.Rate < 0 {
		fail("bench.rate: must not be negative")
	}
	if c.Bench.Rate > 0 && c.Bench.Burst < 1 {
		fail("bench.burst: must be at least 1 when rate is set")
	}
	if len(c.Bench.Priorities) == 0 {
		fail("bench.priorities: must not be empty")
	}
	for _, p := range c.Bench.Priorities {
		if !postable(p) {
			fail("bench.priorities: %v cannot be posted", p)
		}
	}

	return errors.Join(errs...)
}

// postable reports whether p is accepted by BeginInvoke.
func postable(p dispatcher.Priority) bool {
	return p.Validate() == nil && p != dispatcher.PriorityInactive
}

// Duration is a time.Duration written as a string such as "250ms" in
// configuration files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the duration in time.Duration notation.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
