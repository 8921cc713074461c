package dispatcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/dispatchloop/internal/dispatcher/hook"
)

// AbandonPolicy decides what waiters see for operations that are still
// pending when shutdown finishes.
type AbandonPolicy int

const (
	// AbandonDiscard marks abandoned operations Aborted; Wait returns
	// (nil, nil).
	AbandonDiscard AbandonPolicy = iota

	// AbandonError marks abandoned operations Aborted; Wait returns
	// ErrOperationAborted.
	AbandonError
)

// String returns the policy name used in configuration files.
func (p AbandonPolicy) String() string {
	switch p {
	case AbandonDiscard:
		return "discard"
	case AbandonError:
		return "error"
	default:
		return fmt.Sprintf("AbandonPolicy(%d)", int(p))
	}
}

// ParseAbandonPolicy parses "discard" or "error".
func ParseAbandonPolicy(s string) (AbandonPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "discard":
		return AbandonDiscard, nil
	case "error":
		return AbandonError, nil
	default:
		return AbandonDiscard, fmt.Errorf("%w: unknown abandon policy %q", ErrInvalidArgument, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p AbandonPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *AbandonPolicy) UnmarshalText(text []byte) error {
	v, err := ParseAbandonPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Config holds dispatcher configuration options.
type Config struct {
	// AbandonPolicy controls how operations left over at shutdown are
	// reported to their waiters.
	AbandonPolicy AbandonPolicy

	// MaxFrameDepth limits nested PushFrame calls. Zero means no limit.
	MaxFrameDepth int

	// DefaultInvokeTimeout bounds Invoke when the caller gives no deadline.
	// Zero means wait forever.
	DefaultInvokeTimeout time.Duration

	// EnableMetrics enables per-priority operation statistics.
	EnableMetrics bool

	// EnableAudit registers the audit hook, which logs every operation
	// event at debug level.
	EnableAudit bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AbandonPolicy:        AbandonDiscard,
		MaxFrameDepth:        256,
		DefaultInvokeTimeout: 0,
		EnableMetrics:        false,
		EnableAudit:          false,
	}
}

// WithAbandonPolicy returns a copy of the config with the abandon policy set.
func (c Config) WithAbandonPolicy(p AbandonPolicy) Config {
	c.AbandonPolicy = p
	return c
}

// WithMaxFrameDepth returns a copy of the config with the frame limit set.
func (c Config) WithMaxFrameDepth(max int) Config {
	c.MaxFrameDepth = max
	return c
}

// WithInvokeTimeout returns a copy of the config with the default Invoke
// timeout set.
func (c Config) WithInvokeTimeout(timeout time.Duration) Config {
	c.DefaultInvokeTimeout = timeout
	return c
}

// WithMetrics returns a copy of the config with metrics enabled.
func (c Config) WithMetrics() Config {
	c.EnableMetrics = true
	return c
}

// WithAudit returns a copy of the config with the audit hook enabled.
func (c Config) WithAudit() Config {
	c.EnableAudit = true
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AbandonPolicy != AbandonDiscard && c.AbandonPolicy != AbandonError {
		return fmt.Errorf("%w: abandon policy %d", ErrInvalidArgument, int(c.AbandonPolicy))
	}
	if c.MaxFrameDepth < 0 {
		return fmt.Errorf("%w: max frame depth must not be negative", ErrInvalidArgument)
	}
	if c.DefaultInvokeTimeout < 0 {
		return fmt.Errorf("%w: invoke timeout must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Option configures the dispatchers created by a Registry.
type Option func(*settings)

type settings struct {
	config Config
	logger zerolog.Logger
	hooks  []hook.Hook
}

func defaultSettings() settings {
	return settings{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig sets the dispatcher configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.config = cfg
	}
}

// WithLogger sets the logger used by dispatchers.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithHook registers h on every dispatcher the registry creates.
func WithHook(h hook.Hook) Option {
	return func(s *settings) {
		s.hooks = append(s.hooks, h)
	}
}
