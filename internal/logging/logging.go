// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dshills/dispatchloop/internal/config"
)

// ParseLevel parses a zerolog level name, ignoring case and surrounding
// space. An empty name means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
	return level, nil
}

// New returns a logger writing to out in the configured format. The level
// is applied process-wide so that loggers derived earlier follow a later
// SetLevel.
func New(app string, cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	if err := SetLevel(cfg.Level); err != nil {
		return zerolog.Nop(), err
	}

	color := isTerminal(out)
	// dispatcher, watcher and input goroutines share one logger
	out = zerolog.SyncWriter(out)

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !color,
		}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger(), nil
}

// Init builds a logger with New and installs it as the global zerolog
// logger.
func Init(app string, cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, error) {
	logger, err := New(app, cfg, out)
	if err != nil {
		return logger, err
	}
	log.Logger = logger
	return logger, nil
}

// SetLevel changes the process-wide minimum level.
func SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
