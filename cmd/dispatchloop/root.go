package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/dispatchloop/internal/config"
	"github.com/dshills/dispatchloop/internal/logging"
)

const appName = "dispatchloop"

// app holds the state shared by every subcommand: global flags and the
// configuration and logger built from them before a subcommand runs.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	noEnv      bool

	loadOpts []config.LoadOption
	cfg      *config.Config
	logger   zerolog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Priority-ordered, re-entrant dispatcher loop",
		Long: `dispatchloop runs a single-goroutine dispatcher that executes queued
callbacks in priority order, supports nested frames and marshals work from
other goroutines, terminal input and Lua scripts onto its goroutine.

Configuration is read from --config (TOML or YAML) and DISPATCHLOOP_*
environment variables. Flags override both.`,
		SilenceUsage: true,
		Version:      version,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate(`{{printf "dispatchloop version %s\n" .Version}}`)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", os.Getenv("DISPATCHLOOP_CONFIG"), "configuration file (.toml, .yaml or .yml)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: console or json")
	flags.BoolVar(&a.noEnv, "no-env", false, "ignore DISPATCHLOOP_* environment overrides")

	cmd.AddCommand(
		newRunCmd(a),
		newBenchCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// load builds the configuration and the process logger.
func (a *app) load(cmd *cobra.Command) error {
	if a.noEnv {
		a.loadOpts = append(a.loadOpts, config.WithoutEnv())
	}
	cfg, err := config.Load(a.configPath, a.loadOpts...)
	if err != nil {
		return err
	}
	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.Init(appName, cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// applyFlags lays the logging flags over cfg.
func (a *app) applyFlags(cfg *config.Config) {
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
}
