package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/dispatchloop/internal/config"
	"github.com/dshills/dispatchloop/internal/dispatcher"
	"github.com/dshills/dispatchloop/internal/input"
	"github.com/dshills/dispatchloop/internal/logging"
	"github.com/dshills/dispatchloop/internal/script"
	"github.com/dshills/dispatchloop/internal/syncctx"
)

type runOptions struct {
	script   string
	input    bool
	watch    bool
	duration time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the dispatcher until it shuts down",
		Long: `run starts a dispatcher on its own goroutine and pumps it until shutdown.

A Lua script (--script or script.path) runs on the dispatcher first and may
post work, handle failures and request shutdown. With --input, terminal
key, mouse and resize events are posted to the dispatcher and delivered to
the script's on_input(name) function when it defines one; Ctrl-C quits.
SIGINT, SIGTERM and --for shut the dispatcher down at Background priority.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if o.script != "" {
				cfg.Script.Path = o.script
			}
			if cmd.Flags().Changed("input") {
				cfg.Input.Enabled = o.input
			}
			return a.run(cmd.Context(), &cfg, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.script, "script", "s", "", "Lua script to run on the dispatcher")
	flags.BoolVar(&o.input, "input", false, "pump terminal input onto the dispatcher")
	flags.BoolVarP(&o.watch, "watch", "w", false, "reload the configuration file when it changes")
	flags.DurationVar(&o.duration, "for", 0, "shut down after this long (0 runs until shutdown)")
	return cmd
}

// run owns the lifecycle of one dispatcher and its collaborators.
func (a *app) run(ctx context.Context, cfg *config.Config, o runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.duration)
		defer cancel()
	}

	reg := dispatcher.NewRegistry(
		dispatcher.WithConfig(cfg.Dispatcher.Options()),
		dispatcher.WithLogger(a.logger),
	)
	runErr := make(chan error, 1)
	d, done := reg.Go(func(d *dispatcher.Dispatcher) {
		err := d.Run()
		if !d.HasShutdownFinished() {
			_ = d.InvokeShutdown()
		}
		runErr <- err
	})
	defer func() {
		_ = d.InvokeShutdown()
		<-done
		a.reportMetrics(d)
	}()

	adapter, err := syncctx.NewAdapter(d)
	if err != nil {
		return err
	}
	defer adapter.Close()
	mainCtx := syncctx.NewContext("main")
	if err := adapter.RegisterContext(mainCtx); err != nil {
		return err
	}

	if o.watch && a.configPath != "" {
		w := config.NewWatcher(a.configPath, cfg,
			config.WithLoadOptions(a.loadOpts...),
			config.WithWatchLogger(a.logger),
		)
		w.OnReload(func(_, cur *config.Config) {
			a.applyFlags(cur)
			// handlers run on the watcher goroutine; apply on the dispatcher
			_, _ = mainCtx.Post(func() {
				if err := logging.SetLevel(cur.Logging.Level); err != nil {
					a.logger.Warn().Err(err).Msg("log level not changed")
					return
				}
				a.logger.Info().Str("level", cur.Logging.Level).Msg("log level updated")
			})
		})
		if err := w.Start(); err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	var host *script.Host
	if cfg.Script.Path != "" {
		host, err = script.NewHost(d, script.WithConfig(cfg.Script), script.WithLogger(a.logger))
		if err != nil {
			return err
		}
		defer func() { _ = host.Close() }()
	}

	if cfg.Input.Enabled {
		screen, err := input.OpenScreen(cfg.Input)
		if err != nil {
			return err
		}
		defer screen.Fini()

		pump, err := input.NewPump(screen, d,
			input.WithConfig(cfg.Input),
			input.WithLogger(a.logger),
			input.WithQuitKey(tcell.KeyCtrlC),
		)
		if err != nil {
			return err
		}
		pump.OnEvent(func(ev input.Event) error {
			if host == nil {
				a.logger.Debug().Str("event", ev.Name()).Msg("input")
				return nil
			}
			_, err := host.Call(ctx, "on_input", ev.Name())
			if errors.Is(err, script.ErrNotFunction) {
				return nil
			}
			return err
		})
		go func() {
			if err := pump.Run(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("input pump stopped")
			}
		}()
	}

	a.logger.Info().
		Str("thread", d.Thread().String()).
		Str("abandon_policy", cfg.Dispatcher.AbandonPolicy.String()).
		Msg("dispatcher running")

	if host != nil {
		if err := host.DoFile(ctx, cfg.Script.Path); err != nil {
			return err
		}
	}

	select {
	case err := <-runErr:
		return err
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
		if err := d.BeginInvokeShutdown(dispatcher.PriorityBackground); err != nil {
			return err
		}
		return <-runErr
	}
}

func (a *app) reportMetrics(d *dispatcher.Dispatcher) {
	m := d.Metrics()
	if m == nil {
		return
	}
	s := m.Snapshot()
	a.logger.Info().
		Uint64("posted", s.TotalPosted).
		Uint64("completed", s.TotalCompleted).
		Uint64("errors", s.TotalErrors).
		Uint64("panics", s.TotalPanics).
		Uint64("aborted", s.TotalAborted).
		Dur("avg", s.AverageDuration).
		Msg("dispatcher stats")
}
