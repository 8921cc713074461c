package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/dshills/dispatchloop/internal/config"
	"github.com/dshills/dispatchloop/internal/dispatcher"
)

type benchOptions struct {
	producers  int
	operations int
	rate       float64
	burst      int
	priorities []string
	output     string
}

func newBenchCmd(a *app) *cobra.Command {
	var o benchOptions
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure dispatcher throughput and queueing latency",
		Long: `bench starts producers on separate goroutines that post no-op callbacks
to one dispatcher, cycling through the configured priorities, then drains
the queue with a SystemIdle shutdown and reports throughput and per-priority
wait and run latencies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.Bench
			if err := o.apply(cmd, &cfg); err != nil {
				return err
			}
			res, err := runBench(cmd.Context(), cfg, a.cfg.Dispatcher.Options(), a.logger)
			if err != nil {
				return err
			}
			return res.write(cmd.OutOrStdout(), o.output)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&o.producers, "producers", "p", 0, "producer goroutines (default bench.producers)")
	flags.IntVarP(&o.operations, "operations", "n", 0, "operations to post in total (default bench.operations)")
	flags.Float64Var(&o.rate, "rate", 0, "posts per second across producers, 0 for unlimited (default bench.rate)")
	flags.IntVar(&o.burst, "burst", 0, "rate limiter burst (default bench.burst)")
	flags.StringSliceVar(&o.priorities, "priority", nil, "priorities to cycle through (default bench.priorities)")
	flags.StringVarP(&o.output, "output", "o", "table", "report format: table or yaml")
	return cmd
}

// apply lays the flags that were set over cfg and validates the result.
func (o *benchOptions) apply(cmd *cobra.Command, cfg *config.BenchConfig) error {
	flags := cmd.Flags()
	if flags.Changed("producers") {
		cfg.Producers = o.producers
	}
	if flags.Changed("operations") {
		cfg.Operations = o.operations
	}
	if flags.Changed("rate") {
		cfg.Rate = o.rate
	}
	if flags.Changed("burst") {
		cfg.Burst = o.burst
	}
	if flags.Changed("priority") {
		cfg.Priorities = cfg.Priorities[:0:0]
		for _, name := range o.priorities {
			p, err := dispatcher.ParsePriority(name)
			if err != nil {
				return err
			}
			cfg.Priorities = append(cfg.Priorities, p)
		}
	}
	if o.output != "table" && o.output != "yaml" {
		return fmt.Errorf("unknown output format %q", o.output)
	}

	check := config.Default()
	check.Bench = *cfg
	return check.Validate()
}

// benchResult is the outcome of one run.
type benchResult struct {
	Producers  int                   `yaml:"producers"`
	Posted     int                   `yaml:"posted"`
	Executed   uint64                `yaml:"executed"`
	Elapsed    time.Duration         `yaml:"elapsed"`
	Throughput float64               `yaml:"throughput"`
	Priorities []priorityBenchResult `yaml:"priorities"`
}

type priorityBenchResult struct {
	Priority  dispatcher.Priority `yaml:"priority"`
	Count     uint64              `yaml:"count"`
	WaitP50   time.Duration       `yaml:"waitP50"`
	WaitP99   time.Duration       `yaml:"waitP99"`
	WaitMax   time.Duration       `yaml:"waitMax"`
	RunAvg    time.Duration       `yaml:"runAvg"`
	Completed uint64              `yaml:"completed"`
}

// runBench posts cfg.Operations callbacks from cfg.Producers goroutines
// and waits until the dispatcher has run all of them.
func runBench(ctx context.Context, cfg config.BenchConfig, dcfg dispatcher.Config, logger zerolog.Logger) (*benchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	monitor := dispatcher.NewLatencyMonitor(0, nil)
	reg := dispatcher.NewRegistry(
		dispatcher.WithConfig(dcfg.WithMetrics()),
		dispatcher.WithLogger(logger),
		dispatcher.WithHook(monitor),
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
	}()

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)
	}

	var executed atomic.Uint64
	work := func() { executed.Add(1) }

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	per, extra := cfg.Operations/cfg.Producers, cfg.Operations%cfg.Producers
	for i := 0; i < cfg.Producers; i++ {
		n := per
		if i < extra {
			n++
		}
		g.Go(func() error {
			for j := 0; j < n; j++ {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
				} else if err := gctx.Err(); err != nil {
					return err
				}
				p := cfg.Priorities[(i+j)%len(cfg.Priorities)]
				if _, err := d.BeginInvoke(p, work); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// every posted priority is at or above SystemIdle, so the drain runs all
	if err := d.BeginInvokeShutdown(dispatcher.PrioritySystemIdle); err != nil {
		return nil, err
	}
	if err := <-runErr; err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	res := &benchResult{
		Producers: cfg.Producers,
		Posted:    cfg.Operations,
		Executed:  executed.Load(),
		Elapsed:   elapsed,
	}
	if elapsed > 0 {
		res.Throughput = float64(res.Executed) / elapsed.Seconds()
	}

	m := d.Metrics()
	for _, pl := range monitor.Report() {
		pr := priorityBenchResult{
			Priority: pl.Priority,
			Count:    pl.Wait.Count,
			WaitP50:  pl.Wait.Percentile50,
			WaitP99:  pl.Wait.Percentile99,
			WaitMax:  pl.Wait.MaxTime,
			RunAvg:   pl.Run.AvgTime,
		}
		if pm := m.PriorityStats(pl.Priority); pm != nil {
			pr.Completed = pm.CompletedCount
		}
		res.Priorities = append(res.Priorities, pr)
	}

	logger.Debug().
		Int("posted", res.Posted).
		Uint64("executed", res.Executed).
		Dur("elapsed", elapsed).
		Msg("bench finished")
	return res, nil
}

func (r *benchResult) write(w io.Writer, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	rows := make([][]string, 0, len(r.Priorities))
	for _, p := range r.Priorities {
		rows = append(rows, []string{
			p.Priority.String(),
			strconv.FormatUint(p.Completed, 10),
			p.WaitP50.String(),
			p.WaitP99.String(),
			p.WaitMax.String(),
			p.RunAvg.String(),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PRIORITY", "COMPLETED", "WAIT P50", "WAIT P99", "WAIT MAX", "RUN AVG").
		Rows(rows...)

	_, err := fmt.Fprintf(w, "%d operations from %d producers in %s (%.0f ops/s)\n%s\n",
		r.Executed, r.Producers, r.Elapsed.Round(time.Microsecond), r.Throughput, t.Render())
	return err
}
