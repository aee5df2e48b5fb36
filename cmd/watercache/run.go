package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/watercache/watercache/pkg/cache"
	"github.com/watercache/watercache/pkg/config"
	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
	"github.com/watercache/watercache/pkg/perf"
	"github.com/watercache/watercache/pkg/scheduler"
	"github.com/watercache/watercache/pkg/watchdog"
)

// runFlags holds the flags for the run command
type runFlags struct {
	demo        bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the supervised cache until interrupted",
		Long: `Run the cache under watchdog supervision until SIGINT or SIGTERM.

With --demo, an item whose tick grows slower on every pass is registered
so the watchdog reports skipped ticks and then a stalled tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithOverrides(cfgFile)
			if err != nil {
				return err
			}
			if opts.metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = opts.metricsAddr
			}
			if opts.demo {
				cfg.Watchdog.TickInterval = demoTickInterval
				cfg.Watchdog.MaxTickTime = demoMaxTickTime
				cfg.Cache.TickInterval = 0
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, opts.demo)
		},
	}

	cmd.Flags().BoolVar(&opts.demo, "demo", false, "Register demo items that slow the tick down")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, demo bool) error {
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return errors.ConfigError("failed to build logger", err)
	}
	defer func() { _ = observability.Sync(logger) }()

	logger = logger.With(observability.String("run_id", uuid.NewString()))

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace, nil)
		shutdown := serveMetrics(cfg.Metrics.Addr, metrics, logger)
		defer shutdown()
	}

	c := cache.New(
		cache.WithLogger(logger.With(observability.String("component", "cache"))),
		cache.WithListener(cache.LogListener{Logger: logger}),
		cache.WithMetrics(metrics),
	)

	sched, pool, err := newScheduler(cfg.Scheduler, logger, metrics)
	if err != nil {
		return err
	}
	if pool != nil {
		pool.Start()
		defer pool.Stop()
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		sched.Stop()
		sched.Wait()
	}()

	if demo {
		if err := registerDemo(c, sched, logger); err != nil {
			return err
		}
	}

	if cfg.Cache.TickInterval > 0 {
		return runUnsupervised(ctx, c, cfg.Cache.TickInterval, logger)
	}
	return runSupervised(ctx, c, cfg.Watchdog, logger, metrics)
}

func runUnsupervised(ctx context.Context, c *cache.Cache, interval time.Duration, logger observability.Logger) error {
	if err := c.Start(interval); err != nil {
		return err
	}
	logger.Info("cache running without supervision", observability.Duration("tick_interval", interval))

	<-ctx.Done()
	c.Stop()
	c.Wait()
	logger.Info("cache stopped")
	return nil
}

func runSupervised(ctx context.Context, c *cache.Cache, cfg config.WatchdogConfig, logger observability.Logger, metrics *observability.Metrics) error {
	tracker := observability.NewAvailabilityTracker()
	tracker.SetWindow(cfg.AvailabilityWindow)

	w, err := watchdog.New(c, cfg.TickInterval, cfg.MaxTickTime,
		watchdog.WithID(cfg.ID),
		watchdog.WithLogger(logger.With(observability.String("component", "watchdog"))),
		watchdog.WithMetrics(metrics),
		watchdog.WithListener(watchdog.MultiListener{
			watchdog.LogListener{Logger: logger},
			watchdog.NewObservingListener(metrics, tracker),
		}),
	)
	if err != nil {
		return err
	}

	logger.Info("watchdog starting",
		observability.String("watchdog_id", w.ID()),
		observability.Duration("tick_interval", w.TickInterval()),
		observability.Duration("max_tick_time", w.MaxTickTime()))

	err = w.StartBlocking(ctx)

	report := tracker.Report()
	logger.Info("watchdog stopped",
		observability.Any("uptime_percent", report.UptimePercent),
		observability.Int("stalls", len(report.DowntimePeriods)),
		observability.Duration("total_stalled", report.TotalDowntime))

	// A signal cancels ctx, which the watchdog reports as an interruption.
	if errors.IsType(err, errors.ErrInterrupted) && ctx.Err() != nil {
		return nil
	}
	return err
}

// newScheduler builds an inline scheduler, or one dispatching to a worker
// pool when workers are configured. The returned pool is nil for inline.
func newScheduler(cfg config.SchedulerConfig, logger observability.Logger, metrics *observability.Metrics) (*scheduler.Scheduler, *perf.WorkerPool, error) {
	opts := []scheduler.Option{
		scheduler.WithLogger(logger.With(observability.String("component", "scheduler"))),
		scheduler.WithMetrics(metrics),
	}
	if cfg.Workers == 0 {
		return scheduler.New(opts...), nil, nil
	}

	pool, err := perf.NewWorkerPool(cfg.Workers,
		perf.WithQueueSize(cfg.QueueSize),
		perf.WithPoolLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, scheduler.WithExecutor(pool))
	return scheduler.New(opts...), pool, nil
}

// serveMetrics exposes /metrics and returns a function that shuts the server down.
func serveMetrics(addr string, metrics *observability.Metrics, logger observability.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", observability.Err(err))
		}
	}()
	logger.Info("serving metrics", observability.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
