package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dohr-michael/taskd/internal/config"
	"github.com/dohr-michael/taskd/internal/events"
	"github.com/dohr-michael/taskd/internal/executor"
	"github.com/dohr-michael/taskd/internal/gateway"
	"github.com/dohr-michael/taskd/internal/heartbeat"
	"github.com/dohr-michael/taskd/internal/lifecycle"
	"github.com/dohr-michael/taskd/internal/scheduler"
	"github.com/dohr-michael/taskd/internal/secrets"
	"github.com/dohr-michael/taskd/internal/storage"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the executor, scheduler and gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// History must outlive the observer registry so pending records flush.
	var history *storage.HistoryStore
	if cfg.History.Enabled {
		history, err = storage.OpenHistory(cfg.History.Path)
		if err != nil {
			return err
		}
		defer history.Close()
	}

	usage := storage.NewUsageTracker()
	observers := lifecycle.NewRegistry(logger)
	defer observers.Close()
	observers.Register(lifecycle.Wildcard, usage.Hooks())
	if history != nil {
		observers.Register(lifecycle.Wildcard, history.Hooks())
	}

	eventLog := storage.NewEventLogger(cfg.Events.LogDir, bus)
	defer eventLog.Close()

	exec, err := executor.New(executor.Config{
		Registry:       reg,
		Sink:           bus,
		Observers:      observers,
		MaxConcurrency: cfg.Executor.MaxConcurrency,
		CompletedTTL:   cfg.Executor.CompletedTTL.Duration(),
		GCInterval:     cfg.Executor.GCInterval.Duration(),
		DefaultTimeout: cfg.Executor.DefaultTimeout.Duration(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init executor: %w", err)
	}
	defer exec.Destroy()

	entries, err := scheduler.FromConfig(cfg.Schedules)
	if err != nil {
		return err
	}
	sched, err := scheduler.New(scheduler.Config{
		Submitter: exec,
		Registry:  reg,
		Sink:      bus,
		Entries:   entries,
	})
	if err != nil {
		return err
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	opts := gateway.Options{
		Host:      cfg.Gateway.Host,
		Port:      cfg.Gateway.Port,
		Bus:       bus,
		Executor:  exec,
		Types:     reg.Types,
		Usage:     usage,
		Schedules: sched.Entries,
	}
	if history != nil {
		opts.History = history
	}
	server := gateway.NewServer(opts)

	hb := heartbeat.NewWriter(config.HeartbeatPath(),
		heartbeat.WithAddr(fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)),
		heartbeat.WithQueue(exec.QueueStatus))

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.AfterDotenv(func() error {
		_, err := secrets.UnsealEnv(secrets.KeyPath())
		return err
	})
	reloader.OnReload(func(c *config.Config) {
		if err := exec.SetMaxConcurrency(c.Executor.MaxConcurrency); err != nil {
			slog.Error("apply max_concurrency", "error", err)
		}
	})

	slog.Info("taskd started", "types", reg.Types(), "max_concurrency", cfg.Executor.MaxConcurrency,
		"history", cfg.History.Enabled, "schedules", len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return hb.Run(gctx) })
	g.Go(func() error {
		reloader.WatchSignals(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
