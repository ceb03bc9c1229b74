// The poller is a standalone claim-and-execute process. Any number of
// pollers may run against the same database; the per-row claim lock keeps
// each due occurrence to a single run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"missionctl/backend/internal/config"
	"missionctl/backend/internal/hooks"
	"missionctl/backend/internal/logging"
	"missionctl/backend/internal/observability"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/scheduler"
	"missionctl/backend/internal/services"
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:   "poller",
		Short: "Standalone schedule poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "directory containing config.yaml")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	var hook hooks.MemoryHook = hooks.NoopHook{}
	if cfg.Hooks.MemoryURL != "" {
		hook = hooks.NewHTTPMemoryHook(cfg.Hooks.MemoryURL, nil)
	}
	runs := services.NewRunService(store, hook, metrics, nil, logger)

	sched := scheduler.New(store, runs, nil, metrics, logger, scheduler.Options{
		Interval:  cfg.Scheduler.PollInterval,
		BatchSize: cfg.Scheduler.BatchSize,
	})
	sched.Start(ctx)

	<-ctx.Done()
	sched.Stop()
	return nil
}
