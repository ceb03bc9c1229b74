package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"missionctl/backend/internal/api"
	"missionctl/backend/internal/config"
	"missionctl/backend/internal/hooks"
	"missionctl/backend/internal/logging"
	"missionctl/backend/internal/mcp"
	"missionctl/backend/internal/observability"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/scheduler"
	"missionctl/backend/internal/services"
	"missionctl/backend/internal/workflow"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "server",
		Short: "Mission control API server",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "directory containing config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the API server (with the embedded scheduler when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), configPath)
		},
	})
	return root
}

func serve(ctx context.Context, configPath string) error {
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
	logger.Info("database ready")

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	var hook hooks.MemoryHook = hooks.NoopHook{}
	if cfg.Hooks.MemoryURL != "" {
		hook = hooks.NewHTTPMemoryHook(cfg.Hooks.MemoryURL, nil)
	}

	catalog := workflow.NewCatalog(store, 30*time.Second)
	items := services.NewItemService(store, logger)
	transitions := services.NewTransitionService(store, catalog, hook, metrics, logger)
	runs := services.NewRunService(store, hook, metrics, nil, logger)
	provision := services.NewProvisionService(store, catalog, logger)

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(store, runs, nil, metrics, logger, scheduler.Options{
			Interval:  cfg.Scheduler.PollInterval,
			BatchSize: cfg.Scheduler.BatchSize,
		})
		sched.Start(ctx)
		defer sched.Stop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("missionctl"))

	apiServer := api.NewServer(store, catalog, items, transitions, runs, provision)
	apiServer.Register(e)

	mcpServer := mcp.NewServer(transitions, items, runs, catalog)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting", "address", cfg.Server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
	}
	return nil
}

func migrate(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
