package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/api"
	"github.com/t77yq/nitrite-automation/internal/app"
	"github.com/t77yq/nitrite-automation/internal/config"
	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/scheduler"
	"github.com/t77yq/nitrite-automation/internal/watch"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "nitrite-server",
		Short:        "Script automation service: HTTP API, task dispatcher and source watcher",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default ./config/config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()

	logger.Info("Script store ready",
		zap.String("data_dir", cfg.Data.Dir),
		zap.Int("scripts", len(a.Service.ListScripts())),
		zap.Int("tasks", len(a.Service.ListScheduledTasks())),
		zap.Bool("events", a.NATS != nil))

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.Collector != nil {
		a.Collector.Start(ctx, cfg.Metrics.RefreshEvery)
	}

	if cfg.Watch.Enabled {
		watcher, err := watch.New(cfg.Data.Dir, a.Scripts, logger,
			watch.WithDebounce(cfg.Watch.Debounce),
			watch.WithHandler(func(rec *model.ScriptRecord) {
				if !rec.Security.Validated {
					logger.Warn("Edited script will be blocked at run time",
						zap.String("script_id", rec.ID),
						zap.String("risk_level", string(rec.Security.RiskLevel)),
						zap.Strings("warnings", rec.Security.Warnings))
				}
			}))
		if err != nil {
			return err
		}
		watcher.Start(ctx)
		defer watcher.Close()
	}

	if cfg.Scheduler.Enabled {
		dispatcher := scheduler.NewDispatcher(a.Tasks, a.Service, cfg.Scheduler.Tick, logger)
		if err := dispatcher.Start(ctx); err != nil {
			return err
		}
		defer dispatcher.Stop()
	}

	if cfg.History.Retention > 0 && cfg.History.PruneInterval > 0 {
		go pruneHistory(ctx, a, cfg.History, logger)
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.API.Listen,
		Handler: api.NewRouter(api.NewHandler(a.Service, logger)),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", zap.String("addr", cfg.API.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached, closing connections", zap.Error(err))
	}

	if running := a.Service.RunningExecutions(); len(running) > 0 {
		logger.Info("Stopping running executions", zap.Int("count", len(running)))
	}

	logger.Info("Server shutting down gracefully")
	return nil
}

// pruneHistory deletes old execution records once per interval
func pruneHistory(ctx context.Context, a *app.App, cfg config.HistoryConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.Retention)
			if _, err := a.Service.PruneHistory(ctx, cutoff); err != nil {
				logger.Error("Failed to prune execution history", zap.Error(err))
			}
		}
	}
}
