package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/amishk599/pathwise/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the refresh daemon",
	Long:  "Apply migrations, serve metrics and refresh stale industry insights on schedule; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stdout, debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"database", cfg.Database.Driver,
		"ai_enabled", cfg.AI.Enabled,
		"refresh_schedule", cfg.Refresh.Schedule,
		"memory_ttl", cfg.Insights.MemoryTTL.String(),
	)

	a, err := openApp(cfg, logger)
	if err != nil {
		logger.Error("failed to open app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	schedule, err := scheduler.ParseSchedule(cfg.Refresh.Schedule)
	if err != nil {
		logger.Error("invalid refresh schedule", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	sched := scheduler.NewScheduler(a.cache, schedule, cfg.Refresh.Concurrency, setupNotifier(cfg, logger), logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

// serveMetrics exposes Prometheus metrics on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
