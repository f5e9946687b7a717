// Command notifier is the daily wellness tip service: the scheduler loop,
// the cycle-trigger listener, maintenance tickers and the ops server.
//
// Usage:
//
//	notifier
//	OPS_PORT=9090 LOCK_MODE=lease notifier

// @title Wellness Notification Service
// @version 1.0.0
// @description Ops endpoints for the daily wellness tip scheduler.
// @BasePath /
// @schemes http https
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
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/wellnessapp/notification-service/internal/api"
	"github.com/wellnessapp/notification-service/internal/api/handler"
	"github.com/wellnessapp/notification-service/internal/app"
	"github.com/wellnessapp/notification-service/internal/config"
	"github.com/wellnessapp/notification-service/internal/db"
	"github.com/wellnessapp/notification-service/internal/listener"
	"github.com/wellnessapp/notification-service/internal/maintenance"

	_ "github.com/wellnessapp/notification-service/docs" // swagger docs
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.DBAutoMigrate {
		if err := db.ApplySchema(ctx, cfg.DatabaseURL); err != nil {
			logger.Error("Failed to apply schema", "error", err)
			os.Exit(1)
		}
		logger.Info("Schema applied")
	}

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	svc, err := app.New(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	logger.Info("Service initialized",
		"push_provider", cfg.PushProvider,
		"lock_mode", cfg.LockMode,
		"interval", cfg.SchedulerInterval)

	// Scheduler loop and LISTEN/NOTIFY trigger
	var sched handler.Scheduler
	schedDone := make(chan struct{})
	if cfg.SchedulerEnabled {
		sched = svc.Scheduler
		go func() {
			defer close(schedDone)
			svc.Scheduler.Run(ctx)
		}()
		go listener.Start(ctx, cfg.DatabaseURL, cfg.ListenChannel, svc.Scheduler, logger)
	} else {
		close(schedDone)
		logger.Info("Scheduler disabled (SCHEDULER_ENABLED=false)")
	}

	// Maintenance tickers (log retention, expired leases)
	mcfg := maintenance.DefaultConfig()
	mcfg.LogRetention = cfg.LogRetention
	go maintenance.Start(ctx, pool.Pool, mcfg, logger)

	// Ops server
	router := api.NewRouter(pool, sched, cfg)
	addr := fmt.Sprintf("%s:%d", cfg.OpsHost, cfg.OpsPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting ops server",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.OpsPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}

	// Let an in-flight cycle finish its current user and release the lock.
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("Scheduler did not stop before shutdown timeout")
	}
	logger.Info("Notifier stopped")
}
