package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/audience-dispatch/internal/app"
	"github.com/ignite/audience-dispatch/internal/config"
	"github.com/ignite/audience-dispatch/internal/pkg/distlock"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/worker"
)

func main() {
	defer logger.Sync()

	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to start services", "err", err)
		os.Exit(1)
	}
	defer a.Close()
	if a.DB == nil {
		logger.Warn("worker is running on the in-memory store; it will only see campaigns it creates")
	}

	scheduler := worker.NewScheduler(a.DueCampaigns, a.Orchestrator, a.Settings,
		distlock.NewFactory(a.Redis, a.DB, cfg.Scheduler.LockTTL()),
		worker.SchedulerConfig{
			DispatchSpec: cfg.Scheduler.DispatchSpec,
			RefreshSpec:  cfg.Scheduler.RefreshSpec,
			BatchSize:    cfg.Scheduler.BatchSize,
			LockTTL:      cfg.Scheduler.LockTTL(),
		})
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "err", err)
		os.Exit(1)
	}
	logger.Info("worker running",
		"dispatch", cfg.Scheduler.DispatchSpec, "refresh", cfg.Scheduler.RefreshSpec, "workers", cfg.Delivery.Workers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker, waiting for in-flight runs")
	scheduler.Stop()
	logger.Info("worker stopped")
}
