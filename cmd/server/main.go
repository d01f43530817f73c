package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/audience-dispatch/internal/api"
	"github.com/ignite/audience-dispatch/internal/app"
	"github.com/ignite/audience-dispatch/internal/config"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return ""
}

func main() {
	defer logger.Sync()

	cfg, err := config.LoadFromEnv(configPath())
	if err != nil {
		logger.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Log)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		logger.Error("pre-flight check failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to start services", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	handlers := api.NewHandlers(a.Campaigns, a.Recipients, a.Orchestrator, a.Audiences, a.Settings, a.Suppressions)
	server := api.NewServer(cfg.Server, handlers, api.NewHealthChecker(a.DB, a.Redis))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			cancel()
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "err", err)
	}
	logger.Info("server stopped")
}
