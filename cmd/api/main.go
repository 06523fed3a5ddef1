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

	"github.com/wolfman30/legal-triage/cmd/mainconfig"
	"github.com/wolfman30/legal-triage/internal/app/bootstrap"
	appconfig "github.com/wolfman30/legal-triage/internal/config"
	"github.com/wolfman30/legal-triage/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting legal triage API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := mainconfig.ConnectDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	app, err := bootstrap.New(ctx, cfg, deps, logger)
	if err != nil {
		logger.Error("failed to wire service", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close publisher", "error", err)
		}
	}()
	app.RunBackground(ctx)

	// No WriteTimeout: streamed replies are bounded by LLM_TIMEOUT.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
