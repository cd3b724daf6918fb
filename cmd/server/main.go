package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/grc/internal/app"
	"github.com/JonMunkholm/grc/internal/config"
	"github.com/JonMunkholm/grc/internal/logging"
	"github.com/JonMunkholm/grc/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	deps := web.Deps{
		Config:        cfg,
		Pipeline:      a.Pipeline,
		Notifications: a.Notifications,
		Limiter:       a.Limiter,
		Authorizer:    a.Enforcer,
	}
	if a.DB != nil {
		deps.ImportLog = a.DB
		deps.Health = a.DB
	}
	server := web.NewServer(deps)

	if spec := cfg.Notification.DigestSchedule; spec != "" {
		if err := a.Notifications.StartDigest(spec); err != nil {
			slog.Error("failed to schedule digest", "error", err)
			os.Exit(1)
		}
		slog.Info("digest scheduled", "spec", spec)
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		a.Notifications.StopDigest(shutdownCtx)

		if active := a.Limiter.Active(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := a.Limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
