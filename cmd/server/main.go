package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/chargeflow/internal/app"
	"github.com/JonMunkholm/chargeflow/internal/web"
)

func main() {
	app.LoadEnv()

	ctx := context.Background()
	a, err := app.New(ctx, os.Stdout)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	slog.Info("configuration loaded",
		"port", a.Config.Server.Port,
		"environment", a.Config.Pipeline.Environment,
		"rate_limit", a.Config.Security.RateLimit,
		"history", a.Config.Pipeline.HistoryPath,
	)

	server := web.NewServer(a.Service, a.Config)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if active := a.Service.Limiter().Active(); active > 0 {
			slog.Info("waiting for pipeline runs to complete", "active", active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
