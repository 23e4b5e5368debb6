package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/worklog/internal/app"
	"github.com/JonMunkholm/worklog/internal/config"
	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/JonMunkholm/worklog/internal/logging"
	"github.com/JonMunkholm/worklog/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Overload lets a local .env win over stale shell exports.
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

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit", cfg.Server.RateLimit,
		"api_key_required", cfg.Security.RequireAPIKey,
	)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, app.Options{Migrate: cfg.Database.MigrateOnStart})
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	history := core.NewImportHistory(cfg.Import.ResultTTL)
	server := web.NewServer(cfg, web.Deps{
		Importer: a.Importer,
		Reports:  a.Reports,
		DB:       a.Store,
		History:  history,
	})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go history.StartPruner(jobCtx, core.DefaultPruneInterval)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		a.Close()
		os.Exit(1)
	}

	// Start returns as soon as Shutdown begins; wait for running imports.
	<-stopped
	slog.Info("server stopped")
}
