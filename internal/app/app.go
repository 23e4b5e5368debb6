// Package app wires the database-backed services shared by the HTTP server
// and the command-line tool.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/worklog/internal/config"
	"github.com/JonMunkholm/worklog/internal/core"
	"github.com/JonMunkholm/worklog/internal/report"
	"github.com/JonMunkholm/worklog/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the connected pool and the services built on it.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Store    *store.Store
	Importer *core.Importer
	Reports  *report.Service
}

// Options control startup.
type Options struct {
	// Migrate applies pending schema migrations after connecting.
	Migrate bool
}

// New connects to the database and builds the services.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	pool, err := Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	if opts.Migrate {
		if err := store.Migrate(pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	st := store.NewFromPool(pool)
	return &App{
		Config:   cfg,
		Pool:     pool,
		Store:    st,
		Importer: core.NewImporter(st, nil),
		Reports:  report.NewService(st, cfg.Report.TopN),
	}, nil
}

// Close releases the connection pool.
func (a *App) Close() {
	if a != nil && a.Pool != nil {
		a.Pool.Close()
	}
}

// PoolConfig parses the database URL and applies pool sizing from cfg.
func PoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	return poolConfig, nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to database", "name", DatabaseName(cfg.URL))
	return pool, nil
}

// DatabaseName extracts the database name from a connection URL for logging.
// It never returns credentials.
func DatabaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
