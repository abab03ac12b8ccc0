// Package app wires configuration, the database pool, the run ledger and
// the pipeline service together for the server and CLI entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/chargeflow/internal/config"
	"github.com/JonMunkholm/chargeflow/internal/history"
	"github.com/JonMunkholm/chargeflow/internal/logging"
	"github.com/JonMunkholm/chargeflow/internal/pipeline"
	"github.com/JonMunkholm/chargeflow/internal/publish"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Config    *config.Config
	Rules     config.Rules
	Pool      *pgxpool.Pool
	History   *history.Store
	Publisher *publish.Publisher
	Service   *pipeline.Service
}

// LoadEnv reads .env when present. Overload overwrites existing env vars.
func LoadEnv() {
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Debug("loaded .env file (overwriting existing env vars)")
	}
}

// New loads configuration, sets up logging on logOut and connects to the
// database. Close releases everything New opened.
func New(ctx context.Context, logOut io.Writer) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logging.Setup(logOut, cfg.Logging.Level, cfg.Logging.Format)

	rules := config.DefaultRules()
	if cfg.Pipeline.RulesFile != "" {
		if rules, err = config.LoadRules(cfg.Pipeline.RulesFile); err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg, Rules: rules}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Service = pipeline.New(cfg, rules, pipeline.Deps{
		DB:        a.Pool,
		History:   a.History,
		Publisher: a.Publisher,
	})

	slog.Debug("configuration loaded",
		"environment", cfg.Pipeline.Environment,
		"db_max_conns", cfg.Database.MaxConns,
		"batch_size", cfg.Pipeline.BatchSize,
		"validation_level", cfg.Pipeline.ValidationLevel,
		"publish", a.Publisher != nil,
	)
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	if a.Pool, err = pgxpool.NewWithConfig(ctx, poolConfig); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := a.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	slog.Debug("connected to database", "name", databaseName(cfg.Database.URL))

	if cfg.Pipeline.HistoryPath != "" {
		if a.History, err = history.Open(cfg.Pipeline.HistoryPath); err != nil {
			return err
		}
	}

	if cfg.Export.PublishURL != "" {
		if a.Publisher, err = publish.New(ctx, cfg.Export.PublishURL); err != nil {
			return err
		}
	}
	return nil
}

// databaseName returns the database part of a connection URL for logging.
func databaseName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Close releases the pool, the ledger and the publisher.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.History != nil {
		errs = append(errs, a.History.Close())
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return errors.Join(errs...)
}
