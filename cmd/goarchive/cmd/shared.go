package cmd

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/dbsmedya/goarchive/internal/config"
	"github.com/dbsmedya/goarchive/internal/database"
	"github.com/dbsmedya/goarchive/internal/logger"
)

// loadConfig reads the configured file and applies CLI flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	o := GetCLIOverrides()
	cfg.ApplyOverrides(o.LogLevel, o.LogFormat, o.BatchSizeMin, o.BatchSizeMax, o.RetryDelaySeconds, o.CsvDelimiter)

	return cfg, nil
}

// openControl connects the control database that owns archive_settings,
// archive_runs, and the run-level advisory lock.
func openControl(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", database.BuildDSN(cfg.Control))
	if err != nil {
		return nil, fmt.Errorf("failed to open control database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach control database: %w", err)
	}
	return db, nil
}

// newLogger builds a logger.Logger from the resolved config's Logging
// section, falling back to defaults on construction failure.
func newLogger(cfg *config.Config) *logger.Logger {
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return logger.NewDefault()
	}
	return log
}
