package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onnwee/dmflow/internal/campaign"
	"github.com/onnwee/dmflow/internal/config"
	"github.com/onnwee/dmflow/internal/db"
)

// loadConfig reads the dotenv file and configuration named by the root flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	configFile, _ := cmd.Flags().GetString("config")

	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil {
			return nil, err
		}
	}
	cfg, errs := config.Load(configFile)
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// openStore returns the Postgres store when DATABASE_URL is set and the
// in-memory store otherwise. The returned *sql.DB is nil for the latter.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (campaign.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store; data is lost on exit")
		return campaign.NewInMemoryStore(), nil, nil
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(conn, db.Up); err != nil {
			conn.Close()
			return nil, nil, err
		}
		if v, dirty, err := db.Version(conn); err == nil {
			logger.Info("database migrated", "version", v, "dirty", dirty)
		}
	}
	return campaign.NewPostgresStore(conn, logger), conn, nil
}
