package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onnwee/dmflow/internal/db"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}
	cmd.AddCommand(migrateDirectionCmd(db.Up, "Apply all pending migrations"))
	cmd.AddCommand(migrateDirectionCmd(db.Down, "Roll back every migration"))
	return cmd
}

func migrateDirectionCmd(dir db.Direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(dir),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, dir)
		},
	}
}

func runMigrate(cmd *cobra.Command, dir db.Direction) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errNoDatabase
	}

	conn, err := db.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(conn, dir); err != nil {
		return err
	}
	version, dirty, err := db.Version(conn)
	if err != nil {
		return err
	}
	slog.Info("migration complete", "direction", string(dir), "version", version, "dirty", dirty)
	return nil
}
