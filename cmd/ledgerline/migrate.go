package main

import (
	"log/slog"

	"github.com/Veraticus/ledgerline/internal/config"
	"github.com/Veraticus/ledgerline/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

This command ensures your local database has all the required
tables and indexes for the application to function properly.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if cfg.Database.Backend != config.BackendSQLite {
		slog.Info("Nothing to migrate", "backend", cfg.Database.Backend)
		return nil
	}

	slog.Info("🗄️  Running database migrations...", "database", cfg.Database.Path)

	engine, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	slog.Info("✅ Database migrations completed successfully!", "version", storage.ExpectedSchemaVersion)
	return nil
}
