package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/personalrag/ragengine/infrastructure/persistence"
	"github.com/personalrag/ragengine/internal/database"
	"github.com/personalrag/ragengine/internal/log"
)

func migrateCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations. The result is not schema-validated here.

migrate only touches the sync log, embedding cost, and conversation turn
tables: the document/embedding tables are created by the document store
itself on first "serve" run, once an embedding provider is available to
determine the vector column width for PostgreSQL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(envFile)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")

	return cmd
}

func runMigrate(envFile string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()

	ctx := context.Background()
	db, err := database.NewDatabase(ctx, cfg.DBURL())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slogger.Info("applying migrations", slog.String("db", cfg.DBURL()))

	if err := persistence.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	slogger.Info("migrations applied")
	return nil
}
