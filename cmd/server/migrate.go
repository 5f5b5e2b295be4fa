package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-procurement/internal/common/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			db, err := database.New(ctx, databaseConfig(cfg))
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Str("database", cfg.Database.Database).Msg("Schema applied")
			return nil
		},
	}
}
