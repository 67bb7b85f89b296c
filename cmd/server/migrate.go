package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"link2ur.backend/internal/infrastructure/migrations"
	"link2ur.backend/pkg/logger"
)

var (
	migrateUp   = migrations.Up
	migrateDown = migrations.Down
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := migrateUp(cmd.Context(), cfg.Database.DSN()); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			logger.Info(cmd.Context(), "Migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the given number of migrations.

Examples:
  link2ur migrate down --steps 1
  link2ur migrate down --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && steps <= 0 {
				return errors.New("specify --steps N or --all")
			}
			if all {
				steps = 0
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := migrateDown(cmd.Context(), cfg.Database.DSN(), steps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			logger.Info(cmd.Context(), "Migrations rolled back", zap.Int("steps", steps))
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "number of migrations to roll back")
	down.Flags().Bool("all", false, "roll back every migration")

	cmd.AddCommand(up, down)
	return cmd
}
