package main

import (
	"context"
	"time"

	"github.com/smallbiznis/panelbilling/internal/config"
	"github.com/smallbiznis/panelbilling/internal/migration"
	"github.com/smallbiznis/panelbilling/internal/observability"
	"github.com/smallbiznis/panelbilling/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			fx.NopLogger,
			config.Module,
			observability.Module,
			db.Module,
			migration.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		if err := app.Start(ctx); err != nil {
			return err
		}
		return app.Stop(ctx)
	},
}
