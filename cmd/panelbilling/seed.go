package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/panelbilling/internal/config"
	"github.com/smallbiznis/panelbilling/internal/migration"
	"github.com/smallbiznis/panelbilling/internal/observability"
	"github.com/smallbiznis/panelbilling/internal/seed"
	"github.com/smallbiznis/panelbilling/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var seedCurrency string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default term and the standard resource keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			fx.NopLogger,
			config.Module,
			observability.Module,
			fx.Provide(RegisterSnowflake),
			db.Module,
			migration.Module,
			fx.Invoke(func(conn *gorm.DB, node *snowflake.Node, holder *config.BillingConfigHolder, log *zap.Logger) error {
				currency := seedCurrency
				if currency == "" {
					currency = holder.Get().DefaultCurrency
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				if err := seed.EnsureCatalog(ctx, conn, node, currency); err != nil {
					return err
				}
				log.Info("catalog seeded", zap.String("currency", currency))
				return nil
			}),
		)
		return app.Err()
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedCurrency, "currency", "", "currency for the seeded resources (defaults to the billing default)")
}
