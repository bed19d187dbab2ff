package main

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/panelbilling/internal/clock"
	"github.com/smallbiznis/panelbilling/internal/config"
	"github.com/smallbiznis/panelbilling/internal/migration"
	"github.com/smallbiznis/panelbilling/internal/observability"
	"github.com/smallbiznis/panelbilling/internal/scheduler"
	"github.com/smallbiznis/panelbilling/internal/server"
	"github.com/smallbiznis/panelbilling/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the billing HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []fx.Option{
			config.Module,
			observability.Module,
			fx.Provide(RegisterSnowflake),
			db.Module,
			clock.Module,
		}
		if !skipMigrations {
			opts = append(opts, migration.Module)
		}
		opts = append(opts, server.Module, scheduler.Module)

		app := fx.New(opts...)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "start without applying pending migrations")
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}
