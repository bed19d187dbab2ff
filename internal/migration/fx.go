package migration

import (
	"fmt"

	"github.com/smallbiznis/panelbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module applies pending migrations before the server starts.
var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

func Apply(conn *gorm.DB, log *zap.Logger) error {
	if conn.Dialector.Name() != "postgres" {
		return fmt.Errorf("%w: %s", db.ErrUnsupportedDialect, conn.Dialector.Name())
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}
