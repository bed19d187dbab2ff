package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ErrUnsupportedDialect is returned for any database other than postgres.
// Settlement relies on SELECT ... FOR UPDATE and ON CONFLICT, and the
// embedded migrations are postgres DDL.
var ErrUnsupportedDialect = errors.New("unsupported_database_type")

func Dialect(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "", "postgres", "postgresql":
		return postgres.Open(DSN(cfg)), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, cfg.Type)
	}
}

// DSN renders the postgres connection string used by gorm and migrations.
func DSN(cfg Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.Port,
		cfg.SSLMode,
	)
}
