package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectOnlyAcceptsPostgres(t *testing.T) {
	for _, kind := range []string{"postgres", " Postgres ", "postgresql", ""} {
		dialect, err := Dialect(Config{Type: kind, Host: "localhost", Port: "5432", Name: "panel"})
		require.NoError(t, err, kind)
		assert.Equal(t, "postgres", dialect.Name())
	}

	for _, kind := range []string{"mysql", "sqlite", "sqlserver"} {
		_, err := Dialect(Config{Type: kind})
		assert.ErrorIs(t, err, ErrUnsupportedDialect, kind)
	}
}
