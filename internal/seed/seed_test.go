package seed

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/panelbilling/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, EnsureCatalog(ctx, db, node, "usd"))
	require.NoError(t, EnsureCatalog(ctx, db, node, "USD"))

	var terms []struct {
		Slug      string
		IsDefault bool
	}
	require.NoError(t, db.Raw(`SELECT slug, is_default FROM terms`).Scan(&terms).Error)
	require.Len(t, terms, 1)
	assert.Equal(t, "monthly", terms[0].Slug)
	assert.True(t, terms[0].IsDefault)

	var hidden, visible int64
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM resources WHERE currency = 'USD' AND NOT visible`).Scan(&hidden).Error)
	require.NoError(t, db.Raw(`SELECT COUNT(1) FROM resources WHERE visible`).Scan(&visible).Error)
	assert.Equal(t, int64(len(defaultResources)), hidden)
	assert.Zero(t, visible)
}

func TestEnsureCatalogKeepsExistingDefault(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.Exec(`
		INSERT INTO terms (id, slug, name, duration_days, multiplier, active, is_default, created_at, updated_at)
		VALUES (1, 'quarterly', 'Quarterly', 90, 2.7, TRUE, TRUE, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`).Error)

	require.NoError(t, EnsureCatalog(ctx, db, node, "EUR"))

	var monthlyDefault bool
	require.NoError(t, db.Raw(`SELECT is_default FROM terms WHERE slug = 'monthly'`).Scan(&monthlyDefault).Error)
	assert.False(t, monthlyDefault)
}

func TestEnsureCatalogValidatesInput(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	assert.Error(t, EnsureCatalog(context.Background(), nil, node, "USD"))
	assert.Error(t, EnsureCatalog(context.Background(), db, nil, "USD"))
	assert.Error(t, EnsureCatalog(context.Background(), db, node, "US"))
}
