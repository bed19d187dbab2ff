package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/panelbilling/internal/dbtest"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"github.com/smallbiznis/panelbilling/internal/term/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (termdomain.Service, *gorm.DB) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	db := dbtest.Open(t)
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	}), db
}

func countDefaults(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM terms WHERE is_default = ?`, true).Scan(&count).Error)
	return count
}

func TestCreateDerivesSlug(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Create(context.Background(), termdomain.CreateRequest{
		Name:         "Quarterly Billing",
		DurationDays: 90,
		Multiplier:   decimal.RequireFromString("2.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "quarterly-billing", resp.Slug)
	assert.True(t, resp.Active)
	assert.False(t, resp.IsDefault)

	_, err = svc.Create(context.Background(), termdomain.CreateRequest{
		Name:         "quarterly billing",
		DurationDays: 91,
		Multiplier:   decimal.RequireFromString("2"),
	})
	assert.ErrorIs(t, err, termdomain.ErrDuplicateSlug)

	_, err = svc.Create(context.Background(), termdomain.CreateRequest{
		Name:         "free",
		DurationDays: 30,
		Multiplier:   decimal.Zero,
	})
	assert.ErrorIs(t, err, termdomain.ErrInvalidMultiplier)
}

func TestPromoteDefaultKeepsSingleDefault(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	monthly, err := svc.Create(ctx, termdomain.CreateRequest{
		Name: "Monthly", DurationDays: 30, Multiplier: decimal.NewFromInt(1), IsDefault: true,
	})
	require.NoError(t, err)
	assert.True(t, monthly.IsDefault)

	quarterly, err := svc.Create(ctx, termdomain.CreateRequest{
		Name: "Quarterly", DurationDays: 90, Multiplier: decimal.RequireFromString("2.5"), IsDefault: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countDefaults(t, db))

	def, err := svc.DefaultTerm(ctx)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, quarterly.ID, def.ID)

	_, err = svc.PromoteDefault(ctx, monthly.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), countDefaults(t, db))

	def, err = svc.DefaultTerm(ctx)
	require.NoError(t, err)
	assert.Equal(t, monthly.ID, def.ID)

	_, err = svc.PromoteDefault(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), countDefaults(t, db))

	def, err = svc.DefaultTerm(ctx)
	require.NoError(t, err)
	assert.Nil(t, def)
	assert.True(t, termdomain.MultiplierFor(def).Equal(decimal.NewFromInt(1)))
}

func TestPromoteDefaultRejectsInactiveAndUnknown(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	inactive := false
	term, err := svc.Create(ctx, termdomain.CreateRequest{
		Name: "Legacy", DurationDays: 365, Multiplier: decimal.NewFromInt(10), Active: &inactive,
	})
	require.NoError(t, err)

	_, err = svc.PromoteDefault(ctx, term.ID.String())
	assert.ErrorIs(t, err, termdomain.ErrInactive)
	assert.Equal(t, int64(0), countDefaults(t, db))

	_, err = svc.PromoteDefault(ctx, "42")
	assert.ErrorIs(t, err, termdomain.ErrNotFound)

	_, err = svc.PromoteDefault(ctx, "not-an-id")
	assert.ErrorIs(t, err, termdomain.ErrInvalidID)
}

func TestTermByIdentifierAcceptsIDOrSlug(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, termdomain.CreateRequest{
		Slug: "Semi Annual", Name: "Semi-annual", DurationDays: 180, Multiplier: decimal.RequireFromString("5"),
	})
	require.NoError(t, err)

	byID, err := svc.TermByIdentifier(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "semi-annual", byID.Slug)

	bySlug, err := svc.TermByIdentifier(ctx, "SEMI-ANNUAL")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	_, err = svc.TermByIdentifier(ctx, "weekly")
	assert.ErrorIs(t, err, termdomain.ErrNotFound)
}

func TestUpdateRefusesToDeactivateDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	monthly, err := svc.Create(ctx, termdomain.CreateRequest{
		Name: "Monthly", DurationDays: 30, Multiplier: decimal.NewFromInt(1), IsDefault: true,
	})
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, monthly.ID.String(), termdomain.Patch{Active: &inactive})
	assert.ErrorIs(t, err, termdomain.ErrInactive)

	multiplier := decimal.RequireFromString("0.9")
	updated, err := svc.Update(ctx, monthly.ID.String(), termdomain.Patch{Multiplier: &multiplier})
	require.NoError(t, err)
	assert.True(t, updated.Multiplier.Equal(multiplier))
	assert.Equal(t, int32(30), updated.DurationDays)
}
