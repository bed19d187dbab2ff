package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/panelbilling/internal/dbtest"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	"github.com/smallbiznis/panelbilling/internal/resource/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) resourcedomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func createCPU(t *testing.T, svc resourcedomain.Service) *resourcedomain.Response {
	t.Helper()
	resp, err := svc.Create(context.Background(), resourcedomain.CreateRequest{
		Key:             " CPU ",
		Name:            "CPU",
		UnitPrice:       decimal.RequireFromString("0.01"),
		Currency:        "usd",
		MinQuantity:     0,
		DefaultQuantity: 100,
		Step:            1,
	})
	require.NoError(t, err)
	return resp
}

func TestCreateNormalizesAndRejectsDuplicates(t *testing.T) {
	svc := newTestService(t)
	resp := createCPU(t, svc)

	assert.Equal(t, "cpu", resp.Key)
	assert.Equal(t, "USD", resp.Currency)
	assert.True(t, resp.Visible)

	_, err := svc.Create(context.Background(), resourcedomain.CreateRequest{
		Key: "cpu", Name: "CPU again", UnitPrice: decimal.RequireFromString("1"), Currency: "USD",
	})
	assert.ErrorIs(t, err, resourcedomain.ErrDuplicateKey)

	_, err = svc.Create(context.Background(), resourcedomain.CreateRequest{
		Key: "cpu", Name: "CPU euro", UnitPrice: decimal.RequireFromString("1"), Currency: "EUR",
	})
	assert.NoError(t, err, "key is unique per currency")
}

func TestResolveUnitPriceAppliesLadder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cpu := createCPU(t, svc)

	_, err := svc.AddScalingRule(ctx, cpu.ID.String(), resourcedomain.CreateScalingRuleRequest{
		Threshold: 50,
		Mode:      resourcedomain.ScalingModeMultiplier,
		Factor:    decimal.RequireFromString("1.2"),
	})
	require.NoError(t, err)

	_, err = svc.AddScalingRule(ctx, cpu.ID.String(), resourcedomain.CreateScalingRuleRequest{
		Threshold: 50,
		Mode:      resourcedomain.ScalingModeMultiplier,
		Factor:    decimal.RequireFromString("3"),
	})
	assert.ErrorIs(t, err, resourcedomain.ErrDuplicateScalingRule)

	_, err = svc.AddScalingRule(ctx, cpu.ID.String(), resourcedomain.CreateScalingRuleRequest{
		Threshold: 50,
		Mode:      resourcedomain.ScalingModeSurcharge,
		Factor:    decimal.RequireFromString("0.5"),
	})
	assert.ErrorIs(t, err, resourcedomain.ErrDuplicateScalingRule, "one rule per threshold whatever the mode")

	price, err := svc.ResolveUnitPrice(ctx, "cpu", "USD", 100)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.012")), "got %s", price)

	price, err = svc.ResolveUnitPrice(ctx, "cpu", "USD", 10)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.01")), "got %s", price)
}

func TestResolveUnitPriceHiddenOrUnknownIsNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cpu := createCPU(t, svc)

	_, err := svc.ResolveUnitPrice(ctx, "gpu", "USD", 1)
	assert.ErrorIs(t, err, resourcedomain.ErrNotFound)

	hidden := false
	_, err = svc.Update(ctx, cpu.ID.String(), resourcedomain.Patch{Visible: &hidden})
	require.NoError(t, err)

	_, err = svc.ResolveUnitPrice(ctx, "cpu", "USD", 1)
	assert.ErrorIs(t, err, resourcedomain.ErrNotFound)
}

func TestUpdateAppliesOnlyPresentFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cpu := createCPU(t, svc)

	price := decimal.RequireFromString("0.02")
	max := int64(400)
	updated, err := svc.Update(ctx, cpu.ID.String(), resourcedomain.Patch{
		UnitPrice:   &price,
		MaxQuantity: &max,
	})
	require.NoError(t, err)
	assert.Equal(t, "CPU", updated.Name)
	assert.True(t, updated.UnitPrice.Equal(price))
	require.NotNil(t, updated.MaxQuantity)
	assert.Equal(t, int64(400), *updated.MaxQuantity)

	updated, err = svc.Update(ctx, cpu.ID.String(), resourcedomain.Patch{ClearMaxQuantity: true})
	require.NoError(t, err)
	assert.Nil(t, updated.MaxQuantity)

	tooSmall := int64(10)
	_, err = svc.Update(ctx, cpu.ID.String(), resourcedomain.Patch{MaxQuantity: &tooSmall})
	assert.ErrorIs(t, err, resourcedomain.ErrInvalidQuantityBounds)

	_, err = svc.Update(ctx, "123", resourcedomain.Patch{})
	assert.ErrorIs(t, err, resourcedomain.ErrNotFound)
}

func TestListGroupsScalingRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	cpu := createCPU(t, svc)

	_, err := svc.AddScalingRule(ctx, cpu.ID.String(), resourcedomain.CreateScalingRuleRequest{
		Threshold: 10,
		Mode:      resourcedomain.ScalingModeSurcharge,
		Factor:    decimal.RequireFromString("0.001"),
		Label:     "burst",
	})
	require.NoError(t, err)

	items, err := svc.List(ctx, "usd")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, items[0].ScalingRules, 1)
	assert.Equal(t, "burst", items[0].ScalingRules[0].Label)

	_, err = svc.AddScalingRule(ctx, cpu.ID.String(), resourcedomain.CreateScalingRuleRequest{
		Threshold: 5,
		Mode:      "tiered",
		Factor:    decimal.RequireFromString("1"),
	})
	assert.ErrorIs(t, err, resourcedomain.ErrInvalidScalingMode)
}
