package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	"github.com/smallbiznis/panelbilling/internal/coupon/repository"
	"github.com/smallbiznis/panelbilling/internal/dbtest"
	termrepository "github.com/smallbiznis/panelbilling/internal/term/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc  coupondomain.Service
	db   *gorm.DB
	node *snowflake.Node
}

func setup(t *testing.T) fixture {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	db := dbtest.Open(t)
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     repository.Provide(),
		TermRepo: termrepository.Provide(),
	})
	return fixture{svc: svc, db: db, node: node}
}

func (f fixture) percentCoupon(t *testing.T, code string, maxUsages *int64) *coupondomain.Response {
	t.Helper()
	percentage := decimal.RequireFromString("10")
	resp, err := f.svc.Create(context.Background(), coupondomain.CreateRequest{
		Code:       code,
		Type:       coupondomain.CouponTypePercentage,
		Percentage: &percentage,
		MaxUsages:  maxUsages,
	})
	require.NoError(t, err)
	return resp
}

func usageCount(t *testing.T, db *gorm.DB, id snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw(`SELECT usage_count FROM coupons WHERE id = ?`, id).Scan(&count).Error)
	return count
}

func TestCreateValidatesPayload(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created := f.percentCoupon(t, " save10 ", nil)
	assert.Equal(t, "SAVE10", created.Code)
	require.NotNil(t, created.Percentage)
	assert.Nil(t, created.Value)

	value := decimal.RequireFromString("5")
	percentage := decimal.RequireFromString("10")
	_, err := f.svc.Create(ctx, coupondomain.CreateRequest{
		Code: "BOTH", Type: coupondomain.CouponTypeAmount, Value: &value, Percentage: &percentage,
	})
	assert.ErrorIs(t, err, coupondomain.ErrInvalidPayload)

	_, err = f.svc.Create(ctx, coupondomain.CreateRequest{
		Code: "save10", Type: coupondomain.CouponTypeAmount, Value: &value,
	})
	assert.ErrorIs(t, err, coupondomain.ErrDuplicateCode)

	_, err = f.svc.Create(ctx, coupondomain.CreateRequest{
		Code: "TERMED", Type: coupondomain.CouponTypeAmount, Value: &value, TermID: "12345",
	})
	assert.ErrorIs(t, err, coupondomain.ErrInvalidTerm)

	zero := int64(0)
	_, err = f.svc.Create(ctx, coupondomain.CreateRequest{
		Code: "NOUSE", Type: coupondomain.CouponTypeAmount, Value: &value, MaxUsages: &zero,
	})
	assert.ErrorIs(t, err, coupondomain.ErrInvalidLimit)
}

func TestCheckDedupesAndKeepsClientOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.percentCoupon(t, "SAVE10", nil)
	value := decimal.RequireFromString("5")
	_, err := f.svc.Create(ctx, coupondomain.CreateRequest{Code: "FIVE", Type: coupondomain.CouponTypeAmount, Value: &value})
	require.NoError(t, err)

	coupons, err := f.svc.Check(ctx, coupondomain.CheckRequest{Codes: []string{"five", "SAVE10", "save10", "FIVE"}})
	require.NoError(t, err)
	require.Len(t, coupons, 2)
	assert.Equal(t, "FIVE", coupons[0].Code)
	assert.Equal(t, "SAVE10", coupons[1].Code)

	_, err = f.svc.Check(ctx, coupondomain.CheckRequest{Codes: []string{"SAVE10", "NOPE"}})
	assert.ErrorIs(t, err, coupondomain.ErrNotFound)

	_, err = f.svc.Check(ctx, coupondomain.CheckRequest{Codes: []string{"  "}})
	assert.ErrorIs(t, err, coupondomain.ErrInvalidCode)
}

func TestCheckDoesNotConsumeUsage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	one := int64(1)
	created := f.percentCoupon(t, "ONCE", &one)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Check(ctx, coupondomain.CheckRequest{Codes: []string{"ONCE"}})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(0), usageCount(t, f.db, created.ID))
}

func TestRedeemEnforcesMaxUsages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	one := int64(1)
	created := f.percentCoupon(t, "ONCE", &one)
	now := time.Now().UTC()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Redeem(ctx, tx, coupondomain.RedeemRequest{
			CouponID: created.ID, OrderID: f.node.Generate(), Amount: decimal.RequireFromString("0.3"), Now: now,
		})
		return err
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.svc.Redeem(ctx, tx, coupondomain.RedeemRequest{
			CouponID: created.ID, OrderID: f.node.Generate(), Amount: decimal.RequireFromString("0.3"), Now: now,
		})
		return err
	})
	var rejected *coupondomain.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, coupondomain.ReasonUsageExhausted, rejected.Reason)
	assert.Equal(t, int64(1), usageCount(t, f.db, created.ID))
}

func TestRedeemPerUserLimit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	value := decimal.RequireFromString("1")
	limit := int64(1)
	created, err := f.svc.Create(ctx, coupondomain.CreateRequest{
		Code: "WELCOME", Type: coupondomain.CouponTypeAmount, Value: &value, PerUserLimit: &limit,
	})
	require.NoError(t, err)

	user := f.node.Generate()
	other := f.node.Generate()
	now := time.Now().UTC()
	redeem := func(userID snowflake.ID) error {
		return f.db.Transaction(func(tx *gorm.DB) error {
			_, err := f.svc.Redeem(ctx, tx, coupondomain.RedeemRequest{
				CouponID: created.ID, OrderID: f.node.Generate(), UserID: &userID, Amount: value, Now: now,
			})
			return err
		})
	}

	require.NoError(t, redeem(user))
	err = redeem(user)
	assert.ErrorIs(t, err, coupondomain.ErrRejected)
	require.NoError(t, redeem(other))

	_, err = f.svc.Check(ctx, coupondomain.CheckRequest{Codes: []string{"WELCOME"}, UserID: &user})
	assert.ErrorIs(t, err, coupondomain.ErrRejected)
}

func TestRedeemIsIdempotentPerOrder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	created := f.percentCoupon(t, "SAVE10", nil)
	orderID := f.node.Generate()
	now := time.Now().UTC()

	redeem := func() error {
		return f.db.Transaction(func(tx *gorm.DB) error {
			_, err := f.svc.Redeem(ctx, tx, coupondomain.RedeemRequest{
				CouponID: created.ID, OrderID: orderID, Amount: decimal.RequireFromString("1"), Now: now,
			})
			return err
		})
	}
	require.NoError(t, redeem())
	assert.ErrorIs(t, redeem(), coupondomain.ErrAlreadyRedeemed)
	assert.Equal(t, int64(1), usageCount(t, f.db, created.ID))
}

func TestConcurrentRedeemNeverExceedsMaxUsages(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	limit := int64(3)
	created := f.percentCoupon(t, "RACE", &limit)
	now := time.Now().UTC()

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.db.Transaction(func(tx *gorm.DB) error {
				_, err := f.svc.Redeem(ctx, tx, coupondomain.RedeemRequest{
					CouponID: created.ID, OrderID: f.node.Generate(), Amount: decimal.RequireFromString("1"), Now: now,
				})
				return err
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	assert.Equal(t, int64(3), usageCount(t, f.db, created.ID))

	var redemptions int64
	require.NoError(t, f.db.Raw(`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = ?`, created.ID).Scan(&redemptions).Error)
	assert.Equal(t, int64(3), redemptions)
}

func TestUpdatePatchesLimitsOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	one := int64(1)
	created := f.percentCoupon(t, "SAVE10", &one)

	inactive := false
	updated, err := f.svc.Update(ctx, created.ID.String(), coupondomain.Patch{IsActive: &inactive, ClearMaxUsages: true})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Nil(t, updated.MaxUsages)
	require.NotNil(t, updated.Percentage)

	_, err = f.svc.Check(ctx, coupondomain.CheckRequest{Codes: []string{"SAVE10"}})
	assert.ErrorIs(t, err, coupondomain.ErrRejected)
}
