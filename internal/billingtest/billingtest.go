// Package billingtest wires the catalog services onto an in-memory database
// for tests of the packages built on top of them.
package billingtest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	couponrepository "github.com/smallbiznis/panelbilling/internal/coupon/repository"
	couponservice "github.com/smallbiznis/panelbilling/internal/coupon/service"
	"github.com/smallbiznis/panelbilling/internal/dbtest"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	resourcerepository "github.com/smallbiznis/panelbilling/internal/resource/repository"
	resourceservice "github.com/smallbiznis/panelbilling/internal/resource/service"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	termrepository "github.com/smallbiznis/panelbilling/internal/term/repository"
	termservice "github.com/smallbiznis/panelbilling/internal/term/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Catalog struct {
	DB         *gorm.DB
	Node       *snowflake.Node
	Log        *zap.Logger
	Resources  resourcedomain.Service
	Terms      termdomain.Service
	Coupons    coupondomain.Service
	CouponRepo coupondomain.Repository
}

func New(t testing.TB) *Catalog {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	db := dbtest.Open(t)
	log := zap.NewNop()

	termRepo := termrepository.Provide()
	couponRepo := couponrepository.Provide()
	return &Catalog{
		DB:   db,
		Node: node,
		Log:  log,
		Resources: resourceservice.New(resourceservice.Params{
			DB: db, Log: log, GenID: node, Repo: resourcerepository.Provide(),
		}),
		Terms: termservice.New(termservice.Params{
			DB: db, Log: log, GenID: node, Repo: termRepo,
		}),
		Coupons: couponservice.New(couponservice.Params{
			DB: db, Log: log, GenID: node, Repo: couponRepo, TermRepo: termRepo,
		}),
		CouponRepo: couponRepo,
	}
}

// Resource creates a visible USD resource with step 1 and no bounds.
func (c *Catalog) Resource(t testing.TB, key, unitPrice string, metered bool) *resourcedomain.Response {
	t.Helper()
	resp, err := c.Resources.Create(context.Background(), resourcedomain.CreateRequest{
		Key:       key,
		Name:      key,
		UnitPrice: decimal.RequireFromString(unitPrice),
		Currency:  "USD",
		Step:      1,
		Metered:   metered,
	})
	require.NoError(t, err)
	return resp
}

func (c *Catalog) ScalingRule(t testing.TB, resourceID snowflake.ID, threshold int64, mode resourcedomain.ScalingMode, factor string) {
	t.Helper()
	_, err := c.Resources.AddScalingRule(context.Background(), resourceID.String(), resourcedomain.CreateScalingRuleRequest{
		Threshold: threshold,
		Mode:      mode,
		Factor:    decimal.RequireFromString(factor),
	})
	require.NoError(t, err)
}

func (c *Catalog) Term(t testing.TB, name string, days int32, multiplier string, isDefault bool) *termdomain.Response {
	t.Helper()
	resp, err := c.Terms.Create(context.Background(), termdomain.CreateRequest{
		Name:         name,
		DurationDays: days,
		Multiplier:   decimal.RequireFromString(multiplier),
		IsDefault:    isDefault,
	})
	require.NoError(t, err)
	return resp
}

func (c *Catalog) PercentCoupon(t testing.TB, code, percentage string, maxUsages *int64) *coupondomain.Response {
	t.Helper()
	p := decimal.RequireFromString(percentage)
	resp, err := c.Coupons.Create(context.Background(), coupondomain.CreateRequest{
		Code:       code,
		Type:       coupondomain.CouponTypePercentage,
		Percentage: &p,
		MaxUsages:  maxUsages,
	})
	require.NoError(t, err)
	return resp
}

func (c *Catalog) AmountCoupon(t testing.TB, code, value string) *coupondomain.Response {
	t.Helper()
	v := decimal.RequireFromString(value)
	resp, err := c.Coupons.Create(context.Background(), coupondomain.CreateRequest{
		Code:  code,
		Type:  coupondomain.CouponTypeAmount,
		Value: &v,
	})
	require.NoError(t, err)
	return resp
}

// InsertNode adds a row to the nodes table, which this service only reads.
func (c *Catalog) InsertNode(t testing.TB, name string, deployable, deployableFree bool, freeAllocations int64) snowflake.ID {
	t.Helper()
	id := c.Node.Generate()
	require.NoError(t, c.DB.Exec(
		`INSERT INTO nodes (id, name, deployable, deployable_free, free_allocations, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, deployable, deployableFree, freeAllocations, time.Now().UTC(),
	).Error)
	return id
}
