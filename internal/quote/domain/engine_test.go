package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, DeploymentTypeFree, Classify(decimal.Zero, true))
	assert.Equal(t, DeploymentTypeFree, Classify(decimal.NewFromInt(-1), false))
	assert.Equal(t, DeploymentTypeMetered, Classify(decimal.NewFromInt(1), true))
	assert.Equal(t, DeploymentTypePaid, Classify(decimal.NewFromInt(1), false))
}

func TestApplyCouponsNeverGoesNegative(t *testing.T) {
	running := coupondomain.RunningQuote{
		Lines: []coupondomain.QuoteLine{{
			ResourceKey: "cpu", Quantity: 10, UnitPrice: decimal.NewFromInt(1), Total: decimal.NewFromInt(10),
		}},
		Multiplier: decimal.NewFromInt(1),
		TermDays:   30,
		Total:      decimal.NewFromInt(10),
	}
	big := decimal.NewFromInt(7)
	coupons := []coupondomain.Coupon{
		{Code: "A", Type: coupondomain.CouponTypeAmount, Value: decimal.NewNullDecimal(big)},
		{Code: "B", Type: coupondomain.CouponTypeAmount, Value: decimal.NewNullDecimal(big)},
	}

	out, applied, discount, err := ApplyCoupons(running, coupons)
	require.NoError(t, err)
	assert.True(t, out.Total.IsZero())
	assert.True(t, discount.Equal(decimal.NewFromInt(10)))
	require.Len(t, applied, 2)
	assert.True(t, applied[1].Discount.Equal(decimal.NewFromInt(3)))
	assert.True(t, running.Total.Equal(decimal.NewFromInt(10)), "input quote is not mutated")
}

func TestApplyCouponsOrderMatters(t *testing.T) {
	running := coupondomain.RunningQuote{Multiplier: decimal.NewFromInt(1), TermDays: 30, Total: decimal.NewFromInt(100)}
	percent := coupondomain.Coupon{Code: "P", Type: coupondomain.CouponTypePercentage, Percentage: decimal.NewNullDecimal(decimal.NewFromInt(50))}
	amount := coupondomain.Coupon{Code: "A", Type: coupondomain.CouponTypeAmount, Value: decimal.NewNullDecimal(decimal.NewFromInt(20))}

	first, _, _, err := ApplyCoupons(running, []coupondomain.Coupon{percent, amount})
	require.NoError(t, err)
	second, _, _, err := ApplyCoupons(running, []coupondomain.Coupon{amount, percent})
	require.NoError(t, err)
	assert.True(t, first.Total.Equal(decimal.NewFromInt(30)))
	assert.True(t, second.Total.Equal(decimal.NewFromInt(40)))
}

func TestApplyCouponsRejectsMalformedPayload(t *testing.T) {
	running := coupondomain.RunningQuote{Multiplier: decimal.NewFromInt(1), Total: decimal.NewFromInt(1)}
	bad := coupondomain.Coupon{
		Code: "X", Type: coupondomain.CouponTypeAmount,
		Value:      decimal.NewNullDecimal(decimal.NewFromInt(1)),
		Percentage: decimal.NewNullDecimal(decimal.NewFromInt(1)),
	}
	_, _, _, err := ApplyCoupons(running, []coupondomain.Coupon{bad})
	assert.ErrorIs(t, err, coupondomain.ErrInvalidPayload)
}
