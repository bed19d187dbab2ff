package domain

import (
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
)

// ApplyCoupons applies coupons in the given order against the term-adjusted
// quote, returning the per-coupon discounts and the cumulative discount.
func ApplyCoupons(running coupondomain.RunningQuote, coupons []coupondomain.Coupon) (coupondomain.RunningQuote, []AppliedCoupon, decimal.Decimal, error) {
	applied := make([]AppliedCoupon, 0, len(coupons))
	total := decimal.Zero
	for _, coupon := range coupons {
		discount, err := coupon.Discount()
		if err != nil {
			return running, nil, decimal.Zero, err
		}
		var amount decimal.Decimal
		running, amount = coupondomain.ApplyDiscount(discount, running)
		total = total.Add(amount)
		applied = append(applied, describe(coupon, amount))
	}
	return running, applied, total, nil
}

// Classify derives the deployment type from the final total.
func Classify(totalAfterDiscount decimal.Decimal, metered bool) DeploymentType {
	switch {
	case !totalAfterDiscount.IsPositive():
		return DeploymentTypeFree
	case metered:
		return DeploymentTypeMetered
	default:
		return DeploymentTypePaid
	}
}

func describe(c coupondomain.Coupon, amount decimal.Decimal) AppliedCoupon {
	out := AppliedCoupon{
		ID:               c.ID,
		Code:             c.Code,
		Type:             c.Type,
		ResourceKey:      c.ResourceKey,
		ResourceQuantity: c.ResourceQuantity,
		DurationDays:     c.DurationDays,
		Discount:         amount,
	}
	if c.Value.Valid {
		value := c.Value.Decimal
		out.Value = &value
	}
	if c.Percentage.Valid {
		percentage := c.Percentage.Decimal
		out.Percentage = &percentage
	}
	return out
}
