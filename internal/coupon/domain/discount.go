package domain

import "github.com/shopspring/decimal"

// Discount is the type-specific payload of a coupon.
// The set of implementations is closed; see ApplyDiscount.
type Discount interface {
	Type() CouponType
	isDiscount()
}

type AmountOff struct {
	Value decimal.Decimal
}

type PercentOff struct {
	Percentage decimal.Decimal
}

// FreeUnits waives up to Quantity units of a resource already in the quote.
type FreeUnits struct {
	ResourceKey string
	Quantity    int64
}

// FreeDays zeroes the charge for Days out of the term's duration.
type FreeDays struct {
	Days int32
}

func (AmountOff) Type() CouponType  { return CouponTypeAmount }
func (PercentOff) Type() CouponType { return CouponTypePercentage }
func (FreeUnits) Type() CouponType  { return CouponTypeResource }
func (FreeDays) Type() CouponType   { return CouponTypeDuration }

func (AmountOff) isDiscount()  {}
func (PercentOff) isDiscount() {}
func (FreeUnits) isDiscount()  {}
func (FreeDays) isDiscount()   {}

// Discount converts the nullable payload columns into the typed variant.
func (c Coupon) Discount() (Discount, error) {
	hasValue := c.Value.Valid
	hasPercentage := c.Percentage.Valid
	hasResource := c.ResourceKey != nil || c.ResourceQuantity != nil
	hasDuration := c.DurationDays != nil

	switch c.Type {
	case CouponTypeAmount:
		if !hasValue || hasPercentage || hasResource || hasDuration || !c.Value.Decimal.IsPositive() {
			return nil, ErrInvalidPayload
		}
		return AmountOff{Value: c.Value.Decimal}, nil
	case CouponTypePercentage:
		if !hasPercentage || hasValue || hasResource || hasDuration {
			return nil, ErrInvalidPayload
		}
		p := c.Percentage.Decimal
		if !p.IsPositive() || p.GreaterThan(decimal.NewFromInt(100)) {
			return nil, ErrInvalidPayload
		}
		return PercentOff{Percentage: p}, nil
	case CouponTypeResource:
		if c.ResourceKey == nil || c.ResourceQuantity == nil || hasValue || hasPercentage || hasDuration {
			return nil, ErrInvalidPayload
		}
		if *c.ResourceKey == "" || *c.ResourceQuantity <= 0 {
			return nil, ErrInvalidPayload
		}
		return FreeUnits{ResourceKey: *c.ResourceKey, Quantity: *c.ResourceQuantity}, nil
	case CouponTypeDuration:
		if !hasDuration || hasValue || hasPercentage || hasResource || *c.DurationDays <= 0 {
			return nil, ErrInvalidPayload
		}
		return FreeDays{Days: *c.DurationDays}, nil
	default:
		return nil, ErrInvalidType
	}
}

// QuoteLine is one priced resource of a running quote, before the term multiplier.
type QuoteLine struct {
	ResourceKey string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// RunningQuote is the state a coupon is applied against.
type RunningQuote struct {
	Lines      []QuoteLine
	Multiplier decimal.Decimal
	TermDays   int
	Total      decimal.Decimal
}

func (q RunningQuote) clone() RunningQuote {
	lines := make([]QuoteLine, len(q.Lines))
	copy(lines, q.Lines)
	q.Lines = lines
	return q
}

// ApplyDiscount applies one coupon payload to q and returns the new quote with
// the amount actually taken off. The amount never exceeds the running total.
func ApplyDiscount(d Discount, q RunningQuote) (RunningQuote, decimal.Decimal) {
	next := q.clone()
	if !next.Total.IsPositive() {
		next.Total = decimal.Zero
		return next, decimal.Zero
	}

	var amount decimal.Decimal
	switch discount := d.(type) {
	case AmountOff:
		amount = discount.Value
	case PercentOff:
		amount = next.Total.Mul(discount.Percentage).Div(decimal.NewFromInt(100))
	case FreeUnits:
		for i := range next.Lines {
			line := &next.Lines[i]
			if line.ResourceKey != discount.ResourceKey {
				continue
			}
			units := discount.Quantity
			if line.Quantity < units {
				units = line.Quantity
			}
			waived := line.UnitPrice.Mul(decimal.NewFromInt(units))
			if waived.GreaterThan(line.Total) {
				waived = line.Total
			}
			line.Total = line.Total.Sub(waived)
			amount = waived.Mul(next.Multiplier)
			break
		}
	case FreeDays:
		base := next.TermDays
		if base <= 0 {
			return next, decimal.Zero
		}
		days := int(discount.Days)
		if days > base {
			days = base
		}
		amount = next.Total.Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(base)))
	default:
		return next, decimal.Zero
	}

	if amount.IsNegative() {
		amount = decimal.Zero
	}
	if amount.GreaterThan(next.Total) {
		amount = next.Total
	}
	next.Total = next.Total.Sub(amount)
	return next, amount
}
