package domain

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
)

type DeploymentType string

const (
	DeploymentTypeFree    DeploymentType = "free"
	DeploymentTypeMetered DeploymentType = "metered"
	DeploymentTypePaid    DeploymentType = "paid"
)

type Selection struct {
	Resource string `json:"resource"`
	Quantity int64  `json:"quantity"`
}

type Options struct {
	SnapToStep *bool `json:"snapToStep,omitempty"`
}

type Request struct {
	Resources []Selection `json:"resources"`
	Term      string      `json:"term,omitempty"`
	Coupons   []string    `json:"coupons,omitempty"`
	Options   *Options    `json:"options,omitempty"`
	Currency  string      `json:"currency,omitempty"`

	// UserID enables per-user coupon limits; quotes for anonymous visitors skip them.
	UserID *snowflake.ID `json:"-"`
}

// Line is one priced resource. Totals are before the term multiplier.
type Line struct {
	Key       string          `json:"-"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
	Metered   bool            `json:"-"`
}

type Quote struct {
	Resources          map[string]Line `json:"resources"`
	Currency           string          `json:"currency"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Multiplier         decimal.Decimal `json:"multiplier"`
	Discount           decimal.Decimal `json:"discount"`
	Total              decimal.Decimal `json:"total"`
	TotalAfterDiscount decimal.Decimal `json:"total_after_discount"`
	DeploymentType     DeploymentType  `json:"deployment_type"`
	TermID             *snowflake.ID   `json:"term_id,omitempty"`
	TermDays           int             `json:"term_days"`
}

type AppliedCoupon struct {
	ID               snowflake.ID            `json:"-"`
	Code             string                  `json:"code"`
	Type             coupondomain.CouponType `json:"type"`
	Value            *decimal.Decimal        `json:"value,omitempty"`
	Percentage       *decimal.Decimal        `json:"percentage,omitempty"`
	ResourceKey      *string                 `json:"resource,omitempty"`
	ResourceQuantity *int64                  `json:"resource_quantity,omitempty"`
	DurationDays     *int32                  `json:"duration_days,omitempty"`
	Discount         decimal.Decimal         `json:"discount"`
}

type Response struct {
	Quote   Quote           `json:"quote"`
	Coupons []AppliedCoupon `json:"coupons"`
}

// Result is a computed quote together with what checkout needs to persist it.
type Result struct {
	Quote   Quote
	Lines   []Line
	Coupons []AppliedCoupon
	Term    *termdomain.Term
}

func (r *Result) Response() Response {
	coupons := r.Coupons
	if coupons == nil {
		coupons = []AppliedCoupon{}
	}
	return Response{Quote: r.Quote, Coupons: coupons}
}

// HasMetered reports whether any priced line bills by usage.
func (r *Result) HasMetered() bool {
	for _, line := range r.Lines {
		if line.Metered {
			return true
		}
	}
	return false
}
