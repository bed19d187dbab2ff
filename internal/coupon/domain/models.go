package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypeAmount     CouponType = "amount"
	CouponTypePercentage CouponType = "percentage"
	CouponTypeResource   CouponType = "resource"
	CouponTypeDuration   CouponType = "duration"
)

// Coupon is the persisted row. Exactly one payload column is set, matching Type;
// use Discount to obtain the typed payload.
type Coupon struct {
	ID               snowflake.ID        `json:"id" gorm:"primaryKey"`
	Code             string              `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Type             CouponType          `json:"type" gorm:"type:text;not null"`
	Value            decimal.NullDecimal `json:"value" gorm:"type:numeric"`
	Percentage       decimal.NullDecimal `json:"percentage" gorm:"type:numeric"`
	ResourceKey      *string             `json:"resource_key,omitempty" gorm:"type:text"`
	ResourceQuantity *int64              `json:"resource_quantity,omitempty"`
	DurationDays     *int32              `json:"duration_days,omitempty"`
	MaxUsages        *int64              `json:"max_usages,omitempty"`
	UsageCount       int64               `json:"usage_count" gorm:"not null;default:0"`
	PerUserLimit     *int64              `json:"per_user_limit,omitempty"`
	TermID           *snowflake.ID       `json:"term_id,omitempty"`
	IsActive         bool                `json:"is_active" gorm:"not null;default:true"`
	StartsAt         *time.Time          `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time          `json:"expires_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time           `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Coupon) TableName() string { return "coupons" }

type Redemption struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	CouponID  snowflake.ID    `json:"coupon_id" gorm:"not null;index"`
	UserID    *snowflake.ID   `json:"user_id,omitempty"`
	OrderID   snowflake.ID    `json:"order_id" gorm:"not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Redemption) TableName() string { return "coupon_redemptions" }
