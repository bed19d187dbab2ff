package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, id string, patch Patch) (*Response, error)
	List(ctx context.Context) ([]Response, error)

	// Check resolves codes in request order (deduplicated, case-insensitive) and
	// validates each one without consuming usage.
	Check(ctx context.Context, req CheckRequest) ([]Coupon, error)

	// Redeem consumes one use of a coupon for an order. It must run inside the
	// settlement transaction passed as tx.
	Redeem(ctx context.Context, tx *gorm.DB, req RedeemRequest) (*Redemption, error)
}

type CheckRequest struct {
	Codes  []string
	UserID *snowflake.ID
	TermID *snowflake.ID
	Now    time.Time
}

type RedeemRequest struct {
	CouponID snowflake.ID
	OrderID  snowflake.ID
	UserID   *snowflake.ID
	TermID   *snowflake.ID
	Amount   decimal.Decimal
	Now      time.Time
}

type CreateRequest struct {
	Code             string           `json:"code"`
	Type             CouponType       `json:"type"`
	Value            *decimal.Decimal `json:"value"`
	Percentage       *decimal.Decimal `json:"percentage"`
	ResourceKey      *string          `json:"resource_key"`
	ResourceQuantity *int64           `json:"resource_quantity"`
	DurationDays     *int32           `json:"duration_days"`
	MaxUsages        *int64           `json:"max_usages"`
	PerUserLimit     *int64           `json:"per_user_limit"`
	TermID           string           `json:"term_id"`
	IsActive         *bool            `json:"is_active"`
	StartsAt         *time.Time       `json:"starts_at"`
	ExpiresAt        *time.Time       `json:"expires_at"`
}

// Patch updates the eligibility window and limits; the discount payload is immutable.
type Patch struct {
	IsActive          *bool      `json:"is_active"`
	MaxUsages         *int64     `json:"max_usages"`
	ClearMaxUsages    bool       `json:"clear_max_usages"`
	PerUserLimit      *int64     `json:"per_user_limit"`
	ClearPerUserLimit bool       `json:"clear_per_user_limit"`
	StartsAt          *time.Time `json:"starts_at"`
	ExpiresAt         *time.Time `json:"expires_at"`
	ClearExpiresAt    bool       `json:"clear_expires_at"`
}

type Response struct {
	ID               snowflake.ID     `json:"id"`
	Code             string           `json:"code"`
	Type             CouponType       `json:"type"`
	Value            *decimal.Decimal `json:"value,omitempty"`
	Percentage       *decimal.Decimal `json:"percentage,omitempty"`
	ResourceKey      *string          `json:"resource_key,omitempty"`
	ResourceQuantity *int64           `json:"resource_quantity,omitempty"`
	DurationDays     *int32           `json:"duration_days,omitempty"`
	MaxUsages        *int64           `json:"max_usages,omitempty"`
	UsageCount       int64            `json:"usage_count"`
	PerUserLimit     *int64           `json:"per_user_limit,omitempty"`
	TermID           *snowflake.ID    `json:"term_id,omitempty"`
	IsActive         bool             `json:"is_active"`
	StartsAt         *time.Time       `json:"starts_at,omitempty"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

var (
	ErrInvalidCode     = errors.New("invalid_coupon_code")
	ErrInvalidType     = errors.New("invalid_coupon_type")
	ErrInvalidPayload  = errors.New("invalid_coupon_payload")
	ErrInvalidLimit    = errors.New("invalid_coupon_limit")
	ErrInvalidWindow   = errors.New("invalid_coupon_window")
	ErrInvalidTerm     = errors.New("invalid_coupon_term")
	ErrInvalidID       = errors.New("invalid_id")
	ErrDuplicateCode   = errors.New("coupon_already_exists")
	ErrAlreadyRedeemed = errors.New("coupon_already_redeemed")
	ErrRejected        = errors.New("coupon_rejected")
	ErrNotFound        = errors.New("coupon_not_found")
)
