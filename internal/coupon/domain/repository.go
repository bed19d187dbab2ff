package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	Update(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Coupon, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Coupon, error)
	FindByCodes(ctx context.Context, db *gorm.DB, codes []string) ([]Coupon, error)
	List(ctx context.Context, db *gorm.DB) ([]Coupon, error)

	// IncrementUsage consumes one use only while the limit allows it.
	IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	CountUserRedemptions(ctx context.Context, db *gorm.DB, couponID, userID snowflake.ID) (int64, error)
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) (bool, error)
	ListRedemptionsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]Redemption, error)
}
