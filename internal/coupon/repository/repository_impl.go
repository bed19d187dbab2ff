package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	"gorm.io/gorm"
)

const couponColumns = `id, code, type, value, percentage, resource_key, resource_quantity,
	duration_days, max_usages, usage_count, per_user_limit, term_id, is_active,
	starts_at, expires_at, created_at, updated_at`

type repo struct{}

func Provide() coupondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, c *coupondomain.Coupon) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO coupons (`+couponColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Code,
		c.Type,
		c.Value,
		c.Percentage,
		c.ResourceKey,
		c.ResourceQuantity,
		c.DurationDays,
		c.MaxUsages,
		c.UsageCount,
		c.PerUserLimit,
		c.TermID,
		c.IsActive,
		c.StartsAt,
		c.ExpiresAt,
		c.CreatedAt,
		c.UpdatedAt,
	).Error
}

// Update never touches usage_count; that column moves only through IncrementUsage.
func (r *repo) Update(ctx context.Context, db *gorm.DB, c *coupondomain.Coupon) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE coupons
		SET is_active = ?, max_usages = ?, per_user_limit = ?, starts_at = ?, expires_at = ?, updated_at = ?
		WHERE id = ?`,
		c.IsActive,
		c.MaxUsages,
		c.PerUserLimit,
		c.StartsAt,
		c.ExpiresAt,
		c.UpdatedAt,
		c.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return coupondomain.ErrNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coupondomain.Coupon, error) {
	return r.findOne(ctx, db, `SELECT `+couponColumns+` FROM coupons WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*coupondomain.Coupon, error) {
	return r.findOne(ctx, db, `SELECT `+couponColumns+` FROM coupons WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*coupondomain.Coupon, error) {
	var c coupondomain.Coupon
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&c).Error; err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *repo) FindByCodes(ctx context.Context, db *gorm.DB, codes []string) ([]coupondomain.Coupon, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var items []coupondomain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT `+couponColumns+` FROM coupons WHERE code IN ?`,
		codes,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]coupondomain.Coupon, error) {
	var items []coupondomain.Coupon
	err := db.WithContext(ctx).Raw(
		`SELECT ` + couponColumns + ` FROM coupons ORDER BY created_at DESC, id DESC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) IncrementUsage(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE coupons
		SET usage_count = usage_count + 1
		WHERE id = ? AND (max_usages IS NULL OR usage_count < max_usages)`,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CountUserRedemptions(ctx context.Context, db *gorm.DB, couponID, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = ? AND user_id = ?`,
		couponID,
		userID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, red *coupondomain.Redemption) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO coupon_redemptions (id, coupon_id, user_id, order_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (coupon_id, order_id) DO NOTHING`,
		red.ID,
		red.CouponID,
		red.UserID,
		red.OrderID,
		red.Amount,
		red.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListRedemptionsByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]coupondomain.Redemption, error) {
	var items []coupondomain.Redemption
	err := db.WithContext(ctx).Raw(
		`SELECT id, coupon_id, user_id, order_id, amount, created_at
		FROM coupon_redemptions WHERE order_id = ? ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
