package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	"gorm.io/gorm"
)

const resourceColumns = `id, resource_key, name, description, unit_price, currency,
	min_quantity, max_quantity, default_quantity, step, visible, metered,
	sort_order, created_at, updated_at`

type repo struct{}

func Provide() resourcedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, res *resourcedomain.Resource) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.Key,
		res.Name,
		res.Description,
		res.UnitPrice,
		res.Currency,
		res.MinQuantity,
		res.MaxQuantity,
		res.DefaultQuantity,
		res.Step,
		res.Visible,
		res.Metered,
		res.SortOrder,
		res.CreatedAt,
		res.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, res *resourcedomain.Resource) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE resources
		SET name = ?, description = ?, unit_price = ?, min_quantity = ?,
			max_quantity = ?, default_quantity = ?, step = ?, visible = ?,
			metered = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		res.Name,
		res.Description,
		res.UnitPrice,
		res.MinQuantity,
		res.MaxQuantity,
		res.DefaultQuantity,
		res.Step,
		res.Visible,
		res.Metered,
		res.SortOrder,
		res.UpdatedAt,
		res.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return resourcedomain.ErrNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*resourcedomain.Resource, error) {
	return r.findByID(ctx, db, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*resourcedomain.Resource, error) {
	return r.findByID(ctx, db, id, " FOR UPDATE")
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID, suffix string) (*resourcedomain.Resource, error) {
	var res resourcedomain.Resource
	err := db.WithContext(ctx).Raw(
		`SELECT `+resourceColumns+` FROM resources WHERE id = ?`+suffix,
		id,
	).Scan(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == 0 {
		return nil, nil
	}
	return &res, nil
}

func (r *repo) FindVisibleByKeys(ctx context.Context, db *gorm.DB, currency string, keys []string) ([]resourcedomain.Resource, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var items []resourcedomain.Resource
	err := db.WithContext(ctx).Raw(
		`SELECT `+resourceColumns+`
		FROM resources
		WHERE currency = ? AND visible = ? AND resource_key IN ?`,
		currency,
		true,
		keys,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, currency string) ([]resourcedomain.Resource, error) {
	var items []resourcedomain.Resource
	query := `SELECT ` + resourceColumns + ` FROM resources`
	args := []any{}
	if currency != "" {
		query += ` WHERE currency = ?`
		args = append(args, currency)
	}
	query += ` ORDER BY sort_order ASC, id ASC`
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertScalingRule(ctx context.Context, db *gorm.DB, rule *resourcedomain.ScalingRule) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO scaling_rules (id, resource_id, threshold, mode, factor, label, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (resource_id, threshold) DO NOTHING`,
		rule.ID,
		rule.ResourceID,
		rule.Threshold,
		rule.Mode,
		rule.Factor,
		rule.Label,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListScalingRules(ctx context.Context, db *gorm.DB, resourceIDs []snowflake.ID) ([]resourcedomain.ScalingRule, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	var items []resourcedomain.ScalingRule
	err := db.WithContext(ctx).Raw(
		`SELECT id, resource_id, threshold, mode, factor, label, created_at, updated_at
		FROM scaling_rules
		WHERE resource_id IN ?
		ORDER BY resource_id ASC, threshold ASC, id ASC`,
		resourceIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
