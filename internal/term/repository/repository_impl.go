package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"gorm.io/gorm"
)

const termColumns = `id, slug, name, duration_days, multiplier, active, is_default, created_at, updated_at`

type repo struct{}

func Provide() termdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *termdomain.Term) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO terms (`+termColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Slug,
		t.Name,
		t.DurationDays,
		t.Multiplier,
		t.Active,
		t.IsDefault,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, t *termdomain.Term) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE terms SET name = ?, duration_days = ?, multiplier = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		t.Name,
		t.DurationDays,
		t.Multiplier,
		t.Active,
		t.UpdatedAt,
		t.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return termdomain.ErrNotFound
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*termdomain.Term, error) {
	return r.findOne(ctx, db, `SELECT `+termColumns+` FROM terms WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*termdomain.Term, error) {
	return r.findOne(ctx, db, `SELECT `+termColumns+` FROM terms WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*termdomain.Term, error) {
	return r.findOne(ctx, db, `SELECT `+termColumns+` FROM terms WHERE slug = ?`, slug)
}

func (r *repo) FindDefault(ctx context.Context, db *gorm.DB) (*termdomain.Term, error) {
	return r.findOne(ctx, db, `SELECT `+termColumns+` FROM terms WHERE is_default = ? LIMIT 1`, true)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*termdomain.Term, error) {
	var t termdomain.Term
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]termdomain.Term, error) {
	var items []termdomain.Term
	err := db.WithContext(ctx).Raw(
		`SELECT ` + termColumns + ` FROM terms ORDER BY duration_days ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ClearDefaults(ctx context.Context, db *gorm.DB, keepID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE terms SET is_default = ?, updated_at = ? WHERE is_default = ? AND id <> ?`,
		false,
		now,
		true,
		keepID,
	).Error
}

func (r *repo) MarkDefault(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE terms SET is_default = ?, updated_at = ? WHERE id = ?`,
		true,
		now,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return termdomain.ErrNotFound
	}
	return nil
}
