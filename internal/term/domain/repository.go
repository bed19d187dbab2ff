package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, term *Term) error
	Update(ctx context.Context, db *gorm.DB, term *Term) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Term, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Term, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Term, error)
	FindDefault(ctx context.Context, db *gorm.DB) (*Term, error)
	List(ctx context.Context, db *gorm.DB) ([]Term, error)

	// ClearDefaults demotes every default term except keepID (zero clears all).
	ClearDefaults(ctx context.Context, db *gorm.DB, keepID snowflake.ID, now time.Time) error
	MarkDefault(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}
