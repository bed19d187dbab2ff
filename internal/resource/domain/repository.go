package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, resource *Resource) error
	Update(ctx context.Context, db *gorm.DB, resource *Resource) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resource, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resource, error)
	FindVisibleByKeys(ctx context.Context, db *gorm.DB, currency string, keys []string) ([]Resource, error)
	List(ctx context.Context, db *gorm.DB, currency string) ([]Resource, error)

	InsertScalingRule(ctx context.Context, db *gorm.DB, rule *ScalingRule) (bool, error)
	ListScalingRules(ctx context.Context, db *gorm.DB, resourceIDs []snowflake.ID) ([]ScalingRule, error)
}
