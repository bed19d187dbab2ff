package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type ScalingMode string

const (
	ScalingModeMultiplier ScalingMode = "multiplier"
	ScalingModeSurcharge  ScalingMode = "surcharge"
)

type Resource struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	Key             string          `json:"key" gorm:"column:resource_key;type:text;not null"`
	Name            string          `json:"name" gorm:"type:text;not null"`
	Description     string          `json:"description" gorm:"type:text"`
	UnitPrice       decimal.Decimal `json:"unit_price" gorm:"type:numeric;not null"`
	Currency        string          `json:"currency" gorm:"type:text;not null"`
	MinQuantity     int64           `json:"min_quantity" gorm:"not null;default:0"`
	MaxQuantity     *int64          `json:"max_quantity,omitempty"`
	DefaultQuantity int64           `json:"default_quantity" gorm:"not null;default:0"`
	Step            int64           `json:"step" gorm:"not null;default:1"`
	Visible         bool            `json:"visible" gorm:"not null;default:true"`
	Metered         bool            `json:"metered" gorm:"not null;default:false"`
	SortOrder       int32           `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Resource) TableName() string { return "resources" }

type ScalingRule struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	ResourceID snowflake.ID    `json:"resource_id" gorm:"column:resource_id;not null;index"`
	Threshold  int64           `json:"threshold" gorm:"not null"`
	Mode       ScalingMode     `json:"mode" gorm:"type:text;not null"`
	Factor     decimal.Decimal `json:"factor" gorm:"type:numeric;not null"`
	Label      string          `json:"label" gorm:"type:text"`
	CreatedAt  time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ScalingRule) TableName() string { return "scaling_rules" }

// PricedResource is a visible resource with its scaling ladder, ordered by threshold.
type PricedResource struct {
	Resource Resource
	Rules    []ScalingRule
}
