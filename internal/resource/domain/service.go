package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, id string, patch Patch) (*Response, error)
	List(ctx context.Context, currency string) ([]Response, error)
	AddScalingRule(ctx context.Context, resourceID string, req CreateScalingRuleRequest) (*ScalingRuleResponse, error)

	// Catalog loads visible resources and their ladders keyed by resource key.
	// Keys missing from the result are unknown or hidden.
	Catalog(ctx context.Context, currency string, keys []string) (map[string]PricedResource, error)
	ResolveUnitPrice(ctx context.Context, key, currency string, quantity int64) (decimal.Decimal, error)
}

type CreateRequest struct {
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Currency        string          `json:"currency"`
	MinQuantity     int64           `json:"min_quantity"`
	MaxQuantity     *int64          `json:"max_quantity"`
	DefaultQuantity int64           `json:"default_quantity"`
	Step            int64           `json:"step"`
	Visible         *bool           `json:"visible"`
	Metered         bool            `json:"metered"`
	SortOrder       int32           `json:"sort_order"`
}

// Patch carries only the attributes present in an update request.
type Patch struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	UnitPrice        *decimal.Decimal `json:"unit_price"`
	MinQuantity      *int64           `json:"min_quantity"`
	MaxQuantity      *int64           `json:"max_quantity"`
	ClearMaxQuantity bool             `json:"clear_max_quantity"`
	DefaultQuantity  *int64           `json:"default_quantity"`
	Step             *int64           `json:"step"`
	Visible          *bool            `json:"visible"`
	Metered          *bool            `json:"metered"`
	SortOrder        *int32           `json:"sort_order"`
}

type CreateScalingRuleRequest struct {
	Threshold int64           `json:"threshold"`
	Mode      ScalingMode     `json:"mode"`
	Factor    decimal.Decimal `json:"factor"`
	Label     string          `json:"label"`
}

type Response struct {
	ID              snowflake.ID          `json:"id"`
	Key             string                `json:"key"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	UnitPrice       decimal.Decimal       `json:"unit_price"`
	Currency        string                `json:"currency"`
	MinQuantity     int64                 `json:"min_quantity"`
	MaxQuantity     *int64                `json:"max_quantity,omitempty"`
	DefaultQuantity int64                 `json:"default_quantity"`
	Step            int64                 `json:"step"`
	Visible         bool                  `json:"visible"`
	Metered         bool                  `json:"metered"`
	SortOrder       int32                 `json:"sort_order"`
	ScalingRules    []ScalingRuleResponse `json:"scaling_rules,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

type ScalingRuleResponse struct {
	ID         snowflake.ID    `json:"id"`
	ResourceID snowflake.ID    `json:"resource_id"`
	Threshold  int64           `json:"threshold"`
	Mode       ScalingMode     `json:"mode"`
	Factor     decimal.Decimal `json:"factor"`
	Label      string          `json:"label,omitempty"`
}

var (
	ErrInvalidKey            = errors.New("invalid_resource_key")
	ErrInvalidName           = errors.New("invalid_resource_name")
	ErrInvalidUnitPrice      = errors.New("invalid_unit_price")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidQuantityBounds = errors.New("invalid_quantity_bounds")
	ErrInvalidStep           = errors.New("invalid_step")
	ErrInvalidQuantity       = errors.New("invalid_quantity")
	ErrInvalidThreshold      = errors.New("invalid_threshold")
	ErrInvalidScalingMode    = errors.New("invalid_scaling_mode")
	ErrInvalidFactor         = errors.New("invalid_factor")
	ErrInvalidID             = errors.New("invalid_id")
	ErrDuplicateKey          = errors.New("resource_already_exists")
	ErrDuplicateScalingRule  = errors.New("scaling_rule_already_exists")
	ErrNotFound              = errors.New("resource_not_found")
)
