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
	List(ctx context.Context) ([]Response, error)

	DefaultTerm(ctx context.Context) (*Term, error)
	// TermByIdentifier resolves a term by snowflake id or slug.
	TermByIdentifier(ctx context.Context, identifier string) (*Term, error)
	// PromoteDefault makes id the only default term; an empty id clears the default.
	PromoteDefault(ctx context.Context, id string) (*Response, error)
}

type CreateRequest struct {
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	DurationDays int32           `json:"duration_days"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Active       *bool           `json:"active"`
	IsDefault    bool            `json:"is_default"`
}

type Patch struct {
	Name         *string          `json:"name"`
	DurationDays *int32           `json:"duration_days"`
	Multiplier   *decimal.Decimal `json:"multiplier"`
	Active       *bool            `json:"active"`
}

type Response struct {
	ID           snowflake.ID    `json:"id"`
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	DurationDays int32           `json:"duration_days"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Active       bool            `json:"active"`
	IsDefault    bool            `json:"is_default"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

var (
	ErrInvalidName       = errors.New("invalid_term_name")
	ErrInvalidSlug       = errors.New("invalid_term_slug")
	ErrInvalidDuration   = errors.New("invalid_duration_days")
	ErrInvalidMultiplier = errors.New("invalid_multiplier")
	ErrInvalidID         = errors.New("invalid_id")
	ErrDuplicateSlug     = errors.New("term_already_exists")
	ErrInactive          = errors.New("term_inactive")
	ErrNotFound          = errors.New("term_not_found")
)
