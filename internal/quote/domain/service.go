package domain

import (
	"context"
	"errors"
)

type Service interface {
	// CalculateQuote prices a selection. It is read-only and never consumes coupon usage.
	CalculateQuote(ctx context.Context, req Request) (*Result, error)
}

var (
	ErrEmptySelection    = errors.New("empty_selection")
	ErrInvalidResource   = errors.New("invalid_resource")
	ErrUnknownResource   = errors.New("unknown_resource")
	ErrDuplicateResource = errors.New("duplicate_resource")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrInvalidCurrency   = errors.New("invalid_currency")
)
