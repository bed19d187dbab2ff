package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks

type Status string

const (
	// StatusCapturable means funds are authorized and waiting for capture.
	StatusCapturable Status = "capturable"
	StatusCaptured   Status = "captured"
	StatusPending    Status = "pending"
	StatusCanceled   Status = "canceled"
)

type Transaction struct {
	Provider     string
	Reference    string
	ClientSecret string
	Status       Status
	// Amount is in the currency's minor unit.
	Amount   int64
	Currency string
}

type CreateRequest struct {
	OrderID        snowflake.ID
	UserID         snowflake.ID
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

// Gateway is a payment provider supporting authorize-then-capture.
type Gateway interface {
	Provider() string
	CreateTransaction(ctx context.Context, req CreateRequest) (*Transaction, error)
	Retrieve(ctx context.Context, reference string) (*Transaction, error)
	Capture(ctx context.Context, reference string) (*Transaction, error)
}

type AdapterConfig struct {
	APIKey     string
	AccountID  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}

var (
	ErrProviderNotFound    = errors.New("payment_provider_not_found")
	ErrInvalidConfig       = errors.New("invalid_payment_provider_config")
	ErrInvalidAmount       = errors.New("invalid_payment_amount")
	ErrTransactionNotFound = errors.New("payment_transaction_not_found")
	ErrGateway             = errors.New("payment_gateway_error")
)
