package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
)

type Service interface {
	// Checkout prices the request, gates the node and opens a PENDING order.
	// Paid orders get a gateway transaction; free orders are settled at once.
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	Get(ctx context.Context, id string, userID snowflake.ID) (*Response, error)
}

// Settler finalizes an order by payment reference.
type Settler interface {
	Settle(ctx context.Context, reference string, userID snowflake.ID) (*Settlement, error)
}

type CheckoutRequest struct {
	quotedomain.Request

	UserID     snowflake.ID      `json:"-"`
	NodeID     string            `json:"node_id"`
	Type       Type              `json:"type"`
	ServerID   string            `json:"server_id"`
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	Storefront string            `json:"storefront"`
	Variables  map[string]string `json:"variables"`
}

type CheckoutResponse struct {
	Order           Response             `json:"order"`
	Quote           quotedomain.Response `json:"quote"`
	RequiresPayment bool                 `json:"requires_payment"`
	ClientSecret    string               `json:"client_secret,omitempty"`
	Settlement      *Settlement          `json:"settlement,omitempty"`
}

type Settlement struct {
	OrderID          snowflake.ID `json:"order_id"`
	Status           Status       `json:"status"`
	Name             string       `json:"name"`
	ServerID         string       `json:"server_id"`
	ServerIdentifier string       `json:"server_identifier"`
}

type Response struct {
	ID               snowflake.ID               `json:"id"`
	Name             string                     `json:"name"`
	Status           Status                     `json:"status"`
	Type             Type                       `json:"type"`
	PaymentReference *string                    `json:"payment_reference,omitempty"`
	ServerID         *string                    `json:"server_id,omitempty"`
	NodeID           snowflake.ID               `json:"node_id"`
	TermID           *snowflake.ID              `json:"term_id,omitempty"`
	Currency         string                     `json:"currency"`
	Total            decimal.Decimal            `json:"total"`
	DeploymentType   quotedomain.DeploymentType `json:"deployment_type"`
	FailureReason    *string                    `json:"failure_reason,omitempty"`
	ProcessedAt      *time.Time                 `json:"processed_at,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

var (
	ErrInvalidType    = errors.New("invalid_order_type")
	ErrInvalidName    = errors.New("invalid_order_name")
	ErrInvalidServer  = errors.New("invalid_server_id")
	ErrInvalidNode    = errors.New("invalid_node_id")
	ErrInvalidProduct = errors.New("invalid_product_id")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidID      = errors.New("invalid_id")
	ErrRateLimited    = errors.New("rate_limited")
	ErrPaymentSetup   = errors.New("payment_setup_failed")
	ErrNotFound       = errors.New("order_not_found")
)
