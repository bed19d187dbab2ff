package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
)

type Service interface {
	// Settle reconciles the gateway transaction behind reference with its
	// order, provisions the server and finalizes the order. Retrying after
	// any error is safe.
	Settle(ctx context.Context, reference string, userID snowflake.ID) (*orderdomain.Settlement, error)
}

// Failure reasons persisted on FAILED orders.
const (
	ReasonNotCapturable  = "payment_not_capturable"
	ReasonAmountMismatch = "payment_amount_mismatch"
	ReasonCaptureFailed  = "payment_capture_failed"
	ReasonCouponRejected = "coupon_rejected"
	ReasonAbandoned      = "payment_abandoned"
)

var (
	ErrInvalidReference   = errors.New("invalid_payment_reference")
	ErrAlreadyProcessed   = errors.New("already_processed")
	ErrOrderFailed        = errors.New("order_failed")
	ErrPaymentNotCaptured = errors.New("payment_not_captured")
	ErrProvisioningFailed = errors.New("provisioning_failed")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrSettlementTimeout  = errors.New("settlement_timeout")
)
