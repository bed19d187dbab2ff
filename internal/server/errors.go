package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	gatewaydomain "github.com/smallbiznis/panelbilling/internal/gateway/domain"
	nodedomain "github.com/smallbiznis/panelbilling/internal/node/domain"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	settlementdomain "github.com/smallbiznis/panelbilling/internal/settlement/domain"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger with the same type and code
// the client receives.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var rejected *coupondomain.RejectedError
	if errors.As(err, &rejected) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "coupon_rejected",
			Code:    string(rejected.Reason),
			Message: "coupon " + rejected.Code + " cannot be applied: " + string(rejected.Reason),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    rootCode(err),
			Message: "conflict",
		}
	case errors.Is(err, settlementdomain.ErrPaymentNotCaptured):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_not_captured",
			Message: "payment was not captured",
		}
	case errors.Is(err, orderdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many checkouts, retry later",
		}
	case errors.Is(err, settlementdomain.ErrProvisioningFailed),
		errors.Is(err, settlementdomain.ErrGatewayUnavailable),
		errors.Is(err, orderdomain.ErrPaymentSetup):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Code:    rootCode(err),
			Message: "upstream service failed, retry later",
		}
	case errors.Is(err, settlementdomain.ErrSettlementTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorPayload{
			Type:    "timeout",
			Message: "settlement did not finish in time, retry later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, settlementdomain.ErrInvalidReference),
		errors.Is(err, gatewaydomain.ErrInvalidAmount),
		errors.Is(err, termdomain.ErrInactive):
		return true
	case isQuoteValidationError(err),
		isOrderValidationError(err),
		isResourceValidationError(err),
		isTermValidationError(err),
		isCouponValidationError(err):
		return true
	default:
		return false
	}
}

func isQuoteValidationError(err error) bool {
	return errors.Is(err, quotedomain.ErrEmptySelection) ||
		errors.Is(err, quotedomain.ErrInvalidResource) ||
		errors.Is(err, quotedomain.ErrUnknownResource) ||
		errors.Is(err, quotedomain.ErrDuplicateResource) ||
		errors.Is(err, quotedomain.ErrInvalidQuantity) ||
		errors.Is(err, quotedomain.ErrInvalidCurrency)
}

func isOrderValidationError(err error) bool {
	return errors.Is(err, orderdomain.ErrInvalidType) ||
		errors.Is(err, orderdomain.ErrInvalidName) ||
		errors.Is(err, orderdomain.ErrInvalidServer) ||
		errors.Is(err, orderdomain.ErrInvalidNode) ||
		errors.Is(err, orderdomain.ErrInvalidProduct) ||
		errors.Is(err, orderdomain.ErrInvalidUser) ||
		errors.Is(err, orderdomain.ErrInvalidID)
}

func isResourceValidationError(err error) bool {
	return errors.Is(err, resourcedomain.ErrInvalidKey) ||
		errors.Is(err, resourcedomain.ErrInvalidName) ||
		errors.Is(err, resourcedomain.ErrInvalidUnitPrice) ||
		errors.Is(err, resourcedomain.ErrInvalidCurrency) ||
		errors.Is(err, resourcedomain.ErrInvalidQuantityBounds) ||
		errors.Is(err, resourcedomain.ErrInvalidStep) ||
		errors.Is(err, resourcedomain.ErrInvalidQuantity) ||
		errors.Is(err, resourcedomain.ErrInvalidThreshold) ||
		errors.Is(err, resourcedomain.ErrInvalidScalingMode) ||
		errors.Is(err, resourcedomain.ErrInvalidFactor) ||
		errors.Is(err, resourcedomain.ErrInvalidID)
}

func isTermValidationError(err error) bool {
	return errors.Is(err, termdomain.ErrInvalidName) ||
		errors.Is(err, termdomain.ErrInvalidSlug) ||
		errors.Is(err, termdomain.ErrInvalidDuration) ||
		errors.Is(err, termdomain.ErrInvalidMultiplier) ||
		errors.Is(err, termdomain.ErrInvalidID)
}

func isCouponValidationError(err error) bool {
	return errors.Is(err, coupondomain.ErrInvalidCode) ||
		errors.Is(err, coupondomain.ErrInvalidType) ||
		errors.Is(err, coupondomain.ErrInvalidPayload) ||
		errors.Is(err, coupondomain.ErrInvalidLimit) ||
		errors.Is(err, coupondomain.ErrInvalidWindow) ||
		errors.Is(err, coupondomain.ErrInvalidTerm) ||
		errors.Is(err, coupondomain.ErrInvalidID)
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, resourcedomain.ErrNotFound),
		errors.Is(err, termdomain.ErrNotFound),
		errors.Is(err, coupondomain.ErrNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, nodedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, nodedomain.ErrDeploymentNotAllowed),
		errors.Is(err, settlementdomain.ErrAlreadyProcessed),
		errors.Is(err, settlementdomain.ErrOrderFailed),
		errors.Is(err, resourcedomain.ErrDuplicateKey),
		errors.Is(err, resourcedomain.ErrDuplicateScalingRule),
		errors.Is(err, termdomain.ErrDuplicateSlug),
		errors.Is(err, coupondomain.ErrDuplicateCode),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

// rootCode returns the snake_case prefix of a wrapped domain error.
func rootCode(err error) string {
	code, _, _ := strings.Cut(err.Error(), ":")
	return strings.TrimSpace(code)
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return rootCode(err)
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "empty_selection", "unknown_resource", "duplicate_resource":
		return "resources"
	case "term_inactive":
		return "term"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_selection":
		return "select at least one resource"
	case "unknown_resource":
		return "resource is not available"
	case "duplicate_resource":
		return "resource selected more than once"
	case "term_inactive":
		return "term is no longer offered"
	default:
		return "invalid value"
	}
}
