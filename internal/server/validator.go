package server

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	currencyRegex   = regexp.MustCompile(`^[A-Za-z]{3}$`)
	couponCodeRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	registerOnce sync.Once
)

// registerValidators installs the billing tags on gin's binding validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		_ = v.RegisterValidation("currency", validateCurrency)
		_ = v.RegisterValidation("coupon_code", validateCouponCode)
	})
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

func validateCurrency(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if value == "" {
		return true
	}
	return currencyRegex.MatchString(value)
}

func validateCouponCode(fl validator.FieldLevel) bool {
	return couponCodeRegex.MatchString(strings.TrimSpace(fl.Field().String()))
}

// bindError turns a gin binding failure into a validation payload.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalidRequestError()
	}

	out := &ValidationErrors{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fe.Field()
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Code:    "invalid_" + fe.Tag(),
			Message: validationTagMessage(fe),
		})
	}
	return out
}

func validationTagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case "currency":
		return fe.Field() + " must be a three letter currency code"
	case "coupon_code":
		return fe.Field() + " is not a valid coupon code"
	default:
		return "invalid value"
	}
}
