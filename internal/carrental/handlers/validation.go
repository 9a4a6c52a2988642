package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/25x8/carrental/internal/carrental/apperr"
	"github.com/25x8/carrental/internal/carrental/utils"
)

// NewValidator builds the request validator. Field errors are reported
// under their JSON names, money is compared as a number, and the ifsc and
// upi tags check Indian payout identifiers.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("ifsc", func(fl validator.FieldLevel) bool {
		return utils.ValidateIFSC(fl.Field().String())
	})
	_ = v.RegisterValidation("upi", func(fl validator.FieldLevel) bool {
		return utils.ValidateUPIID(fl.Field().String())
	})
	return v
}

// validationError converts the first validator failure into an apperr
// validation error on the JSON field path.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation("body", err.Error())
	}
	fe := verrs[0]

	// drop the root struct name from the namespace
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return apperr.Validation(field, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "ifsc":
		return "is not a valid IFSC code"
	case "upi":
		return "is not a valid UPI id"
	case "numeric":
		return "must contain only digits"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
