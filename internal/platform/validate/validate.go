// Package validate plugs go-playground/validator into echo's Validator hook
// and adds the tags used by the ledger request DTOs.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

var (
	periodPattern   = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("amount", validateAmount)
	_ = v.RegisterValidation("period", validatePeriod)
	_ = v.RegisterValidation("currency", validateCurrency)
	return &Validator{v: v}
}

// Validate returns an apperr Validation error listing every failing field.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Wrap(apperr.Validation, err, "invalid request")
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.New(apperr.Validation, "%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "amount":
		return fmt.Sprintf("%s must be a decimal amount with at most %d decimals", fe.Field(), money.Scale)
	case "period":
		return fmt.Sprintf("%s must be YYYY-MM", fe.Field())
	case "currency":
		return fmt.Sprintf("%s must be a three letter currency code", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a uuid", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// validateAmount accepts an empty string (use required to forbid it) or a
// decimal with at most money.Scale fractional digits. The sign is left to the
// domain, which reports it as InvalidAmount or InvalidConfig.
func validateAmount(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	if s == "" {
		return true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.Equal(d.Truncate(money.Scale))
}

func validatePeriod(fl validator.FieldLevel) bool {
	return periodPattern.MatchString(fl.Field().String())
}

func validateCurrency(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return s == "" || currencyPattern.MatchString(s)
}

// IsPeriod reports whether s is a YYYY-MM commission period.
func IsPeriod(s string) bool {
	return periodPattern.MatchString(s)
}
