// Package httpx holds the request parsing shared by the ledger handlers.
package httpx

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/money"
)

// Bind decodes the request body into dst and runs the echo Validator.
func Bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Wrap(apperr.Validation, err, "malformed request body")
	}
	if c.Echo().Validator == nil {
		return nil
	}
	return c.Validate(dst)
}

// Actor resolves the authenticated caller of the request.
func Actor(c echo.Context) (auth.Actor, error) {
	return auth.ActorFromContext(c.Request().Context())
}

func UUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.New(apperr.Validation, "invalid %s", name)
	}
	return id, nil
}

// ParseUUID parses a body field, reporting failures as Validation errors.
func ParseUUID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.Validation, "invalid %s", name)
	}
	return id, nil
}

// OptionalUUID is ParseUUID for a field that may be absent.
func OptionalUUID(raw *string, name string) (*uuid.UUID, error) {
	if raw == nil {
		return nil, nil
	}
	id, err := ParseUUID(*raw, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// OptionalDate parses a YYYY-MM-DD body field that may be absent.
func OptionalDate(raw *string, name string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}

// OptionalUUIDQuery parses ?name= when present.
func OptionalUUIDQuery(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "invalid %s", name)
	}
	return &id, nil
}

// DateRange reads ?from= and ?to= as YYYY-MM-DD or RFC 3339. A bare date in
// to is taken as inclusive, so the returned bound is the next midnight.
func DateRange(c echo.Context) (from, to *time.Time, err error) {
	if from, err = parseTime(c.QueryParam("from"), "from", false); err != nil {
		return nil, nil, err
	}
	if to, err = parseTime(c.QueryParam("to"), "to", true); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseTime(raw, name string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "%s must be YYYY-MM-DD or RFC 3339", name)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// Amount parses a decimal string in currency, mapping failures to InvalidAmount.
func Amount(raw, currency string) (money.Money, error) {
	m, err := money.Parse(raw, currency)
	if err != nil {
		return money.Money{}, apperr.Wrap(apperr.InvalidAmount, err, "invalid amount %q", raw)
	}
	return m, nil
}

// OptionalAmount is Amount with an empty string meaning zero.
func OptionalAmount(raw, currency string) (money.Money, error) {
	if strings.TrimSpace(raw) == "" {
		return money.Zero(currency), nil
	}
	return Amount(raw, currency)
}

// Currency picks the request currency, falling back to def.
func Currency(requested, def string) string {
	if requested == "" {
		return def
	}
	return strings.ToUpper(requested)
}
