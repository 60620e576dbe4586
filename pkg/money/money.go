// Package money provides a fixed-point currency amount backed by
// shopspring/decimal. Values are immutable and always held at the
// currency's minor-unit scale.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor-unit digits kept for every supported currency.
const Scale = 2

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "EUR"

var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency code")
)

var hundred = decimal.NewFromInt(100)

// Money is an amount in a single currency.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New rounds d half-even to the minor unit.
func New(d decimal.Decimal, currency string) Money {
	return Money{amount: d.RoundBank(Scale), currency: normalizeCurrency(currency)}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// FromMinor builds an amount from minor units (cents).
func FromMinor(minor int64, currency string) Money {
	return New(decimal.New(minor, -Scale), currency)
}

// Parse reads a decimal string such as "70.00". More than Scale fractional
// digits are rejected rather than silently rounded.
func Parse(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.Equal(d.Truncate(Scale)) {
		return Money{}, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, Scale)
	}
	if err := ValidateCurrency(currency); err != nil {
		return Money{}, err
	}
	return New(d, currency), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ValidateCurrency checks for a three letter ISO-4217 style code.
func ValidateCurrency(code string) error {
	code = normalizeCurrency(code)
	if len(code) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return nil
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() string        { return m.currency }

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Minor returns the amount in minor units.
func (m Money) Minor() int64 {
	return m.amount.Shift(Scale).IntPart()
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, o.currency)
	}
	return nil
}

func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.sameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

// Mul multiplies by an integer quantity.
func (m Money) Mul(qty int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(qty)), currency: m.currency}
}

// Percent returns m × pct / 100 rounded half-even to the minor unit.
func (m Money) Percent(pct decimal.Decimal) Money {
	return New(m.amount.Mul(pct).Div(hundred), m.currency)
}

// Sum adds amounts that must all be in currency.
func Sum(currency string, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// StringFixed renders the amount only, e.g. "70.00".
func (m Money) StringFixed() string {
	return m.amount.StringFixed(Scale)
}

func (m Money) String() string {
	return m.StringFixed() + " " + m.currency
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.StringFixed(), Currency: m.currency})
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := Parse(v.Amount, v.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
