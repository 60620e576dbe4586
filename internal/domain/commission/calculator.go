package commission

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/money"
)

var maxRate = decimal.NewFromInt(100)

// Config is a practitioner's commission rule: a percentage of the base
// amount, or a fixed amount per act.
type Config struct {
	Rate  *decimal.Decimal
	Fixed *money.Money
}

func (c Config) Validate() error {
	switch {
	case c.Rate != nil && c.Fixed != nil:
		return apperr.New(apperr.InvalidConfig, "set either a commission rate or a fixed amount, not both")
	case c.Rate == nil && c.Fixed == nil:
		return apperr.New(apperr.InvalidConfig, "a commission rate or a fixed amount is required")
	case c.Rate != nil:
		if c.Rate.IsNegative() || c.Rate.GreaterThan(maxRate) {
			return apperr.New(apperr.InvalidConfig, "commission rate %s is outside 0-100", c.Rate)
		}
		if !c.Rate.Equal(c.Rate.Truncate(2)) {
			return apperr.New(apperr.InvalidConfig, "commission rate %s has more than 2 decimals", c.Rate)
		}
	case c.Fixed.IsNegative():
		return apperr.New(apperr.InvalidConfig, "fixed commission must not be negative")
	}
	return nil
}

// Calculate returns a due commission for base in period. Rate commissions
// are rounded half-even to the cent.
func Calculate(cfg Config, base money.Money, period string, now time.Time) (*Commission, error) {
	if !validate.IsPeriod(period) {
		return nil, apperr.New(apperr.InvalidConfig, "period %q must be YYYY-MM", period)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if base.IsNegative() {
		return nil, apperr.New(apperr.InvalidAmount, "base amount must not be negative")
	}

	c := &Commission{
		ID:           uuid.New(),
		Period:       period,
		BaseAmount:   base,
		Status:       StatusDue,
		CalculatedAt: now,
	}
	if cfg.Rate != nil {
		rate := *cfg.Rate
		c.Rate = &rate
		c.Amount = base.Percent(rate)
		return c, nil
	}

	if cfg.Fixed.Currency() != base.Currency() {
		return nil, apperr.New(apperr.InvalidAmount, "base amount must be in %s", cfg.Fixed.Currency())
	}
	fixed := *cfg.Fixed
	c.FixedAmount = &fixed
	c.Amount = fixed
	return c, nil
}

// Recalculate replaces the amounts of a due commission with those of next.
func (c *Commission) Recalculate(next *Commission) error {
	if c.Status == StatusPaid {
		return apperr.New(apperr.AlreadyFinalized, "commission %s for %s is already paid", c.ID, c.Period)
	}
	c.BaseAmount = next.BaseAmount
	c.Rate = next.Rate
	c.FixedAmount = next.FixedAmount
	c.Amount = next.Amount
	c.CalculatedAt = next.CalculatedAt
	return nil
}

func (c *Commission) MarkPaid(now time.Time) error {
	if c.Status != StatusDue {
		return apperr.New(apperr.InvalidState, "commission %s is %s", c.ID, c.Status)
	}
	c.Status = StatusPaid
	c.PaidAt = &now
	return nil
}
