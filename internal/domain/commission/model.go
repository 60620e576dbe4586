package commission

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

type Status string

const (
	StatusDue  Status = "due"
	StatusPaid Status = "paid"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusDue, StatusPaid:
		return st, nil
	}
	return "", apperr.New(apperr.Validation, "invalid commission status: %s", s)
}

// Practitioner is an external practitioner paid by commission. Exactly one
// of CommissionRate and FixedAmount is set.
type Practitioner struct {
	ID             uuid.UUID        `json:"id"`
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	Specialty      *string          `json:"specialty,omitempty"`
	Phone          *string          `json:"phone,omitempty"`
	Email          *string          `json:"email,omitempty"`
	CommissionRate *decimal.Decimal `json:"commission_rate,omitempty"`
	FixedAmount    *money.Money     `json:"fixed_amount,omitempty"`
	Currency       string           `json:"currency"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (p *Practitioner) Config() Config {
	return Config{Rate: p.CommissionRate, Fixed: p.FixedAmount}
}

// Commission is owed to a practitioner for one invoice or service in a
// period. (PractitionerID, InvoiceID, ServiceID, Period) is unique.
type Commission struct {
	ID             uuid.UUID        `json:"id"`
	PractitionerID uuid.UUID        `json:"practitioner_id"`
	InvoiceID      *uuid.UUID       `json:"invoice_id,omitempty"`
	ServiceID      *uuid.UUID       `json:"service_id,omitempty"`
	Period         string           `json:"period"`
	BaseAmount     money.Money      `json:"base_amount"`
	Rate           *decimal.Decimal `json:"rate,omitempty"`
	FixedAmount    *money.Money     `json:"fixed_amount,omitempty"`
	Amount         money.Money      `json:"commission_amount"`
	Status         Status           `json:"status"`
	CalculatedAt   time.Time        `json:"calculated_at"`
	PaidAt         *time.Time       `json:"paid_at,omitempty"`
}

func (c *Commission) Key() Key {
	return Key{PractitionerID: c.PractitionerID, InvoiceID: c.InvoiceID, ServiceID: c.ServiceID, Period: c.Period}
}

// Key identifies a commission within its period.
type Key struct {
	PractitionerID uuid.UUID
	InvoiceID      *uuid.UUID
	ServiceID      *uuid.UUID
	Period         string
}

type Filter struct {
	Period         string
	PractitionerID *uuid.UUID
	Status         Status
}
