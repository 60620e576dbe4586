package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

type Status string

const (
	StatusDraft         Status = "draft"
	StatusValidated     Status = "validated"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusCancelled     Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusValidated: true, StatusPartiallyPaid: true,
	StatusPaid: true, StatusCancelled: true,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !validStatuses[st] {
		return "", apperr.New(apperr.Validation, "invalid invoice status: %s", s)
	}
	return st, nil
}

// Method is how a payment was tendered.
type Method string

const (
	MethodCash        Method = "cash"
	MethodCard        Method = "card"
	MethodCheck       Method = "check"
	MethodTransfer    Method = "transfer"
	MethodMobileMoney Method = "mobile_money"
)

// Methods lists the accepted payment methods in display order.
var Methods = []Method{MethodCash, MethodCard, MethodCheck, MethodTransfer, MethodMobileMoney}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", apperr.New(apperr.InvalidMethod, "unknown payment method: %q", s)
}

// Invoice maps to the invoice table. Total, Coverage and Discount are frozen
// once the invoice leaves draft.
type Invoice struct {
	ID             uuid.UUID   `json:"id"`
	Number         string      `json:"invoice_number"`
	PatientID      uuid.UUID   `json:"patient_id"`
	ConsultationID *uuid.UUID  `json:"consultation_id,omitempty"`
	Total          money.Money `json:"total"`
	Coverage       money.Money `json:"coverage"`
	Discount       money.Money `json:"discount"`
	AmountPaid     money.Money `json:"amount_paid"`
	Status         Status      `json:"status"`
	DueDate        *time.Time  `json:"due_date,omitempty"`
	Note           *string     `json:"note,omitempty"`
	CreatedBy      uuid.UUID   `json:"created_by"`
	CreatedAt      time.Time   `json:"created_at"`
	ValidatedAt    *time.Time  `json:"validated_at,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Currency is the invoice currency; every amount on it shares it.
func (inv *Invoice) Currency() string { return inv.Total.Currency() }

// PatientDue is total - coverage - discount.
func (inv *Invoice) PatientDue() money.Money {
	d := inv.Total.Amount().Sub(inv.Coverage.Amount()).Sub(inv.Discount.Amount())
	return money.New(d, inv.Currency())
}

// Remaining is what the patient still owes.
func (inv *Invoice) Remaining() money.Money {
	return money.New(inv.PatientDue().Amount().Sub(inv.AmountPaid.Amount()), inv.Currency())
}

// InvoiceLineItem maps to the invoice_line_item table. At most one of
// ServiceID and MedicationID is set.
type InvoiceLineItem struct {
	ID                uuid.UUID   `json:"id"`
	InvoiceID         uuid.UUID   `json:"invoice_id"`
	ServiceID         *uuid.UUID  `json:"service_id,omitempty"`
	MedicationID      *uuid.UUID  `json:"medication_id,omitempty"`
	Description       string      `json:"description"`
	Quantity          int64       `json:"quantity"`
	UnitPrice         money.Money `json:"unit_price"`
	TotalPrice        money.Money `json:"total_price"`
	InsuranceCoverage money.Money `json:"insurance_coverage"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Payment maps to the payment table. Rows are append-only.
type Payment struct {
	ID         uuid.UUID   `json:"id"`
	InvoiceID  uuid.UUID   `json:"invoice_id"`
	Amount     money.Money `json:"amount"`
	Method     Method      `json:"method"`
	Reference  *string     `json:"reference,omitempty"`
	Note       *string     `json:"note,omitempty"`
	ReceivedBy uuid.UUID   `json:"received_by"`
	ReceivedAt time.Time   `json:"received_at"`
}

// InvoiceFilter narrows List. Zero fields are ignored; From and To bound
// created_at, To exclusive.
type InvoiceFilter struct {
	PatientID *uuid.UUID
	Status    Status
	From      *time.Time
	To        *time.Time
}
