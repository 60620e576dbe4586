package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

// NewInvoiceInput carries the amounts and references for a new invoice.
type NewInvoiceInput struct {
	PatientID      uuid.UUID
	ConsultationID *uuid.UUID
	Total          money.Money
	Coverage       money.Money
	Discount       money.Money
	DueDate        *time.Time
	Note           *string
}

// NewInvoice checks the amount invariants and returns a draft invoice.
func NewInvoice(in NewInvoiceInput, number string, createdBy uuid.UUID, now time.Time) (*Invoice, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.New(apperr.Validation, "patient_id is required")
	}
	cur := in.Total.Currency()
	for _, m := range []money.Money{in.Coverage, in.Discount} {
		if m.Currency() != cur {
			return nil, apperr.New(apperr.InvalidAmount, "all amounts must be in %s", cur)
		}
	}
	if in.Total.IsNegative() || in.Coverage.IsNegative() || in.Discount.IsNegative() {
		return nil, apperr.New(apperr.InvalidAmount, "amounts must not be negative")
	}
	if in.Coverage.Amount().GreaterThan(in.Total.Amount()) {
		return nil, apperr.New(apperr.InvalidAmount, "coverage %s exceeds total %s", in.Coverage, in.Total)
	}
	if in.Discount.Amount().GreaterThan(in.Total.Amount().Sub(in.Coverage.Amount())) {
		return nil, apperr.New(apperr.InvalidDiscount, "discount %s exceeds total minus coverage", in.Discount)
	}

	return &Invoice{
		ID:             uuid.New(),
		Number:         number,
		PatientID:      in.PatientID,
		ConsultationID: in.ConsultationID,
		Total:          in.Total,
		Coverage:       in.Coverage,
		Discount:       in.Discount,
		AmountPaid:     money.Zero(cur),
		Status:         StatusDraft,
		DueDate:        in.DueDate,
		Note:           in.Note,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Validate freezes a draft invoice and makes it payable. An invoice with
// nothing left for the patient to pay is settled on validation.
func (inv *Invoice) Validate(now time.Time) error {
	if inv.Status != StatusDraft {
		return apperr.New(apperr.InvalidState, "invoice %s is %s, only draft invoices can be validated", inv.Number, inv.Status)
	}
	inv.Status = StatusValidated
	if inv.PatientDue().IsZero() {
		inv.Status = StatusPaid
	}
	inv.ValidatedAt = &now
	inv.UpdatedAt = now
	return nil
}

// Cancel is allowed from any state except paid. Cancelled is terminal.
func (inv *Invoice) Cancel(now time.Time) error {
	switch inv.Status {
	case StatusPaid:
		return apperr.New(apperr.InvalidState, "invoice %s is paid and cannot be cancelled", inv.Number)
	case StatusCancelled:
		return apperr.New(apperr.InvalidState, "invoice %s is already cancelled", inv.Number)
	}
	inv.Status = StatusCancelled
	inv.CancelledAt = &now
	inv.UpdatedAt = now
	return nil
}

// AddLineItem raises total and coverage by the item's amounts. Draft only.
func (inv *Invoice) AddLineItem(li *InvoiceLineItem, now time.Time) error {
	if inv.Status != StatusDraft {
		return apperr.New(apperr.InvalidState, "line items can only be added to draft invoices")
	}
	if li.Quantity <= 0 {
		return apperr.New(apperr.InvalidAmount, "quantity must be positive")
	}
	if li.ServiceID != nil && li.MedicationID != nil {
		return apperr.New(apperr.Validation, "a line item references a service or a medication, not both")
	}
	if strings.TrimSpace(li.Description) == "" {
		return apperr.New(apperr.Validation, "description is required")
	}
	cur := inv.Currency()
	if li.UnitPrice.Currency() != cur || li.InsuranceCoverage.Currency() != cur {
		return apperr.New(apperr.InvalidAmount, "line item amounts must be in %s", cur)
	}
	if li.UnitPrice.IsNegative() || li.InsuranceCoverage.IsNegative() {
		return apperr.New(apperr.InvalidAmount, "line item amounts must not be negative")
	}

	li.TotalPrice = li.UnitPrice.Mul(li.Quantity)
	if li.InsuranceCoverage.Amount().GreaterThan(li.TotalPrice.Amount()) {
		return apperr.New(apperr.InvalidAmount, "insurance coverage %s exceeds line total %s", li.InsuranceCoverage, li.TotalPrice)
	}

	total, err := inv.Total.Add(li.TotalPrice)
	if err != nil {
		return apperr.Wrap(apperr.InvalidAmount, err, "add line total")
	}
	coverage, err := inv.Coverage.Add(li.InsuranceCoverage)
	if err != nil {
		return apperr.Wrap(apperr.InvalidAmount, err, "add line coverage")
	}

	li.InvoiceID = inv.ID
	li.CreatedAt = now
	inv.Total = total
	inv.Coverage = coverage
	inv.UpdatedAt = now
	return nil
}

// PaymentInput is a payment about to be applied.
type PaymentInput struct {
	Amount    money.Money
	Method    string
	Reference string
	Note      *string
}

// ApplyPayment checks p against the invoice and, when it fits, records the
// new cumulative amount and status. paidSoFar is the sum of earlier
// applications. On error the invoice is left unchanged.
func (inv *Invoice) ApplyPayment(in PaymentInput, paidSoFar money.Money, receivedBy uuid.UUID, now time.Time) (*Payment, error) {
	switch inv.Status {
	case StatusCancelled, StatusPaid:
		return nil, apperr.New(apperr.InvalidState, "invoice %s is %s and accepts no payments", inv.Number, inv.Status)
	case StatusDraft:
		return nil, apperr.New(apperr.InvalidState, "invoice %s must be validated before payment", inv.Number)
	}

	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidAmount, "payment amount must be positive")
	}
	if in.Amount.Currency() != inv.Currency() {
		return nil, apperr.New(apperr.InvalidAmount, "payment must be in %s", inv.Currency())
	}

	method, err := ParseMethod(in.Method)
	if err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(in.Reference)
	if method != MethodCash && ref == "" {
		return nil, apperr.New(apperr.MissingReference, "a reference is required for %s payments", method)
	}

	cumulative, err := paidSoFar.Add(in.Amount)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidAmount, err, "sum payments")
	}
	due := inv.PatientDue()
	switch cmp := cumulative.Amount().Cmp(due.Amount()); {
	case cmp > 0:
		return nil, apperr.New(apperr.OverPayment, "payment of %s exceeds remaining %s",
			in.Amount, money.New(due.Amount().Sub(paidSoFar.Amount()), due.Currency()))
	case cmp == 0:
		inv.Status = StatusPaid
	default:
		inv.Status = StatusPartiallyPaid
	}
	inv.AmountPaid = cumulative
	inv.UpdatedAt = now

	p := &Payment{
		ID:         uuid.New(),
		InvoiceID:  inv.ID,
		Amount:     in.Amount,
		Method:     method,
		Note:       in.Note,
		ReceivedBy: receivedBy,
		ReceivedAt: now,
	}
	if ref != "" {
		p.Reference = &ref
	}
	return p, nil
}
