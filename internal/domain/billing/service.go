package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
)

// CashDrawer receives every recorded payment inside the transaction that
// recorded it. Implementations ignore non-cash payments.
type CashDrawer interface {
	RecordCashFlow(ctx context.Context, p *Payment) error
}

type Service struct {
	invoices InvoiceRepository
	payments PaymentRepository
	tx       db.TxRunner
	locks    lock.Locker
	numbers  NumberSource
	cash     CashDrawer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(inv InvoiceRepository, pay PaymentRepository, tx db.TxRunner, locks lock.Locker, numbers NumberSource, logger zerolog.Logger) *Service {
	return &Service{
		invoices: inv,
		payments: pay,
		tx:       tx,
		locks:    locks,
		numbers:  numbers,
		logger:   logger.With().Str("component", "billing").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetCashDrawer attaches the cash session hook. Without one, cash payments
// are recorded on the invoice only.
func (s *Service) SetCashDrawer(cd CashDrawer) {
	s.cash = cd
}

func invoiceLockKey(id uuid.UUID) string { return "invoice:" + id.String() }

// -- Invoice --

func (s *Service) CreateInvoice(ctx context.Context, actor auth.Actor, in NewInvoiceInput) (*Invoice, error) {
	if err := actor.Require(auth.CapInvoiceWrite); err != nil {
		return nil, err
	}
	now := s.now()
	inv, err := NewInvoice(in, s.numbers.Next(now), actor.ID, now)
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Str("invoice_number", inv.Number).
		Str("patient_due", inv.PatientDue().String()).
		Msg("invoice created")
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Invoice, error) {
	if err := actor.Require(auth.CapInvoiceRead); err != nil {
		return nil, err
	}
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) GetInvoiceByNumber(ctx context.Context, actor auth.Actor, number string) (*Invoice, error) {
	if err := actor.Require(auth.CapInvoiceRead); err != nil {
		return nil, err
	}
	return s.invoices.GetByNumber(ctx, number)
}

func (s *Service) ListInvoices(ctx context.Context, actor auth.Actor, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	if err := actor.Require(auth.CapInvoiceRead); err != nil {
		return nil, 0, err
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, apperr.New(apperr.Validation, "from must be before to")
	}
	return s.invoices.List(ctx, f, limit, offset)
}

// ValidateInvoice moves a draft invoice to validated.
func (s *Service) ValidateInvoice(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Invoice, error) {
	if err := actor.Require(auth.CapInvoiceWrite); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "validated", func(_ context.Context, inv *Invoice, now time.Time) error {
		return inv.Validate(now)
	})
}

func (s *Service) CancelInvoice(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Invoice, error) {
	if err := actor.Require(auth.CapInvoiceCancel); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, "cancelled", func(_ context.Context, inv *Invoice, now time.Time) error {
		return inv.Cancel(now)
	})
}

// mutate runs fn on a locked invoice and persists the result.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, event string, fn func(context.Context, *Invoice, time.Time) error) (*Invoice, error) {
	release, err := s.locks.Lock(ctx, invoiceLockKey(id))
	if err != nil {
		return nil, fmt.Errorf("lock invoice: %w", err)
	}
	defer release()

	var out *Invoice
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, inv, s.now()); err != nil {
			return err
		}
		if err := s.invoices.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("invoice_id", out.ID.String()).
		Str("status", string(out.Status)).
		Msg("invoice " + event)
	return out, nil
}

// -- Line Items --

func (s *Service) AddLineItem(ctx context.Context, actor auth.Actor, invoiceID uuid.UUID, li *InvoiceLineItem) (*Invoice, error) {
	if err := actor.Require(auth.CapInvoiceWrite); err != nil {
		return nil, err
	}
	return s.mutate(ctx, invoiceID, "line item added", func(ctx context.Context, inv *Invoice, now time.Time) error {
		if err := inv.AddLineItem(li, now); err != nil {
			return err
		}
		li.ID = uuid.New()
		return s.invoices.AddLineItem(ctx, li)
	})
}

func (s *Service) GetLineItems(ctx context.Context, actor auth.Actor, invoiceID uuid.UUID) ([]*InvoiceLineItem, error) {
	if err := actor.Require(auth.CapInvoiceRead); err != nil {
		return nil, err
	}
	if _, err := s.invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.invoices.GetLineItems(ctx, invoiceID)
}

// -- Payments --

// ApplyPayment records a payment against one invoice. Applications on the
// same invoice are serialized by the invoice lock and a row lock, so the
// cumulative amount never exceeds the patient due.
func (s *Service) ApplyPayment(ctx context.Context, actor auth.Actor, invoiceID uuid.UUID, in PaymentInput) (*Payment, *Invoice, error) {
	if err := actor.Require(auth.CapPaymentWrite); err != nil {
		return nil, nil, err
	}

	release, err := s.locks.Lock(ctx, invoiceLockKey(invoiceID))
	if err != nil {
		return nil, nil, fmt.Errorf("lock invoice: %w", err)
	}
	defer release()

	var (
		payment *Payment
		updated *Invoice
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		inv, err := s.invoices.GetByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		paid, err := s.payments.SumByInvoice(ctx, invoiceID, inv.Currency())
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}

		p, err := inv.ApplyPayment(in, paid, actor.ID, s.now())
		if err != nil {
			return err
		}
		if err := s.payments.Create(ctx, p); err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		if err := s.invoices.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if s.cash != nil && p.Method == MethodCash {
			if err := s.cash.RecordCashFlow(ctx, p); err != nil {
				return fmt.Errorf("record cash flow: %w", err)
			}
		}
		payment, updated = p, inv
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("invoice_id", invoiceID.String()).Msg("payment rejected")
		return nil, nil, err
	}

	s.logger.Info().
		Str("invoice_id", updated.ID.String()).
		Str("payment_id", payment.ID.String()).
		Str("method", string(payment.Method)).
		Str("amount", payment.Amount.String()).
		Str("status", string(updated.Status)).
		Msg("payment applied")
	return payment, updated, nil
}

func (s *Service) ListPayments(ctx context.Context, actor auth.Actor, invoiceID uuid.UUID) ([]*Payment, error) {
	if err := actor.Require(auth.CapInvoiceRead); err != nil {
		return nil, err
	}
	if _, err := s.invoices.GetByID(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.payments.ListByInvoice(ctx, invoiceID)
}
