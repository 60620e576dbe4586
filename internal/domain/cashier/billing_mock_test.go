package cashier

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

// Minimal billing repositories for the end-to-end cash test.

type memInvoices struct {
	mu    sync.Mutex
	store map[uuid.UUID]billing.Invoice
}

func newMemInvoices() *memInvoices {
	return &memInvoices{store: make(map[uuid.UUID]billing.Invoice)}
}

func (m *memInvoices) Create(_ context.Context, inv *billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[inv.ID] = *inv
	return nil
}

func (m *memInvoices) GetByID(_ context.Context, id uuid.UUID) (*billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.store[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "invoice not found")
	}
	return &inv, nil
}

func (m *memInvoices) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	return m.GetByID(ctx, id)
}

func (m *memInvoices) GetByNumber(_ context.Context, _ string) (*billing.Invoice, error) {
	return nil, apperr.New(apperr.NotFound, "invoice not found")
}

func (m *memInvoices) Update(_ context.Context, inv *billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[inv.ID] = *inv
	return nil
}

func (m *memInvoices) List(_ context.Context, _ billing.InvoiceFilter, _, _ int) ([]*billing.Invoice, int, error) {
	return nil, 0, nil
}

func (m *memInvoices) AddLineItem(_ context.Context, _ *billing.InvoiceLineItem) error { return nil }

func (m *memInvoices) GetLineItems(_ context.Context, _ uuid.UUID) ([]*billing.InvoiceLineItem, error) {
	return nil, nil
}

type memPayments struct {
	mu    sync.Mutex
	store []billing.Payment
}

func newMemPayments() *memPayments { return &memPayments{} }

func (m *memPayments) Create(_ context.Context, p *billing.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = append(m.store, *p)
	return nil
}

func (m *memPayments) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*billing.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*billing.Payment
	for _, p := range m.store {
		if p.InvoiceID == invoiceID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *memPayments) SumByInvoice(_ context.Context, invoiceID uuid.UUID, currency string) (money.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := money.Zero(currency)
	for _, p := range m.store {
		if p.InvoiceID == invoiceID {
			var err error
			if total, err = total.Add(p.Amount); err != nil {
				return money.Money{}, err
			}
		}
	}
	return total, nil
}
