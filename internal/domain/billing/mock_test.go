package billing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

// =========== Mock Invoice Repository ===========

type mockInvoiceRepo struct {
	mu        sync.Mutex
	store     map[uuid.UUID]Invoice
	lineItems map[uuid.UUID][]InvoiceLineItem
	updates   int
}

func newMockInvoiceRepo() *mockInvoiceRepo {
	return &mockInvoiceRepo{
		store:     make(map[uuid.UUID]Invoice),
		lineItems: make(map[uuid.UUID][]InvoiceLineItem),
	}
}

func (m *mockInvoiceRepo) Create(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[inv.ID] = *inv
	return nil
}

func (m *mockInvoiceRepo) GetByID(_ context.Context, id uuid.UUID) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.store[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "invoice not found")
	}
	return &inv, nil
}

func (m *mockInvoiceRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return m.GetByID(ctx, id)
}

func (m *mockInvoiceRepo) GetByNumber(_ context.Context, number string) (*Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.store {
		if inv.Number == number {
			out := inv
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "invoice not found")
}

func (m *mockInvoiceRepo) Update(_ context.Context, inv *Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[inv.ID]; !ok {
		return apperr.New(apperr.NotFound, "invoice not found")
	}
	m.store[inv.ID] = *inv
	m.updates++
	return nil
}

func (m *mockInvoiceRepo) List(_ context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Invoice
	for _, inv := range m.store {
		if f.PatientID != nil && inv.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		out := inv
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number < all[j].Number })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockInvoiceRepo) AddLineItem(_ context.Context, li *InvoiceLineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lineItems[li.InvoiceID] = append(m.lineItems[li.InvoiceID], *li)
	return nil
}

func (m *mockInvoiceRepo) GetLineItems(_ context.Context, invoiceID uuid.UUID) ([]*InvoiceLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*InvoiceLineItem
	for _, li := range m.lineItems[invoiceID] {
		li := li
		out = append(out, &li)
	}
	return out, nil
}

// =========== Mock Payment Repository ===========

type mockPaymentRepo struct {
	mu    sync.Mutex
	store []Payment
	// failCreate makes Create return a persistence error.
	failCreate bool
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return apperr.DB(fmt.Errorf("connection reset"), "insert payment")
	}
	m.store = append(m.store, *p)
	return nil
}

func (m *mockPaymentRepo) ListByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.store {
		if p.InvoiceID == invoiceID {
			p := p
			out = append(out, &p)
		}
	}
	return out, nil
}

func (m *mockPaymentRepo) SumByInvoice(_ context.Context, invoiceID uuid.UUID, currency string) (money.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := money.Zero(currency)
	for _, p := range m.store {
		if p.InvoiceID != invoiceID {
			continue
		}
		var err error
		if total, err = total.Add(p.Amount); err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}

func (m *mockPaymentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

// =========== Fakes ===========

type seqNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *seqNumbers) Next(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("F-%d-%04d", at.Year(), s.n)
}

type recordingDrawer struct {
	mu       sync.Mutex
	payments []Payment
	err      error
}

func (d *recordingDrawer) RecordCashFlow(_ context.Context, p *Payment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.payments = append(d.payments, *p)
	return nil
}
