package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/money"
)

type InvoiceRepository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error)
	// Line Items
	AddLineItem(ctx context.Context, li *InvoiceLineItem) error
	GetLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLineItem, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error)
	SumByInvoice(ctx context.Context, invoiceID uuid.UUID, currency string) (money.Money, error)
}
