package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/money"
)

// =========== Invoice Repository ===========

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository { return &invoiceRepoPG{pool: pool} }

func (r *invoiceRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const invCols = `id, invoice_number, patient_id, consultation_id, currency,
	total, coverage, discount, amount_paid, status, due_date, note,
	created_by, created_at, validated_at, cancelled_at, updated_at`

func (r *invoiceRepoPG) scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var currency string
	var total, coverage, discount, amountPaid decimal.Decimal
	err := row.Scan(&inv.ID, &inv.Number, &inv.PatientID, &inv.ConsultationID, &currency,
		&total, &coverage, &discount, &amountPaid, &inv.Status, &inv.DueDate, &inv.Note,
		&inv.CreatedBy, &inv.CreatedAt, &inv.ValidatedAt, &inv.CancelledAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Total = money.New(total, currency)
	inv.Coverage = money.New(coverage, currency)
	inv.Discount = money.New(discount, currency)
	inv.AmountPaid = money.New(amountPaid, currency)
	return &inv, nil
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice (id, invoice_number, patient_id, consultation_id, currency,
			total, coverage, discount, amount_paid, status, due_date, note,
			created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		inv.ID, inv.Number, inv.PatientID, inv.ConsultationID, inv.Currency(),
		inv.Total.Amount(), inv.Coverage.Amount(), inv.Discount.Amount(), inv.AmountPaid.Amount(),
		inv.Status, inv.DueDate, inv.Note, inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt)
	return db.Classify(err, "insert invoice")
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := r.scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE id = $1`, id))
	return inv, db.Classify(err, "invoice")
}

func (r *invoiceRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := r.scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE id = $1 FOR UPDATE`, id))
	return inv, db.Classify(err, "invoice")
}

func (r *invoiceRepoPG) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	inv, err := r.scanInvoice(r.conn(ctx).QueryRow(ctx, `SELECT `+invCols+` FROM invoice WHERE invoice_number = $1`, number))
	return inv, db.Classify(err, "invoice")
}

func (r *invoiceRepoPG) Update(ctx context.Context, inv *Invoice) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE invoice SET total=$2, coverage=$3, discount=$4, amount_paid=$5, status=$6,
			validated_at=$7, cancelled_at=$8, updated_at=$9
		WHERE id = $1`,
		inv.ID, inv.Total.Amount(), inv.Coverage.Amount(), inv.Discount.Amount(), inv.AmountPaid.Amount(),
		inv.Status, inv.ValidatedAt, inv.CancelledAt, inv.UpdatedAt)
	return db.Classify(err, "update invoice")
}

// buildInvoiceWhere is the only place an InvoiceFilter becomes SQL.
func buildInvoiceWhere(f InvoiceFilter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at < $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *invoiceRepoPG) List(ctx context.Context, f InvoiceFilter, limit, offset int) ([]*Invoice, int, error) {
	where, args := buildInvoiceWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM invoice`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count invoices")
	}

	query := fmt.Sprintf(`SELECT %s FROM invoice%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		invCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, db.Classify(err, "list invoices")
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := r.scanInvoice(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan invoice")
		}
		items = append(items, inv)
	}
	return items, total, db.Classify(rows.Err(), "list invoices")
}

// -- Line Items --

func (r *invoiceRepoPG) AddLineItem(ctx context.Context, li *InvoiceLineItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO invoice_line_item (id, invoice_id, service_id, medication_id, description,
			quantity, unit_price, total_price, insurance_coverage, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		li.ID, li.InvoiceID, li.ServiceID, li.MedicationID, li.Description,
		li.Quantity, li.UnitPrice.Amount(), li.TotalPrice.Amount(), li.InsuranceCoverage.Amount(), li.CreatedAt)
	return db.Classify(err, "insert line item")
}

func (r *invoiceRepoPG) GetLineItems(ctx context.Context, invoiceID uuid.UUID) ([]*InvoiceLineItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT li.id, li.invoice_id, li.service_id, li.medication_id, li.description, li.quantity,
			li.unit_price, li.total_price, li.insurance_coverage, li.created_at, i.currency
		FROM invoice_line_item li JOIN invoice i ON i.id = li.invoice_id
		WHERE li.invoice_id = $1 ORDER BY li.created_at, li.id`, invoiceID)
	if err != nil {
		return nil, db.Classify(err, "list line items")
	}
	defer rows.Close()
	var items []*InvoiceLineItem
	for rows.Next() {
		var li InvoiceLineItem
		var unit, total, coverage decimal.Decimal
		var currency string
		if err := rows.Scan(&li.ID, &li.InvoiceID, &li.ServiceID, &li.MedicationID, &li.Description, &li.Quantity,
			&unit, &total, &coverage, &li.CreatedAt, &currency); err != nil {
			return nil, db.Classify(err, "scan line item")
		}
		li.UnitPrice = money.New(unit, currency)
		li.TotalPrice = money.New(total, currency)
		li.InsuranceCoverage = money.New(coverage, currency)
		items = append(items, &li)
	}
	return items, db.Classify(rows.Err(), "list line items")
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment (id, invoice_id, amount, currency, method, reference, note, received_by, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.InvoiceID, p.Amount.Amount(), p.Amount.Currency(), p.Method, p.Reference, p.Note,
		p.ReceivedBy, p.ReceivedAt)
	return db.Classify(err, "insert payment")
}

func (r *paymentRepoPG) ListByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, invoice_id, amount, currency, method, reference, note, received_by, received_at
		FROM payment WHERE invoice_id = $1 ORDER BY received_at, id`, invoiceID)
	if err != nil {
		return nil, db.Classify(err, "list payments")
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var (
			p        Payment
			amount   decimal.Decimal
			currency string
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &currency, &p.Method, &p.Reference, &p.Note,
			&p.ReceivedBy, &p.ReceivedAt); err != nil {
			return nil, db.Classify(err, "scan payment")
		}
		p.Amount = money.New(amount, currency)
		items = append(items, &p)
	}
	return items, db.Classify(rows.Err(), "list payments")
}

func (r *paymentRepoPG) SumByInvoice(ctx context.Context, invoiceID uuid.UUID, currency string) (money.Money, error) {
	var sum decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payment WHERE invoice_id = $1`, invoiceID).Scan(&sum)
	if err != nil {
		return money.Money{}, db.Classify(err, "sum payments")
	}
	return money.New(sum, currency), nil
}
