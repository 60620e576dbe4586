package expense

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/money"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const cols = `id, category, description, amount, currency, supplier, payment_method,
	receipt_number, expense_date, recorded_by, created_at`

func scanExpense(row pgx.Row) (*Expense, error) {
	var e Expense
	var amount decimal.Decimal
	var currency string
	err := row.Scan(&e.ID, &e.Category, &e.Description, &amount, &currency, &e.Supplier, &e.PaymentMethod,
		&e.ReceiptNumber, &e.ExpenseDate, &e.RecordedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Amount = money.New(amount, currency)
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Expense) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO expense (id, category, description, amount, currency, supplier, payment_method,
			receipt_number, expense_date, recorded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.ID, e.Category, e.Description, e.Amount.Amount(), e.Amount.Currency(), e.Supplier, e.PaymentMethod,
		e.ReceiptNumber, e.ExpenseDate, e.RecordedBy, e.CreatedAt)
	return db.Classify(err, "insert expense")
}

func buildWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.From != nil {
		add("expense_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("expense_date < $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Expense, int, error) {
	where, args := buildWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM expense`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count expenses")
	}

	query := fmt.Sprintf(`SELECT %s FROM expense%s ORDER BY expense_date DESC, created_at DESC, id LIMIT $%d OFFSET $%d`,
		cols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, db.Classify(err, "list expenses")
	}
	defer rows.Close()
	var items []*Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan expense")
		}
		items = append(items, e)
	}
	return items, total, db.Classify(rows.Err(), "list expenses")
}
