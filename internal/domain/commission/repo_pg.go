package commission

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

// =========== Practitioner Repository ===========

type practitionerRepoPG struct{ pool *pgxpool.Pool }

func NewPractitionerRepoPG(pool *pgxpool.Pool) PractitionerRepository {
	return &practitionerRepoPG{pool: pool}
}

func (r *practitionerRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const practCols = `id, first_name, last_name, specialty, phone, email,
	commission_rate, fixed_amount, currency, active, created_at`

func (r *practitionerRepoPG) scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var rate, fixed decimal.NullDecimal
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Specialty, &p.Phone, &p.Email,
		&rate, &fixed, &p.Currency, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rate.Valid {
		p.CommissionRate = &rate.Decimal
	}
	p.FixedAmount = optionalMoney(fixed, p.Currency)
	return &p, nil
}

func (r *practitionerRepoPG) Create(ctx context.Context, p *Practitioner) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO practitioner (id, first_name, last_name, specialty, phone, email,
			commission_rate, fixed_amount, currency, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.FirstName, p.LastName, p.Specialty, p.Phone, p.Email,
		p.CommissionRate, nullable(p.FixedAmount), p.Currency, p.Active, p.CreatedAt)
	return db.Classify(err, "insert practitioner")
}

func (r *practitionerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	p, err := r.scanPractitioner(r.conn(ctx).QueryRow(ctx, `SELECT `+practCols+` FROM practitioner WHERE id = $1`, id))
	return p, db.Classify(err, "practitioner")
}

func (r *practitionerRepoPG) List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Practitioner, int, error) {
	where := ""
	if activeOnly {
		where = " WHERE active"
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM practitioner`+where).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count practitioners")
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+practCols+` FROM practitioner`+where+
		` ORDER BY last_name, first_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, db.Classify(err, "list practitioners")
	}
	defer rows.Close()
	var items []*Practitioner
	for rows.Next() {
		p, err := r.scanPractitioner(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan practitioner")
		}
		items = append(items, p)
	}
	return items, total, db.Classify(rows.Err(), "list practitioners")
}

// =========== Commission Repository ===========

type commissionRepoPG struct{ pool *pgxpool.Pool }

func NewCommissionRepoPG(pool *pgxpool.Pool) CommissionRepository {
	return &commissionRepoPG{pool: pool}
}

func (r *commissionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const commCols = `id, practitioner_id, invoice_id, service_id, period, currency,
	base_amount, rate, fixed_amount, commission_amount, status, calculated_at, paid_at`

func (r *commissionRepoPG) scanCommission(row pgx.Row) (*Commission, error) {
	var c Commission
	var currency string
	var base, amount decimal.Decimal
	var rate, fixed decimal.NullDecimal
	err := row.Scan(&c.ID, &c.PractitionerID, &c.InvoiceID, &c.ServiceID, &c.Period, &currency,
		&base, &rate, &fixed, &amount, &c.Status, &c.CalculatedAt, &c.PaidAt)
	if err != nil {
		return nil, err
	}
	c.BaseAmount = money.New(base, currency)
	c.Amount = money.New(amount, currency)
	if rate.Valid {
		c.Rate = &rate.Decimal
	}
	c.FixedAmount = optionalMoney(fixed, currency)
	return &c, nil
}

func (r *commissionRepoPG) Create(ctx context.Context, c *Commission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO commission (id, practitioner_id, invoice_id, service_id, period, currency,
			base_amount, rate, fixed_amount, commission_amount, status, calculated_at, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.PractitionerID, c.InvoiceID, c.ServiceID, c.Period, c.Amount.Currency(),
		c.BaseAmount.Amount(), c.Rate, nullable(c.FixedAmount), c.Amount.Amount(),
		c.Status, c.CalculatedAt, c.PaidAt)
	return db.Classify(err, "insert commission")
}

func (r *commissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Commission, error) {
	c, err := r.scanCommission(r.conn(ctx).QueryRow(ctx, `SELECT `+commCols+` FROM commission WHERE id = $1`, id))
	return c, db.Classify(err, "commission")
}

func (r *commissionRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Commission, error) {
	c, err := r.scanCommission(r.conn(ctx).QueryRow(ctx, `SELECT `+commCols+` FROM commission WHERE id = $1 FOR UPDATE`, id))
	return c, db.Classify(err, "commission")
}

func (r *commissionRepoPG) FindByKey(ctx context.Context, k Key) (*Commission, error) {
	query := `SELECT ` + commCols + ` FROM commission
		WHERE practitioner_id = $1
			AND invoice_id IS NOT DISTINCT FROM $2
			AND service_id IS NOT DISTINCT FROM $3
			AND period = $4`
	if db.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	c, err := r.scanCommission(r.conn(ctx).QueryRow(ctx, query, k.PractitionerID, k.InvoiceID, k.ServiceID, k.Period))
	return c, db.Classify(err, "commission")
}

func (r *commissionRepoPG) Update(ctx context.Context, c *Commission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE commission SET base_amount=$2, rate=$3, fixed_amount=$4, commission_amount=$5,
			status=$6, calculated_at=$7, paid_at=$8
		WHERE id = $1`,
		c.ID, c.BaseAmount.Amount(), c.Rate, nullable(c.FixedAmount), c.Amount.Amount(),
		c.Status, c.CalculatedAt, c.PaidAt)
	return db.Classify(err, "update commission")
}

func buildCommissionWhere(f Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Period != "" {
		add("period = $%d", f.Period)
	}
	if f.PractitionerID != nil {
		add("practitioner_id = $%d", *f.PractitionerID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *commissionRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Commission, int, error) {
	where, args := buildCommissionWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM commission`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count commissions")
	}

	query := fmt.Sprintf(`SELECT %s FROM commission%s ORDER BY period DESC, calculated_at DESC, id LIMIT $%d OFFSET $%d`,
		commCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, db.Classify(err, "list commissions")
	}
	defer rows.Close()
	var items []*Commission
	for rows.Next() {
		c, err := r.scanCommission(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan commission")
		}
		items = append(items, c)
	}
	return items, total, db.Classify(rows.Err(), "list commissions")
}

func optionalMoney(d decimal.NullDecimal, currency string) *money.Money {
	if !d.Valid {
		return nil
	}
	m := money.New(d.Decimal, currency)
	return &m
}

func nullable(m *money.Money) interface{} {
	if m == nil {
		return nil
	}
	return m.Amount()
}
