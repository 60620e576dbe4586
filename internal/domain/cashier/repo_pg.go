package cashier

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/money"
)

const openSessionConstraint = "cash_session_one_open_per_actor"

type sessionRepoPG struct{ pool *pgxpool.Pool }

func NewSessionRepoPG(pool *pgxpool.Pool) SessionRepository { return &sessionRepoPG{pool: pool} }

func (r *sessionRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const sessionCols = `id, actor_id, currency, opening_balance, cash_total,
	closing_balance, expected_balance, variance, status, note,
	opened_at, closed_at, closed_by`

func (r *sessionRepoPG) scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var currency string
	var opening, cash decimal.Decimal
	var closing, expected, variance decimal.NullDecimal
	err := row.Scan(&s.ID, &s.ActorID, &currency, &opening, &cash,
		&closing, &expected, &variance, &s.Status, &s.Note,
		&s.OpenedAt, &s.ClosedAt, &s.ClosedBy)
	if err != nil {
		return nil, err
	}
	s.OpeningBalance = money.New(opening, currency)
	s.CashTotal = money.New(cash, currency)
	s.ClosingBalance = optionalMoney(closing, currency)
	s.ExpectedBalance = optionalMoney(expected, currency)
	s.Variance = optionalMoney(variance, currency)
	return &s, nil
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

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cash_session (id, actor_id, currency, opening_balance, cash_total, status, note, opened_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.ActorID, s.Currency(), s.OpeningBalance.Amount(), s.CashTotal.Amount(),
		s.Status, s.Note, s.OpenedAt)
	if db.IsUniqueViolation(err, openSessionConstraint) {
		return apperr.Wrap(apperr.AlreadyOpen, err, "a cash session is already open for this actor")
	}
	return db.Classify(err, "insert cash session")
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM cash_session WHERE id = $1`, id))
	return s, db.Classify(err, "cash session")
}

func (r *sessionRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := r.scanSession(r.conn(ctx).QueryRow(ctx, `SELECT `+sessionCols+` FROM cash_session WHERE id = $1 FOR UPDATE`, id))
	return s, db.Classify(err, "cash session")
}

func (r *sessionRepoPG) GetOpenByActor(ctx context.Context, actorID uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionCols + ` FROM cash_session WHERE actor_id = $1 AND status = 'open'`
	if db.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	s, err := r.scanSession(r.conn(ctx).QueryRow(ctx, query, actorID))
	return s, db.Classify(err, "open cash session")
}

func (r *sessionRepoPG) Update(ctx context.Context, s *Session) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE cash_session SET cash_total=$2, closing_balance=$3, expected_balance=$4, variance=$5,
			status=$6, note=$7, closed_at=$8, closed_by=$9
		WHERE id = $1`,
		s.ID, s.CashTotal.Amount(), nullable(s.ClosingBalance), nullable(s.ExpectedBalance), nullable(s.Variance),
		s.Status, s.Note, s.ClosedAt, s.ClosedBy)
	return db.Classify(err, "update cash session")
}

func buildSessionWhere(f SessionFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != nil {
		add("opened_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("opened_at < $%d", *f.To)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *sessionRepoPG) List(ctx context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error) {
	where, args := buildSessionWhere(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cash_session`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count cash sessions")
	}

	query := fmt.Sprintf(`SELECT %s FROM cash_session%s ORDER BY opened_at DESC, id LIMIT $%d OFFSET $%d`,
		sessionCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, db.Classify(err, "list cash sessions")
	}
	defer rows.Close()

	var items []*Session
	for rows.Next() {
		s, err := r.scanSession(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan cash session")
		}
		items = append(items, s)
	}
	return items, total, db.Classify(rows.Err(), "list cash sessions")
}
