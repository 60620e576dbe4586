package reporting

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/pkg/money"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) RevenueByMethod(ctx context.Context, w Window) (map[string]money.Money, error) {
	return s.totalsBy(ctx, "revenue by method", `
		SELECT method, SUM(amount) FROM payment
		WHERE currency = $1 AND received_at >= $2 AND received_at < $3
		GROUP BY method`, w)
}

func (s *pgStore) ExpensesByCategory(ctx context.Context, w Window) (map[string]money.Money, error) {
	return s.totalsBy(ctx, "expenses by category", `
		SELECT category, SUM(amount) FROM expense
		WHERE currency = $1 AND expense_date >= $2::date AND expense_date < $3::date
		GROUP BY category`, w)
}

func (s *pgStore) CommissionsByStatus(ctx context.Context, w Window) (map[string]money.Money, error) {
	return s.totalsBy(ctx, "commissions by status", `
		SELECT status, SUM(commission_amount) FROM commission
		WHERE currency = $1 AND period >= to_char($2::timestamptz, 'YYYY-MM')
			AND period <= to_char($3::timestamptz - interval '1 microsecond', 'YYYY-MM')
		GROUP BY status`, w)
}

func (s *pgStore) Outstanding(ctx context.Context, w Window) (money.Money, error) {
	var total decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total - coverage - discount - amount_paid), 0) FROM invoice
		WHERE currency = $1 AND status IN ('validated', 'partially_paid')
			AND created_at >= $2 AND created_at < $3`,
		w.Currency, w.From, w.To).Scan(&total)
	if err != nil {
		return money.Money{}, db.Classify(err, "outstanding balance")
	}
	return money.New(total, w.Currency), nil
}

func (s *pgStore) totalsBy(ctx context.Context, what, sql string, w Window) (map[string]money.Money, error) {
	rows, err := s.pool.Query(ctx, sql, w.Currency, w.From, w.To)
	if err != nil {
		return nil, db.Classify(err, what)
	}
	defer rows.Close()

	out := make(map[string]money.Money)
	for rows.Next() {
		var key string
		var amount decimal.Decimal
		if err := rows.Scan(&key, &amount); err != nil {
			return nil, db.Classify(err, what)
		}
		out[key] = money.New(amount, w.Currency)
	}
	return out, db.Classify(rows.Err(), what)
}

// Query runs a measure and returns its rows as column maps.
func (s *pgStore) Query(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(err, "evaluate measure")
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, db.Classify(err, "evaluate measure")
		}
		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	return results, db.Classify(rows.Err(), "evaluate measure")
}
