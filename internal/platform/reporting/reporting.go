// Package reporting builds the financial report and the predefined measures
// read by accountants. Reports are JSON only.
package reporting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/money"
)

// MeasureDefinition defines a reporting measure with its SQL query. Parameters
// are bound to $1..$n in order.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"-"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "invoice-status-breakdown",
		Name:        "Invoice Status Breakdown",
		Description: "Number of invoices and patient due per status and currency",
		SQL: `SELECT status, currency, COUNT(*) AS total,
			SUM(total - coverage - discount) AS patient_due, SUM(amount_paid) AS amount_paid
			FROM invoice GROUP BY status, currency ORDER BY status, currency`,
		Parameters: []string{},
	},
	{
		ID:          "daily-revenue",
		Name:        "Daily Revenue",
		Description: "Payments received per day and method between from and to",
		SQL: `SELECT received_at::date AS day, method, currency, COUNT(*) AS payments, SUM(amount) AS total
			FROM payment WHERE received_at >= $1::timestamptz AND received_at < $2::timestamptz
			GROUP BY 1, 2, 3 ORDER BY 1, 2, 3`,
		Parameters: []string{"from", "to"},
	},
	{
		ID:          "open-cash-sessions",
		Name:        "Open Cash Sessions",
		Description: "Cash drawers currently open with their running cash total",
		SQL: `SELECT id, actor_id, opened_at, currency, opening_balance, cash_total
			FROM cash_session WHERE status = 'open' ORDER BY opened_at`,
		Parameters: []string{},
	},
	{
		ID:          "commissions-by-practitioner",
		Name:        "Commissions by Practitioner",
		Description: "Commission totals per practitioner and status for a period",
		SQL: `SELECT p.id AS practitioner_id, p.first_name, p.last_name, c.status, c.currency,
			COUNT(*) AS acts, SUM(c.commission_amount) AS total
			FROM commission c JOIN practitioner p ON p.id = c.practitioner_id
			WHERE c.period = $1
			GROUP BY p.id, p.first_name, p.last_name, c.status, c.currency
			ORDER BY p.last_name, p.first_name, c.status`,
		Parameters: []string{"period"},
	},
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}

// FinancialReport summarises one currency over [From, To).
type FinancialReport struct {
	From               time.Time              `json:"from"`
	To                 time.Time              `json:"to"`
	Currency           string                 `json:"currency"`
	RevenueByMethod    map[string]money.Money `json:"revenue_by_method"`
	TotalRevenue       money.Money            `json:"total_revenue"`
	ExpensesByCategory map[string]money.Money `json:"expenses_by_category"`
	TotalExpenses      money.Money            `json:"total_expenses"`
	Net                money.Money            `json:"net"`
	Outstanding        money.Money            `json:"outstanding"`
	CommissionsDue     money.Money            `json:"commissions_due"`
	CommissionsPaid    money.Money            `json:"commissions_paid"`
	GeneratedAt        time.Time              `json:"generated_at"`
}

// Window is the report range and currency passed to a Store.
type Window struct {
	From     time.Time
	To       time.Time
	Currency string
}

// Store reads the aggregates behind the reports.
type Store interface {
	RevenueByMethod(ctx context.Context, w Window) (map[string]money.Money, error)
	ExpensesByCategory(ctx context.Context, w Window) (map[string]money.Money, error)
	// Outstanding is the unpaid patient due of validated and partially paid
	// invoices created in the window.
	Outstanding(ctx context.Context, w Window) (money.Money, error)
	// CommissionsByStatus covers the periods overlapping the window.
	CommissionsByStatus(ctx context.Context, w Window) (map[string]money.Money, error)
	Query(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
}

type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With().Str("component", "reporting").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// MonthWindow returns the calendar month containing t.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 1, 0)
}

func (s *Service) Financial(ctx context.Context, actor auth.Actor, w Window) (*FinancialReport, error) {
	if err := actor.Require(auth.CapReportRead); err != nil {
		return nil, err
	}
	if !w.From.Before(w.To) {
		return nil, apperr.New(apperr.Validation, "from must be before to")
	}
	if err := money.ValidateCurrency(w.Currency); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "invalid currency %q", w.Currency)
	}

	revenue, err := s.store.RevenueByMethod(ctx, w)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.ExpensesByCategory(ctx, w)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.store.Outstanding(ctx, w)
	if err != nil {
		return nil, err
	}
	commissions, err := s.store.CommissionsByStatus(ctx, w)
	if err != nil {
		return nil, err
	}

	r := &FinancialReport{
		From:               w.From,
		To:                 w.To,
		Currency:           w.Currency,
		RevenueByMethod:    revenue,
		ExpensesByCategory: expenses,
		Outstanding:        outstanding,
		CommissionsDue:     orZero(commissions, "due", w.Currency),
		CommissionsPaid:    orZero(commissions, "paid", w.Currency),
		GeneratedAt:        s.now(),
	}
	if r.TotalRevenue, err = sumValues(w.Currency, revenue); err != nil {
		return nil, err
	}
	if r.TotalExpenses, err = sumValues(w.Currency, expenses); err != nil {
		return nil, err
	}
	if r.Net, err = r.TotalRevenue.Sub(r.TotalExpenses); err != nil {
		return nil, apperr.Wrap(apperr.Persistence, err, "compute net")
	}

	s.logger.Debug().
		Time("from", w.From).
		Time("to", w.To).
		Str("net", r.Net.String()).
		Msg("financial report generated")
	return r, nil
}

// EvaluateMeasure runs measure id with params bound in declaration order.
func (s *Service) EvaluateMeasure(ctx context.Context, actor auth.Actor, id string, params map[string]string) (*MeasureReport, error) {
	if err := actor.Require(auth.CapReportRead); err != nil {
		return nil, err
	}
	measure := FindMeasure(id)
	if measure == nil {
		return nil, apperr.New(apperr.NotFound, "measure %s not found", id)
	}

	args := make([]interface{}, 0, len(measure.Parameters))
	used := make(map[string]string, len(measure.Parameters))
	for _, p := range measure.Parameters {
		v := params[p]
		if err := checkParam(p, v); err != nil {
			return nil, err
		}
		args = append(args, v)
		used[p] = v
	}

	results, err := s.store.Query(ctx, measure.SQL, args...)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []map[string]interface{}{}
	}
	return &MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: s.now(),
		Results:     results,
		Parameters:  used,
	}, nil
}

func checkParam(name, v string) error {
	if v == "" {
		return apperr.New(apperr.Validation, "%s is required", name)
	}
	switch name {
	case "period":
		if !validate.IsPeriod(v) {
			return apperr.New(apperr.Validation, "period must be YYYY-MM")
		}
	case "from", "to":
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return nil
		}
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return apperr.New(apperr.Validation, "%s must be YYYY-MM-DD or RFC 3339", name)
		}
	}
	return nil
}

func orZero(m map[string]money.Money, key, currency string) money.Money {
	if v, ok := m[key]; ok {
		return v
	}
	return money.Zero(currency)
}

func sumValues(currency string, m map[string]money.Money) (money.Money, error) {
	amounts := make([]money.Money, 0, len(m))
	for _, v := range m {
		amounts = append(amounts, v)
	}
	total, err := money.Sum(currency, amounts...)
	if err != nil {
		return money.Money{}, apperr.Wrap(apperr.Persistence, err, "sum report amounts")
	}
	return total, nil
}
