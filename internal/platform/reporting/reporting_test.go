package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/money"
)

type fakeStore struct {
	revenue     map[string]money.Money
	expenses    map[string]money.Money
	outstanding money.Money
	commissions map[string]money.Money
	rows        []map[string]interface{}

	lastWindow Window
	lastSQL    string
	lastArgs   []interface{}
}

func (f *fakeStore) RevenueByMethod(_ context.Context, w Window) (map[string]money.Money, error) {
	f.lastWindow = w
	return f.revenue, nil
}

func (f *fakeStore) ExpensesByCategory(_ context.Context, _ Window) (map[string]money.Money, error) {
	return f.expenses, nil
}

func (f *fakeStore) Outstanding(_ context.Context, _ Window) (money.Money, error) {
	return f.outstanding, nil
}

func (f *fakeStore) CommissionsByStatus(_ context.Context, _ Window) (map[string]money.Money, error) {
	return f.commissions, nil
}

func (f *fakeStore) Query(_ context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	f.lastSQL, f.lastArgs = sql, args
	return f.rows, nil
}

func eur(s string) money.Money { return money.MustParse(s, "EUR") }

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	svc := NewService(store, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func accountant() auth.Actor { return auth.NewActor(uuid.New(), auth.RoleAccountant) }

func TestPredefinedMeasures(t *testing.T) {
	expectedIDs := []string{
		"invoice-status-breakdown",
		"daily-revenue",
		"open-cash-sessions",
		"commissions-by-practitioner",
	}
	if len(PredefinedMeasures) != len(expectedIDs) {
		t.Fatalf("expected %d predefined measures, got %d", len(expectedIDs), len(PredefinedMeasures))
	}
	for i, id := range expectedIDs {
		if PredefinedMeasures[i].ID != id {
			t.Errorf("expected measure[%d].ID = %s, got %s", i, id, PredefinedMeasures[i].ID)
		}
	}
	for _, m := range PredefinedMeasures {
		if m.SQL == "" || m.Name == "" || m.Description == "" {
			t.Errorf("measure %s is incomplete", m.ID)
		}
		for i := range m.Parameters {
			placeholder := "$" + string(rune('1'+i))
			if !strings.Contains(m.SQL, placeholder) {
				t.Errorf("measure %s does not bind %s", m.ID, placeholder)
			}
		}
	}
}

func TestFindMeasure(t *testing.T) {
	if m := FindMeasure("daily-revenue"); m == nil || m.Name != "Daily Revenue" {
		t.Errorf("unexpected measure %+v", m)
	}
	if FindMeasure("nonexistent") != nil {
		t.Error("expected nil for nonexistent measure")
	}
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC))
	if !from.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) || !to.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected window %s - %s", from, to)
	}
}

func TestFinancial(t *testing.T) {
	store := &fakeStore{
		revenue:     map[string]money.Money{"cash": eur("120.00"), "card": eur("80.50")},
		expenses:    map[string]money.Money{"rent": eur("150.00"), "supplies": eur("20.25")},
		outstanding: eur("35.00"),
		commissions: map[string]money.Money{"due": eur("12.00")},
	}
	svc := newTestService(store)
	from, to := MonthWindow(testNow)

	r, err := svc.Financial(context.Background(), accountant(), Window{From: from, To: to, Currency: "EUR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	checks := map[string]money.Money{
		"200.50": r.TotalRevenue,
		"170.25": r.TotalExpenses,
		"30.25":  r.Net,
		"35.00":  r.Outstanding,
		"12.00":  r.CommissionsDue,
		"0.00":   r.CommissionsPaid,
	}
	for want, got := range checks {
		if got.StringFixed() != want || got.Currency() != "EUR" {
			t.Errorf("expected %s EUR, got %s", want, got)
		}
	}
	if store.lastWindow.Currency != "EUR" {
		t.Errorf("expected window currency EUR, got %s", store.lastWindow.Currency)
	}
}

func TestFinancial_NegativeNet(t *testing.T) {
	svc := newTestService(&fakeStore{
		expenses:    map[string]money.Money{"rent": eur("10.00")},
		outstanding: eur("0"),
	})
	from, to := MonthWindow(testNow)
	r, err := svc.Financial(context.Background(), accountant(), Window{From: from, To: to, Currency: "EUR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Net.StringFixed() != "-10.00" {
		t.Errorf("expected -10.00, got %s", r.Net)
	}
}

func TestFinancial_Rejections(t *testing.T) {
	svc := newTestService(&fakeStore{})
	from, to := MonthWindow(testNow)

	if _, err := svc.Financial(context.Background(), auth.NewActor(uuid.New(), auth.RoleCashier), Window{From: from, To: to, Currency: "EUR"}); !errors.Is(err, apperr.Forbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := svc.Financial(context.Background(), accountant(), Window{From: to, To: from, Currency: "EUR"}); !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := svc.Financial(context.Background(), accountant(), Window{From: from, To: to, Currency: "EURO"}); !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestEvaluateMeasure(t *testing.T) {
	store := &fakeStore{rows: []map[string]interface{}{{"status": "due", "total": 3}}}
	svc := newTestService(store)

	report, err := svc.EvaluateMeasure(context.Background(), accountant(), "commissions-by-practitioner", map[string]string{"period": "2026-05", "ignored": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 1 || report.Parameters["period"] != "2026-05" {
		t.Errorf("unexpected report %+v", report)
	}
	if _, ok := report.Parameters["ignored"]; ok {
		t.Error("unknown parameters must not be echoed")
	}
	if len(store.lastArgs) != 1 || store.lastArgs[0] != "2026-05" {
		t.Errorf("unexpected args %v", store.lastArgs)
	}
}

func TestEvaluateMeasure_Rejections(t *testing.T) {
	svc := newTestService(&fakeStore{})
	ctx := context.Background()

	if _, err := svc.EvaluateMeasure(ctx, accountant(), "nope", nil); !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := svc.EvaluateMeasure(ctx, accountant(), "daily-revenue", map[string]string{"from": "2026-05-01"}); !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation error for missing to, got %v", err)
	}
	if _, err := svc.EvaluateMeasure(ctx, accountant(), "daily-revenue", map[string]string{"from": "May", "to": "2026-06-01"}); !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation error for bad from, got %v", err)
	}
	if _, err := svc.EvaluateMeasure(ctx, accountant(), "commissions-by-practitioner", map[string]string{"period": "2026-5"}); !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation error for bad period, got %v", err)
	}
}

func TestHandler_Financial_DefaultsToMonth(t *testing.T) {
	store := &fakeStore{outstanding: eur("0")}
	h := NewHandler(newTestService(store), "EUR")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports/financial", nil)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.New().String(), []string{auth.RoleAccountant}))
	rec := httptest.NewRecorder()

	if err := h.Financial(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["from"] != "2026-06-01T00:00:00Z" || body["to"] != "2026-07-01T00:00:00Z" {
		t.Errorf("unexpected window %v - %v", body["from"], body["to"])
	}
}

func TestHandler_Financial_Range(t *testing.T) {
	store := &fakeStore{outstanding: money.Zero("USD")}
	h := NewHandler(newTestService(store), "EUR")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/reports/financial?from=2026-01-01&to=2026-01-31&currency=usd", nil)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.New().String(), []string{auth.RoleSupervisor}))
	if err := h.Financial(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := store.lastWindow
	if w.Currency != "USD" || !w.To.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected window %+v", w)
	}
}

func TestHandler_ListMeasures(t *testing.T) {
	h := NewHandler(newTestService(&fakeStore{}), "EUR")
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/reports/measures", nil)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.New().String(), []string{auth.RoleDoctor}))
	if err := h.ListMeasures(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, apperr.Forbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/reports/measures", nil)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.New().String(), []string{auth.RoleAccountant}))
	rec := httptest.NewRecorder()
	if err := h.ListMeasures(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "SELECT") {
		t.Error("measure SQL must not be exposed")
	}
}
