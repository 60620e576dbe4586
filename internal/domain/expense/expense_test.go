package expense

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/money"
)

type mockRepo struct {
	mu    sync.Mutex
	store []Expense
}

func (m *mockRepo) Create(_ context.Context, e *Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = append(m.store, *e)
	return nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Expense, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Expense
	for _, e := range m.store {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		e := e
		all = append(all, &e)
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	if end := offset + limit; end < total {
		return all[offset:end], total, nil
	}
	return all[offset:], total, nil
}

var testNow = time.Date(2026, 5, 2, 15, 4, 0, 0, time.UTC)

func newTestService() (*Service, *mockRepo) {
	repo := &mockRepo{}
	svc := NewService(repo, zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func accountant() auth.Actor { return auth.NewActor(uuid.New(), auth.RoleAccountant) }

func TestService_Record(t *testing.T) {
	svc, repo := newTestService()
	e, err := svc.Record(context.Background(), accountant(), Input{
		Category:      " Supplies ",
		Description:   "Gloves",
		Amount:        money.MustParse("42.10", "EUR"),
		PaymentMethod: "transfer",
	})
	require.NoError(t, err)
	assert.Equal(t, "supplies", e.Category)
	assert.Equal(t, billing.MethodTransfer, e.PaymentMethod)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), e.ExpenseDate)
	assert.Len(t, repo.store, 1)
}

func TestService_Record_Rejections(t *testing.T) {
	svc, repo := newTestService()
	base := Input{Category: "rent", Description: "May", Amount: money.MustParse("800", "EUR"), PaymentMethod: "transfer"}

	tests := []struct {
		name   string
		mutate func(in *Input)
		want   apperr.Kind
	}{
		{"zero amount", func(in *Input) { in.Amount = money.Zero("EUR") }, apperr.InvalidAmount},
		{"negative amount", func(in *Input) { in.Amount = money.MustParse("-1", "EUR") }, apperr.InvalidAmount},
		{"no category", func(in *Input) { in.Category = " " }, apperr.Validation},
		{"no description", func(in *Input) { in.Description = "" }, apperr.Validation},
		{"unknown method", func(in *Input) { in.PaymentMethod = "iou" }, apperr.InvalidMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			_, err := svc.Record(context.Background(), accountant(), in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, repo.store)

	_, err := svc.Record(context.Background(), auth.NewActor(uuid.New(), auth.RoleCashier), base)
	assert.ErrorIs(t, err, apperr.Forbidden)
}

func TestService_List(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, cat := range []string{"rent", "supplies", "supplies"} {
		_, err := svc.Record(ctx, accountant(), Input{Category: cat, Description: "x", Amount: money.MustParse("1", "EUR"), PaymentMethod: "cash"})
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, accountant(), Filter{Category: "Supplies"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	from, to := testNow, testNow.Add(-time.Hour)
	_, _, err = svc.List(ctx, accountant(), Filter{From: &from, To: &to}, 10, 0)
	assert.ErrorIs(t, err, apperr.Validation)
}

func TestBuildWhere(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildWhere(Filter{Category: "rent", From: &from})
	assert.Equal(t, " WHERE category = $1 AND expense_date >= $2", where)
	assert.Equal(t, []interface{}{"rent", from}, args)
}

func TestHandler_Record(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc, "EUR")
	e := echo.New()
	e.Validator = validate.New()

	tests := []struct {
		name string
		body string
		code int
		want apperr.Kind
	}{
		{"ok", `{"category":"rent","description":"May","amount":"800.00","payment_method":"transfer","expense_date":"2026-05-01"}`, http.StatusCreated, ""},
		{"missing method", `{"category":"rent","description":"May","amount":"800.00"}`, 0, apperr.Validation},
		{"bad date", `{"category":"rent","description":"May","amount":"1","payment_method":"cash","expense_date":"01/05/2026"}`, 0, apperr.Validation},
		{"bad amount", `{"category":"rent","description":"May","amount":"1.234","payment_method":"cash"}`, 0, apperr.InvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req = req.WithContext(auth.WithUser(req.Context(), uuid.New().String(), []string{auth.RoleAccountant}))
			rec := httptest.NewRecorder()
			err := h.Record(e.NewContext(req, rec))

			if tt.want != "" {
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %s, got %v", tt.want, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.code {
				t.Errorf("expected %d, got %d", tt.code, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), `"expense_date":"2026-05-01T00:00:00Z"`) {
				t.Errorf("unexpected body %s", rec.Body.String())
			}
		})
	}
}

func TestHandler_Record_BadDateWithoutValidator(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc, "EUR")
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(`{"category":"rent","description":"May","amount":"1","payment_method":"cash","expense_date":"May 1st"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithUser(req.Context(), uuid.New().String(), []string{auth.RoleAccountant}))
	if err := h.Record(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, apperr.Validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
