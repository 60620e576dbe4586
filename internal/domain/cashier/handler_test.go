package cashier

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	e := echo.New()
	e.Validator = validate.New()
	return NewHandler(svc, "EUR"), e
}

func newRequest(e *echo.Echo, method, body string, userID uuid.UUID, roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req = req.WithContext(auth.WithUser(req.Context(), userID.String(), roles))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_OpenAndClose(t *testing.T) {
	h, e := newTestHandler()
	user := uuid.New()

	c, rec := newRequest(e, http.MethodPost, `{"opening_balance":"50.00"}`, user, auth.RoleCashier)
	if err := h.Open(c); err != nil {
		t.Fatalf("open: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var opened map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &opened); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if opened["status"] != "open" {
		t.Errorf("expected open, got %v", opened["status"])
	}
	id := opened["id"].(string)

	c, _ = newRequest(e, http.MethodPost, `{"opening_balance":"10.00"}`, user, auth.RoleCashier)
	if err := h.Open(c); !errors.Is(err, apperr.AlreadyOpen) {
		t.Errorf("expected already open, got %v", err)
	}

	c, rec = newRequest(e, http.MethodGet, "", user, auth.RoleCashier)
	if err := h.Current(c); err != nil {
		t.Fatalf("current: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = newRequest(e, http.MethodPost, `{"closing_balance":"48.00"}`, user, auth.RoleCashier)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Close(c); err != nil {
		t.Fatalf("close: %v", err)
	}
	var closed struct {
		Status   string `json:"status"`
		Variance struct {
			Amount string `json:"amount"`
		} `json:"variance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if closed.Status != "closed" || closed.Variance.Amount != "-2.00" {
		t.Errorf("unexpected close result: %+v", closed)
	}

	c, _ = newRequest(e, http.MethodPost, `{"closing_balance":"48.00"}`, user, auth.RoleCashier)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Close(c); !errors.Is(err, apperr.AlreadyClosed) {
		t.Errorf("expected already closed, got %v", err)
	}
}

func TestHandler_Open_InvalidBody(t *testing.T) {
	h, e := newTestHandler()
	tests := []struct {
		name string
		body string
	}{
		{"missing balance", `{}`},
		{"three decimals", `{"opening_balance":"5.001"}`},
		{"bad currency", `{"opening_balance":"5","currency":"euro"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newRequest(e, http.MethodPost, tt.body, uuid.New(), auth.RoleCashier)
			if err := h.Open(c); !errors.Is(err, apperr.Validation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestHandler_Open_NegativeBalance(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newRequest(e, http.MethodPost, `{"opening_balance":"-5.00"}`, uuid.New(), auth.RoleCashier)
	if err := h.Open(c); !errors.Is(err, apperr.InvalidAmount) {
		t.Errorf("expected invalid amount, got %v", err)
	}
}

func TestHandler_Current_None(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newRequest(e, http.MethodGet, "", uuid.New(), auth.RoleCashier)
	if err := h.Current(c); !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestHandler_List_Forbidden(t *testing.T) {
	h, e := newTestHandler()
	c, _ := newRequest(e, http.MethodGet, "", uuid.New(), auth.RoleCashier)
	if err := h.List(c); !errors.Is(err, apperr.Forbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}
