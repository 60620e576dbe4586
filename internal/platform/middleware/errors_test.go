package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func renderError(t *testing.T, err error) (int, ErrorBody) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/api/v1/invoices", nil), rec)

	HTTPErrorHandler(zerolog.Nop())(err, c)

	var body ErrorBody
	if jerr := json.Unmarshal(rec.Body.Bytes(), &body); jerr != nil {
		t.Fatalf("decode body: %v (%s)", jerr, rec.Body.String())
	}
	return rec.Code, body
}

func TestHTTPErrorHandler_DomainKinds(t *testing.T) {
	tests := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.InvalidAmount, http.StatusBadRequest},
		{apperr.InvalidDiscount, http.StatusBadRequest},
		{apperr.MissingReference, http.StatusBadRequest},
		{apperr.InvalidConfig, http.StatusBadRequest},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.InvalidState, http.StatusConflict},
		{apperr.AlreadyOpen, http.StatusConflict},
		{apperr.AlreadyClosed, http.StatusConflict},
		{apperr.AlreadyFinalized, http.StatusConflict},
		{apperr.OverPayment, http.StatusUnprocessableEntity},
		{apperr.Forbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := fmt.Errorf("apply payment: %w", apperr.New(tt.kind, "detail for %s", tt.kind))
			status, body := renderError(t, err)
			if status != tt.status {
				t.Errorf("expected %d, got %d", tt.status, status)
			}
			if body.Error != string(tt.kind) {
				t.Errorf("expected error %q, got %q", tt.kind, body.Error)
			}
			if body.Message != "detail for "+string(tt.kind) {
				t.Errorf("unexpected message %q", body.Message)
			}
		})
	}
}

func TestHTTPErrorHandler_HidesPersistenceDetail(t *testing.T) {
	status, body := renderError(t, errors.New("pq: connection refused to 10.0.0.3"))
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	if body.Error != string(apperr.Persistence) || body.Message != "internal error" {
		t.Errorf("expected generic internal error, got %+v", body)
	}
}

func TestHTTPErrorHandler_EchoErrors(t *testing.T) {
	status, body := renderError(t, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header"))
	if status != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", status)
	}
	if body.Error != "unauthorized" || body.Message != "missing authorization header" {
		t.Errorf("unexpected body %+v", body)
	}

	status, body = renderError(t, echo.ErrNotFound)
	if status != http.StatusNotFound || body.Error != string(apperr.NotFound) {
		t.Errorf("expected not_found 404, got %d %+v", status, body)
	}
}
