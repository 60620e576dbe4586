package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey{}, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Errorf("expected nil tx for wrong type, got %v", tx)
	}
}

func TestNoTx_RunsFn(t *testing.T) {
	called := false
	err := NoTx{}.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}

	boom := errors.New("boom")
	if err := (NoTx{}).WithTx(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("expected fn error to propagate, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "cash_session_one_open_per_actor"}

	if !IsUniqueViolation(err, "") {
		t.Error("expected any-constraint match")
	}
	if !IsUniqueViolation(err, "cash_session_one_open_per_actor") {
		t.Error("expected named constraint match")
	}
	if IsUniqueViolation(err, "invoice_number_key") {
		t.Error("expected mismatch on other constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("plain error is not a unique violation")
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil, "invoice") != nil {
		t.Error("expected nil for nil error")
	}

	err := Classify(pgx.ErrNoRows, "invoice")
	if !errors.Is(err, apperr.NotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if apperr.MessageOf(err) != "invoice not found" {
		t.Errorf("unexpected message %q", apperr.MessageOf(err))
	}

	if err := Classify(errors.New("conn reset"), "invoice"); !errors.Is(err, apperr.Persistence) {
		t.Errorf("expected persistence, got %v", err)
	}

	typed := apperr.New(apperr.AlreadyOpen, "open")
	if err := Classify(typed, "cash session"); !errors.Is(err, apperr.AlreadyOpen) {
		t.Errorf("expected kind to pass through, got %v", err)
	}
}
