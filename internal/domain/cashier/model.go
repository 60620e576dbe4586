package cashier

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/money"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusOpen, StatusClosed:
		return st, nil
	}
	return "", apperr.New(apperr.Validation, "invalid cash session status: %s", s)
}

// Session is one actor's cash drawer between opening and closing. The
// closing figures are nil while the session is open.
type Session struct {
	ID              uuid.UUID    `json:"id"`
	ActorID         uuid.UUID    `json:"actor_id"`
	OpeningBalance  money.Money  `json:"opening_balance"`
	CashTotal       money.Money  `json:"cash_total"`
	ClosingBalance  *money.Money `json:"closing_balance,omitempty"`
	ExpectedBalance *money.Money `json:"expected_balance,omitempty"`
	Variance        *money.Money `json:"variance,omitempty"`
	Status          Status       `json:"status"`
	Note            *string      `json:"note,omitempty"`
	OpenedAt        time.Time    `json:"opened_at"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty"`
	ClosedBy        *uuid.UUID   `json:"closed_by,omitempty"`
}

type SessionFilter struct {
	ActorID *uuid.UUID
	Status  Status
	From    *time.Time
	To      *time.Time
}

func (s *Session) Currency() string { return s.OpeningBalance.Currency() }

// Expected is the balance the drawer should hold: opening plus cash received.
func (s *Session) Expected() money.Money {
	return money.New(s.OpeningBalance.Amount().Add(s.CashTotal.Amount()), s.Currency())
}

// NewSession opens a drawer with opening as its starting balance.
func NewSession(actorID uuid.UUID, opening money.Money, note *string, now time.Time) (*Session, error) {
	if opening.IsNegative() {
		return nil, apperr.New(apperr.InvalidAmount, "opening balance must not be negative")
	}
	return &Session{
		ID:             uuid.New(),
		ActorID:        actorID,
		OpeningBalance: opening,
		CashTotal:      money.Zero(opening.Currency()),
		Status:         StatusOpen,
		Note:           note,
		OpenedAt:       now,
	}, nil
}

// Record adds a cash receipt to the running total.
func (s *Session) Record(amount money.Money) error {
	if s.Status != StatusOpen {
		return apperr.New(apperr.AlreadyClosed, "cash session %s is closed", s.ID)
	}
	total, err := s.CashTotal.Add(amount)
	if err != nil {
		return apperr.Wrap(apperr.InvalidAmount, err, "cash session is kept in %s", s.Currency())
	}
	s.CashTotal = total
	return nil
}

// Close counts the drawer. A variance of any sign is recorded, never rejected.
func (s *Session) Close(closing money.Money, closedBy uuid.UUID, note *string, now time.Time) error {
	if s.Status != StatusOpen {
		return apperr.New(apperr.AlreadyClosed, "cash session %s is already closed", s.ID)
	}
	if closing.IsNegative() {
		return apperr.New(apperr.InvalidAmount, "closing balance must not be negative")
	}
	if closing.Currency() != s.Currency() {
		return apperr.New(apperr.InvalidAmount, "closing balance must be in %s", s.Currency())
	}

	expected := s.Expected()
	variance, err := closing.Sub(expected)
	if err != nil {
		return apperr.Wrap(apperr.InvalidAmount, err, "compute variance")
	}
	s.ClosingBalance = &closing
	s.ExpectedBalance = &expected
	s.Variance = &variance
	s.Status = StatusClosed
	s.ClosedAt = &now
	s.ClosedBy = &closedBy
	if note != nil {
		s.Note = note
	}
	return nil
}
