// Package expense records clinic spending for the financial report.
package expense

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/pkg/money"
)

type Expense struct {
	ID            uuid.UUID      `json:"id"`
	Category      string         `json:"category"`
	Description   string         `json:"description"`
	Amount        money.Money    `json:"amount"`
	Supplier      *string        `json:"supplier,omitempty"`
	PaymentMethod billing.Method `json:"payment_method"`
	ReceiptNumber *string        `json:"receipt_number,omitempty"`
	ExpenseDate   time.Time      `json:"expense_date"`
	RecordedBy    uuid.UUID      `json:"recorded_by"`
	CreatedAt     time.Time      `json:"created_at"`
}

type Filter struct {
	Category string
	From     *time.Time
	To       *time.Time
}

type Input struct {
	Category      string
	Description   string
	Amount        money.Money
	Supplier      *string
	PaymentMethod string
	ReceiptNumber *string
	// ExpenseDate defaults to the current day.
	ExpenseDate *time.Time
}

type Repository interface {
	Create(ctx context.Context, e *Expense) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Expense, int, error)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "expense").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Record(ctx context.Context, actor auth.Actor, in Input) (*Expense, error) {
	if err := actor.Require(auth.CapExpenseWrite); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.New(apperr.InvalidAmount, "expense amount must be positive")
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		return nil, apperr.New(apperr.Validation, "category is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, apperr.New(apperr.Validation, "description is required")
	}
	method, err := billing.ParseMethod(in.PaymentMethod)
	if err != nil {
		return nil, err
	}

	now := s.now()
	day := now.Truncate(24 * time.Hour)
	if in.ExpenseDate != nil {
		day = *in.ExpenseDate
	}
	e := &Expense{
		ID:            uuid.New(),
		Category:      category,
		Description:   in.Description,
		Amount:        in.Amount,
		Supplier:      in.Supplier,
		PaymentMethod: method,
		ReceiptNumber: in.ReceiptNumber,
		ExpenseDate:   day,
		RecordedBy:    actor.ID,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("expense_id", e.ID.String()).
		Str("category", e.Category).
		Str("amount", e.Amount.String()).
		Msg("expense recorded")
	return e, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter, limit, offset int) ([]*Expense, int, error) {
	if err := actor.Require(auth.CapExpenseRead); err != nil {
		return nil, 0, err
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, apperr.New(apperr.Validation, "from must be before to")
	}
	f.Category = strings.ToLower(strings.TrimSpace(f.Category))
	return s.repo.List(ctx, f, limit, offset)
}
