package commission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/money"
)

type Service struct {
	practitioners PractitionerRepository
	commissions   CommissionRepository
	tx            db.TxRunner
	locks         lock.Locker
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(practitioners PractitionerRepository, commissions CommissionRepository, tx db.TxRunner, locks lock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		practitioners: practitioners,
		commissions:   commissions,
		tx:            tx,
		locks:         locks,
		logger:        logger.With().Str("component", "commission").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// -- Practitioners --

type PractitionerInput struct {
	FirstName      string
	LastName       string
	Specialty      *string
	Phone          *string
	Email          *string
	CommissionRate *decimal.Decimal
	FixedAmount    *money.Money
	Currency       string
}

func (s *Service) CreatePractitioner(ctx context.Context, actor auth.Actor, in PractitionerInput) (*Practitioner, error) {
	if err := actor.Require(auth.CapCommissionWrite); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, apperr.New(apperr.Validation, "first_name and last_name are required")
	}
	cfg := Config{Rate: in.CommissionRate, Fixed: in.FixedAmount}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if in.FixedAmount != nil && in.FixedAmount.Currency() != in.Currency {
		return nil, apperr.New(apperr.InvalidConfig, "fixed amount must be in %s", in.Currency)
	}

	p := &Practitioner{
		ID:             uuid.New(),
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Specialty:      in.Specialty,
		Phone:          in.Phone,
		Email:          in.Email,
		CommissionRate: in.CommissionRate,
		FixedAmount:    in.FixedAmount,
		Currency:       in.Currency,
		Active:         true,
		CreatedAt:      s.now(),
	}
	if err := s.practitioners.Create(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("practitioner_id", p.ID.String()).Msg("practitioner created")
	return p, nil
}

func (s *Service) GetPractitioner(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Practitioner, error) {
	if err := actor.Require(auth.CapCommissionRead); err != nil {
		return nil, err
	}
	return s.practitioners.GetByID(ctx, id)
}

func (s *Service) ListPractitioners(ctx context.Context, actor auth.Actor, activeOnly bool, limit, offset int) ([]*Practitioner, int, error) {
	if err := actor.Require(auth.CapCommissionRead); err != nil {
		return nil, 0, err
	}
	return s.practitioners.List(ctx, activeOnly, limit, offset)
}

// -- Commissions --

// Input is one billable act to commission in a period.
type Input struct {
	PractitionerID uuid.UUID
	InvoiceID      *uuid.UUID
	ServiceID      *uuid.UUID
	BaseAmount     money.Money
}

// Calculate computes and stores the commission for a single act.
func (s *Service) Calculate(ctx context.Context, actor auth.Actor, period string, in Input) (*Commission, error) {
	out, err := s.CalculatePeriod(ctx, actor, period, []Input{in})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// CalculatePeriod upserts the commissions of period in one transaction.
// Running it again recomputes due commissions in place; a paid commission
// fails the whole batch with AlreadyFinalized.
func (s *Service) CalculatePeriod(ctx context.Context, actor auth.Actor, period string, inputs []Input) ([]*Commission, error) {
	if err := actor.Require(auth.CapCommissionWrite); err != nil {
		return nil, err
	}
	if !validate.IsPeriod(period) {
		return nil, apperr.New(apperr.InvalidConfig, "period %q must be YYYY-MM", period)
	}
	if len(inputs) == 0 {
		return nil, apperr.New(apperr.Validation, "at least one commission input is required")
	}

	release, err := s.locks.Lock(ctx, "commissions:"+period)
	if err != nil {
		return nil, fmt.Errorf("lock period: %w", err)
	}
	defer release()

	var out []*Commission
	var created, recomputed int
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		out = out[:0]
		created, recomputed = 0, 0
		practitioners := make(map[uuid.UUID]*Practitioner)
		now := s.now()

		for i, in := range inputs {
			p, ok := practitioners[in.PractitionerID]
			if !ok {
				var err error
				if p, err = s.practitioners.GetByID(ctx, in.PractitionerID); err != nil {
					return fmt.Errorf("input %d: %w", i, err)
				}
				practitioners[p.ID] = p
			}
			if !p.Active {
				return apperr.New(apperr.InvalidConfig, "input %d: practitioner %s is inactive", i, p.ID)
			}
			if in.BaseAmount.Currency() != p.Currency {
				return apperr.New(apperr.InvalidAmount, "input %d: base amount must be in %s", i, p.Currency)
			}

			next, err := Calculate(p.Config(), in.BaseAmount, period, now)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			next.PractitionerID = p.ID
			next.InvoiceID = in.InvoiceID
			next.ServiceID = in.ServiceID

			existing, err := s.commissions.FindByKey(ctx, next.Key())
			switch {
			case err == nil:
				if err := existing.Recalculate(next); err != nil {
					return err
				}
				if err := s.commissions.Update(ctx, existing); err != nil {
					return err
				}
				out = append(out, existing)
				recomputed++
			case errors.Is(err, apperr.NotFound):
				if err := s.commissions.Create(ctx, next); err != nil {
					return err
				}
				out = append(out, next)
				created++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("period", period).
		Int("created", created).
		Int("recomputed", recomputed).
		Msg("commissions calculated")
	return out, nil
}

func (s *Service) MarkPaid(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Commission, error) {
	if err := actor.Require(auth.CapCommissionPay); err != nil {
		return nil, err
	}

	var out *Commission
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		c, err := s.commissions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := c.MarkPaid(s.now()); err != nil {
			return err
		}
		if err := s.commissions.Update(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("commission_id", out.ID.String()).
		Str("amount", out.Amount.String()).
		Msg("commission paid")
	return out, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter, limit, offset int) ([]*Commission, int, error) {
	if err := actor.Require(auth.CapCommissionRead); err != nil {
		return nil, 0, err
	}
	if f.Period != "" && !validate.IsPeriod(f.Period) {
		return nil, 0, apperr.New(apperr.Validation, "period must be YYYY-MM")
	}
	return s.commissions.List(ctx, f, limit, offset)
}
