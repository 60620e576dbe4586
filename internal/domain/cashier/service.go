package cashier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/pkg/money"
)

// Service manages cash sessions. It also serves as the billing.CashDrawer
// so cash payments reach the session of the actor who took them.
type Service struct {
	sessions SessionRepository
	tx       db.TxRunner
	locks    lock.Locker
	logger   zerolog.Logger
	now      func() time.Time
}

var _ billing.CashDrawer = (*Service)(nil)

func NewService(sessions SessionRepository, tx db.TxRunner, locks lock.Locker, logger zerolog.Logger) *Service {
	return &Service{
		sessions: sessions,
		tx:       tx,
		locks:    locks,
		logger:   logger.With().Str("component", "cashier").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func actorLockKey(actorID uuid.UUID) string { return "cash:" + actorID.String() }

// authorizeSession lets owners with cash.operate and supervisors reach a session.
func authorizeSession(actor auth.Actor, owner uuid.UUID) error {
	if owner == actor.ID && actor.Can(auth.CapCashOperate) {
		return nil
	}
	return actor.Require(auth.CapCashSupervise)
}

// Open starts a session for the calling actor.
func (s *Service) Open(ctx context.Context, actor auth.Actor, opening money.Money, note *string) (*Session, error) {
	if err := actor.Require(auth.CapCashOperate); err != nil {
		return nil, err
	}
	sess, err := NewSession(actor.ID, opening, note, s.now())
	if err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, actorLockKey(actor.ID))
	if err != nil {
		return nil, fmt.Errorf("lock cash drawer: %w", err)
	}
	defer release()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.sessions.GetOpenByActor(ctx, actor.ID)
		switch {
		case err == nil:
			return apperr.New(apperr.AlreadyOpen, "cash session %s is already open", existing.ID)
		case !errors.Is(err, apperr.NotFound):
			return err
		}
		return s.sessions.Create(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("actor_id", actor.ID.String()).
		Str("opening_balance", sess.OpeningBalance.String()).
		Msg("cash session opened")
	return sess, nil
}

// RecordCashFlow adds a cash payment to the open session of the actor who
// received it. Without an open session the payment is left on the invoice
// only.
func (s *Service) RecordCashFlow(ctx context.Context, p *billing.Payment) error {
	if p.Method != billing.MethodCash {
		return nil
	}

	release, err := s.locks.Lock(ctx, actorLockKey(p.ReceivedBy))
	if err != nil {
		return fmt.Errorf("lock cash drawer: %w", err)
	}
	defer release()

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		sess, err := s.sessions.GetOpenByActor(ctx, p.ReceivedBy)
		if errors.Is(err, apperr.NotFound) {
			s.logger.Debug().
				Str("payment_id", p.ID.String()).
				Str("actor_id", p.ReceivedBy.String()).
				Msg("no open cash session, cash flow not recorded")
			return nil
		}
		if err != nil {
			return err
		}
		if err := sess.Record(p.Amount); err != nil {
			return err
		}
		if err := s.sessions.Update(ctx, sess); err != nil {
			return err
		}
		s.logger.Info().
			Str("session_id", sess.ID.String()).
			Str("payment_id", p.ID.String()).
			Str("cash_total", sess.CashTotal.String()).
			Msg("cash flow recorded")
		return nil
	})
}

// Close counts the drawer of session id. Closing another actor's session
// needs cash supervision.
func (s *Service) Close(ctx context.Context, actor auth.Actor, id uuid.UUID, closing money.Money, note *string) (*Session, error) {
	if !actor.Can(auth.CapCashOperate) && !actor.Can(auth.CapCashSupervise) {
		return nil, actor.Require(auth.CapCashOperate)
	}
	current, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeSession(actor, current.ActorID); err != nil {
		return nil, err
	}

	release, err := s.locks.Lock(ctx, actorLockKey(current.ActorID))
	if err != nil {
		return nil, fmt.Errorf("lock cash drawer: %w", err)
	}
	defer release()

	var out *Session
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		sess, err := s.sessions.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := sess.Close(closing, actor.ID, note, s.now()); err != nil {
			return err
		}
		if err := s.sessions.Update(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := s.logger.Info()
	if !out.Variance.IsZero() {
		ev = s.logger.Warn()
	}
	ev.Str("session_id", out.ID.String()).
		Str("expected", out.ExpectedBalance.String()).
		Str("closing", out.ClosingBalance.String()).
		Str("variance", out.Variance.String()).
		Msg("cash session closed")
	return out, nil
}

// Current returns the caller's open session.
func (s *Service) Current(ctx context.Context, actor auth.Actor) (*Session, error) {
	if err := actor.Require(auth.CapCashOperate); err != nil {
		return nil, err
	}
	return s.sessions.GetOpenByActor(ctx, actor.ID)
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Session, error) {
	if !actor.Can(auth.CapCashOperate) && !actor.Can(auth.CapCashSupervise) {
		return nil, actor.Require(auth.CapCashOperate)
	}
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeSession(actor, sess.ActorID); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f SessionFilter, limit, offset int) ([]*Session, int, error) {
	if err := actor.Require(auth.CapCashSupervise); err != nil {
		return nil, 0, err
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, 0, apperr.New(apperr.Validation, "from must be before to")
	}
	return s.sessions.List(ctx, f, limit, offset)
}
