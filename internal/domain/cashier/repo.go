package cashier

import (
	"context"

	"github.com/google/uuid"
)

type SessionRepository interface {
	// Create fails with AlreadyOpen when the actor already has an open session.
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Session, error)
	// GetOpenByActor returns NotFound when the actor has no open session.
	// Inside a transaction the row stays locked until it ends.
	GetOpenByActor(ctx context.Context, actorID uuid.UUID) (*Session, error)
	Update(ctx context.Context, s *Session) error
	List(ctx context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error)
}
