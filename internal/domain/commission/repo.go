package commission

import (
	"context"

	"github.com/google/uuid"
)

type PractitionerRepository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]*Practitioner, int, error)
}

type CommissionRepository interface {
	Create(ctx context.Context, c *Commission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Commission, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Commission, error)
	// FindByKey returns NotFound when no commission exists for k. Inside a
	// transaction the row stays locked until it ends.
	FindByKey(ctx context.Context, k Key) (*Commission, error)
	Update(ctx context.Context, c *Commission) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Commission, int, error)
}
