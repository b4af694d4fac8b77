package route

import (
	"context"

	"github.com/google/uuid"
)

// RouteRepository defines the persistence interface for fixed routes.
type RouteRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FixedRoute, error)
	FindByDriverID(ctx context.Context, driverID uuid.UUID) ([]*FixedRoute, error)
	FindActive(ctx context.Context) ([]*FixedRoute, error)
	Save(ctx context.Context, r *FixedRoute) error
	Update(ctx context.Context, r *FixedRoute) error
}
