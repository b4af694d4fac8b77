package driver

import (
	"context"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
)

// Directory is the read side consumed by the matcher.
type Directory interface {
	ListOnlineDrivers(ctx context.Context) ([]Snapshot, error)
	ListApprovedVehicles(ctx context.Context, driverID uuid.UUID) ([]Vehicle, error)
}

// NearbyDirectory is implemented by directories that can narrow the online
// drivers to a circle before the matcher scores them.
type NearbyDirectory interface {
	ListOnlineNear(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]Snapshot, error)
}

// StateStore holds live driver snapshots.
type StateStore interface {
	Get(ctx context.Context, driverID uuid.UUID) (*Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
	ListOnline(ctx context.Context) ([]Snapshot, error)
}

// VehicleRepository defines persistence for vehicles.
type VehicleRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Vehicle, error)
	FindByDriverID(ctx context.Context, driverID uuid.UUID) ([]Vehicle, error)
	Save(ctx context.Context, v *Vehicle) error
	Update(ctx context.Context, v *Vehicle) error
}
