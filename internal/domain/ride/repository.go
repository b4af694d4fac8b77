package ride

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RideRepository defines the persistence interface for rides.
type RideRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Ride, error)
	FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*Ride, int64, error)
	FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*Ride, int64, error)
	FindByStatus(ctx context.Context, status RideStatus, limit int) ([]*Ride, error)
	FindUnassignedBefore(ctx context.Context, before time.Time, limit int) ([]*Ride, error)
	Save(ctx context.Context, r *Ride) error
	Update(ctx context.Context, r *Ride) error
}
