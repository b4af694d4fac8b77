package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingRepository defines the persistence interface for route bookings.
type BookingRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	FindByRideID(ctx context.Context, rideID uuid.UUID) (*Booking, error)
	FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*Booking, int64, error)
	FindByDriverID(ctx context.Context, driverID uuid.UUID, status *BookingStatus, page, limit int) ([]*Booking, int64, error)
	FindByRouteID(ctx context.Context, routeID uuid.UUID) ([]*Booking, error)
	FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]*Booking, error)
	// ExistsActive reports whether the passenger already holds a non-terminal
	// booking on the route for the given date.
	ExistsActive(ctx context.Context, routeID, passengerID uuid.UUID, date string) (bool, error)
	Save(ctx context.Context, b *Booking) error
	Update(ctx context.Context, b *Booking) error
}
