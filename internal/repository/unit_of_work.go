package repository

import (
	"context"
	"fmt"

	"github.com/ridemate/service-dispatch/internal/domain/booking"
	"github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/domain/route"
	"gorm.io/gorm"
)

// Repositories groups the aggregate repositories bound to one connection or transaction.
type Repositories struct {
	Rides    ride.RideRepository
	Routes   route.RouteRepository
	Bookings booking.BookingRepository
}

// UnitOfWork runs fn against repositories that commit or roll back together.
// A non-nil error from fn rolls back every write made through repos.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Repositories returns non-transactional repositories for reads.
	Repositories() Repositories
}

// GormUnitOfWork implements UnitOfWork with a database transaction.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork.
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

func (u *GormUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, reposFor(tx))
	})
}

func (u *GormUnitOfWork) Repositories() Repositories {
	return reposFor(u.db)
}

func reposFor(db *gorm.DB) Repositories {
	return Repositories{
		Rides:    NewGormRideRepository(db),
		Routes:   NewGormRouteRepository(db),
		Bookings: NewGormBookingRepository(db),
	}
}

// activeBookingIndex enforces one non-terminal booking per (route, passenger, date).
const activeBookingIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_route_bookings_active
ON route_bookings (route_id, passenger_id, booking_date)
WHERE status IN ('pending', 'accepted', 'in_progress')`

// Migrate creates or updates the dispatch schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&RideModel{}, &RouteModel{}, &BookingModel{}, &VehicleModel{}); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	if err := db.Exec(activeBookingIndex).Error; err != nil {
		return fmt.Errorf("failed to create active booking index: %w", err)
	}
	return nil
}
