package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	bookingDomain "github.com/ridemate/service-dispatch/internal/domain/booking"
	"gorm.io/gorm"
)

// activeBookingStatuses are the non-terminal booking states.
var activeBookingStatuses = []string{
	string(bookingDomain.StatusPending),
	string(bookingDomain.StatusAccepted),
	string(bookingDomain.StatusInProgress),
}

// BookingModel is the GORM model for the route_bookings table.
type BookingModel struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	RouteID          uuid.UUID       `gorm:"type:uuid;index;not null"`
	DriverID         uuid.UUID       `gorm:"type:uuid;index;not null"`
	PassengerID      uuid.UUID       `gorm:"type:uuid;index;not null"`
	RideID           *uuid.UUID      `gorm:"type:uuid;index"`
	Status           string          `gorm:"not null;size:30;index"`
	Pickup           json.RawMessage `gorm:"type:jsonb;not null"`
	Dropoff          json.RawMessage `gorm:"type:jsonb;not null"`
	PickupDistanceM  float64         `gorm:"not null"`
	DropoffDistanceM float64         `gorm:"not null"`
	BookingDate      string          `gorm:"not null;size:10;index"`
	Seats            int             `gorm:"not null"`
	TotalPrice       int64           `gorm:"not null"`
	Notes            string          `gorm:"size:1000"`
	AcceptedAt       *time.Time      `gorm:""`
	RejectedAt       *time.Time      `gorm:""`
	StartedAt        *time.Time      `gorm:""`
	CompletedAt      *time.Time      `gorm:""`
	CancelledAt      *time.Time      `gorm:""`
	ExpiredAt        *time.Time      `gorm:""`
	CancelReason     string          `gorm:"size:500"`
	Version          int64           `gorm:"not null;default:1"`
	CreatedAt        time.Time       `gorm:"not null;index"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "route_bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByRideID retrieves the booking a ride was started from.
func (r *GormBookingRepository) FindByRideID(ctx context.Context, rideID uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("ride_id = ?", rideID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking for ride", rideID.String())
		}
		return nil, fmt.Errorf("failed to find booking by ride ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByPassengerID retrieves bookings for a passenger with pagination.
func (r *GormBookingRepository) FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	return r.paginate(ctx, r.db.Where("passenger_id = ?", passengerID), page, limit)
}

// FindByDriverID retrieves bookings on a driver's routes, optionally filtered by status.
func (r *GormBookingRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID, status *bookingDomain.BookingStatus, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	q := r.db.Where("driver_id = ?", driverID)
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	return r.paginate(ctx, q, page, limit)
}

// FindByRouteID retrieves every booking on a route.
func (r *GormBookingRepository) FindByRouteID(ctx context.Context, routeID uuid.UUID) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("booking_date ASC, created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find route bookings: %w", err)
	}
	return toDomainBookings(models)
}

// FindPendingBefore returns pending bookings created before the cutoff.
func (r *GormBookingRepository) FindPendingBefore(ctx context.Context, before time.Time, limit int) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(bookingDomain.StatusPending), before).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale bookings: %w", err)
	}
	return toDomainBookings(models)
}

// ExistsActive reports whether a non-terminal booking exists for (route, passenger, date).
func (r *GormBookingRepository) ExistsActive(ctx context.Context, routeID, passengerID uuid.UUID, date string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Where("route_id = ? AND passenger_id = ? AND booking_date = ? AND status IN ?", routeID, passengerID, date, activeBookingStatuses).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check existing booking: %w", err)
	}
	return count > 0, nil
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model, err := toBookingModel(bk)
	if err != nil {
		return fmt.Errorf("failed to convert booking to model: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewPreconditionError("you already have a booking for this route on this date")
		}
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking) error {
	model, err := toBookingModel(bk)
	if err != nil {
		return fmt.Errorf("failed to convert booking to model: %w", err)
	}

	// Only update if the stored version is the one this aggregate was loaded at.
	expectedVersion := bk.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"ride_id":       model.RideID,
			"status":        model.Status,
			"notes":         model.Notes,
			"accepted_at":   model.AcceptedAt,
			"rejected_at":   model.RejectedAt,
			"started_at":    model.StartedAt,
			"completed_at":  model.CompletedAt,
			"cancelled_at":  model.CancelledAt,
			"expired_at":    model.ExpiredAt,
			"cancel_reason": model.CancelReason,
			"version":       model.Version,
			"updated_at":    model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

func (r *GormBookingRepository) paginate(ctx context.Context, q *gorm.DB, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := q.WithContext(ctx).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := q.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) (*BookingModel, error) {
	s := bk.Snapshot()
	pickupJSON, err := json.Marshal(s.Pickup)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pickup: %w", err)
	}
	dropoffJSON, err := json.Marshal(s.Dropoff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dropoff: %w", err)
	}

	return &BookingModel{
		ID:               s.ID,
		RouteID:          s.RouteID,
		DriverID:         s.DriverID,
		PassengerID:      s.PassengerID,
		RideID:           s.RideID,
		Status:           string(s.Status),
		Pickup:           pickupJSON,
		Dropoff:          dropoffJSON,
		PickupDistanceM:  s.PickupDistanceM,
		DropoffDistanceM: s.DropoffDistanceM,
		BookingDate:      s.Date,
		Seats:            s.Seats,
		TotalPrice:       s.TotalPrice,
		Notes:            s.Notes,
		AcceptedAt:       s.AcceptedAt,
		RejectedAt:       s.RejectedAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		CancelledAt:      s.CancelledAt,
		ExpiredAt:        s.ExpiredAt,
		CancelReason:     s.CancelReason,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}, nil
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	var pickup, dropoff domain.Location
	if err := json.Unmarshal(m.Pickup, &pickup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pickup: %w", err)
	}
	if err := json.Unmarshal(m.Dropoff, &dropoff); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dropoff: %w", err)
	}

	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return bookingDomain.Reconstruct(bookingDomain.Snapshot{
		ID:               m.ID,
		RouteID:          m.RouteID,
		DriverID:         m.DriverID,
		PassengerID:      m.PassengerID,
		RideID:           m.RideID,
		Status:           status,
		Pickup:           pickup,
		Dropoff:          dropoff,
		PickupDistanceM:  m.PickupDistanceM,
		DropoffDistanceM: m.DropoffDistanceM,
		Date:             m.BookingDate,
		Seats:            m.Seats,
		TotalPrice:       m.TotalPrice,
		Notes:            m.Notes,
		AcceptedAt:       m.AcceptedAt,
		RejectedAt:       m.RejectedAt,
		StartedAt:        m.StartedAt,
		CompletedAt:      m.CompletedAt,
		CancelledAt:      m.CancelledAt,
		ExpiredAt:        m.ExpiredAt,
		CancelReason:     m.CancelReason,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}
