package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"gorm.io/gorm"
)

// RideModel is the GORM model for the rides table.
type RideModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Kind            string          `gorm:"not null;size:20"`
	PassengerID     uuid.UUID       `gorm:"type:uuid;index;not null"`
	DriverID        *uuid.UUID      `gorm:"type:uuid;index"`
	VehicleID       *uuid.UUID      `gorm:"type:uuid"`
	BookingID       *uuid.UUID      `gorm:"type:uuid;index"`
	Pickup          json.RawMessage `gorm:"type:jsonb;not null"`
	Destination     json.RawMessage `gorm:"type:jsonb;not null"`
	Status          string          `gorm:"not null;size:30;index"`
	DistanceKm      float64         `gorm:"not null"`
	DurationMinutes *int            `gorm:""`
	EstimatedFare   int64           `gorm:"not null"`
	Fare            *int64          `gorm:""`
	Offered         json.RawMessage `gorm:"type:jsonb"`
	MatchedAt       *time.Time      `gorm:""`
	ArrivedAt       *time.Time      `gorm:""`
	StartedAt       *time.Time      `gorm:""`
	EndedAt         *time.Time      `gorm:""`
	CancelledAt     *time.Time      `gorm:""`
	CancelledBy     *uuid.UUID      `gorm:"type:uuid"`
	CancelReason    string          `gorm:"size:500"`
	Version         int64           `gorm:"not null;default:1"`
	CreatedAt       time.Time       `gorm:"not null;index"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (RideModel) TableName() string {
	return "rides"
}

// GormRideRepository is the GORM-based implementation of RideRepository.
type GormRideRepository struct {
	db *gorm.DB
}

// NewGormRideRepository creates a new GormRideRepository.
func NewGormRideRepository(db *gorm.DB) *GormRideRepository {
	return &GormRideRepository{db: db}
}

// FindByID retrieves a ride by its unique identifier.
func (r *GormRideRepository) FindByID(ctx context.Context, id uuid.UUID) (*rideDomain.Ride, error) {
	var model RideModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Ride", id.String())
		}
		return nil, fmt.Errorf("failed to find ride by ID: %w", err)
	}
	return toDomainRide(&model)
}

// FindByPassengerID retrieves a passenger's rides with pagination.
func (r *GormRideRepository) FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*rideDomain.Ride, int64, error) {
	return r.paginate(ctx, r.db.Where("passenger_id = ?", passengerID), page, limit)
}

// FindByDriverID retrieves a driver's rides with pagination.
func (r *GormRideRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*rideDomain.Ride, int64, error) {
	return r.paginate(ctx, r.db.Where("driver_id = ?", driverID), page, limit)
}

// FindByStatus returns the oldest rides in the given status.
func (r *GormRideRepository) FindByStatus(ctx context.Context, status rideDomain.RideStatus, limit int) ([]*rideDomain.Ride, error) {
	var models []RideModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find rides by status: %w", err)
	}
	return toDomainRides(models)
}

// FindUnassignedBefore returns pending or waiting rides created before the cutoff.
func (r *GormRideRepository) FindUnassignedBefore(ctx context.Context, before time.Time, limit int) ([]*rideDomain.Ride, error) {
	var models []RideModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", []string{string(rideDomain.StatusPending), string(rideDomain.StatusWaiting)}, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find unassigned rides: %w", err)
	}
	return toDomainRides(models)
}

// Save persists a new ride.
func (r *GormRideRepository) Save(ctx context.Context, ride *rideDomain.Ride) error {
	model, err := toRideModel(ride)
	if err != nil {
		return fmt.Errorf("failed to convert ride to model: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save ride: %w", err)
	}
	return nil
}

// Update persists changes to an existing ride with optimistic locking.
func (r *GormRideRepository) Update(ctx context.Context, ride *rideDomain.Ride) error {
	model, err := toRideModel(ride)
	if err != nil {
		return fmt.Errorf("failed to convert ride to model: %w", err)
	}

	expectedVersion := ride.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&RideModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"driver_id":        model.DriverID,
			"vehicle_id":       model.VehicleID,
			"status":           model.Status,
			"duration_minutes": model.DurationMinutes,
			"fare":             model.Fare,
			"offered":          model.Offered,
			"matched_at":       model.MatchedAt,
			"arrived_at":       model.ArrivedAt,
			"started_at":       model.StartedAt,
			"ended_at":         model.EndedAt,
			"cancelled_at":     model.CancelledAt,
			"cancelled_by":     model.CancelledBy,
			"cancel_reason":    model.CancelReason,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update ride: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("ride was modified by another transaction")
	}
	return nil
}

func (r *GormRideRepository) paginate(ctx context.Context, q *gorm.DB, page, limit int) ([]*rideDomain.Ride, int64, error) {
	var total int64
	if err := q.WithContext(ctx).Model(&RideModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	var models []RideModel
	if err := q.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find rides: %w", err)
	}

	rides, err := toDomainRides(models)
	if err != nil {
		return nil, 0, err
	}
	return rides, total, nil
}

// --- Conversion Helpers ---

func toRideModel(r *rideDomain.Ride) (*RideModel, error) {
	s := r.Snapshot()
	pickupJSON, err := json.Marshal(s.Pickup)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pickup: %w", err)
	}
	destJSON, err := json.Marshal(s.Destination)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal destination: %w", err)
	}
	offeredJSON, err := json.Marshal(s.Offered)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offered candidates: %w", err)
	}

	return &RideModel{
		ID:              s.ID,
		Kind:            string(s.Kind),
		PassengerID:     s.PassengerID,
		DriverID:        s.DriverID,
		VehicleID:       s.VehicleID,
		BookingID:       s.BookingID,
		Pickup:          pickupJSON,
		Destination:     destJSON,
		Status:          string(s.Status),
		DistanceKm:      s.DistanceKm,
		DurationMinutes: s.DurationMinutes,
		EstimatedFare:   s.EstimatedFare,
		Fare:            s.Fare,
		Offered:         offeredJSON,
		MatchedAt:       s.MatchedAt,
		ArrivedAt:       s.ArrivedAt,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		CancelledAt:     s.CancelledAt,
		CancelledBy:     s.CancelledBy,
		CancelReason:    s.CancelReason,
		Version:         s.Version,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}, nil
}

func toDomainRide(m *RideModel) (*rideDomain.Ride, error) {
	var pickup, dest domain.Location
	if err := json.Unmarshal(m.Pickup, &pickup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pickup: %w", err)
	}
	if err := json.Unmarshal(m.Destination, &dest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal destination: %w", err)
	}
	var offered []matching.Candidate
	if len(m.Offered) > 0 {
		if err := json.Unmarshal(m.Offered, &offered); err != nil {
			return nil, fmt.Errorf("failed to unmarshal offered candidates: %w", err)
		}
	}

	status, err := rideDomain.ParseRideStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return rideDomain.Reconstruct(rideDomain.Snapshot{
		ID:              m.ID,
		Kind:            rideDomain.Kind(m.Kind),
		PassengerID:     m.PassengerID,
		DriverID:        m.DriverID,
		VehicleID:       m.VehicleID,
		BookingID:       m.BookingID,
		Pickup:          pickup,
		Destination:     dest,
		Status:          status,
		DistanceKm:      m.DistanceKm,
		DurationMinutes: m.DurationMinutes,
		EstimatedFare:   m.EstimatedFare,
		Fare:            m.Fare,
		Offered:         offered,
		MatchedAt:       m.MatchedAt,
		ArrivedAt:       m.ArrivedAt,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		CancelledAt:     m.CancelledAt,
		CancelledBy:     m.CancelledBy,
		CancelReason:    m.CancelReason,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}), nil
}

func toDomainRides(models []RideModel) ([]*rideDomain.Ride, error) {
	rides := make([]*rideDomain.Ride, len(models))
	for i := range models {
		r, err := toDomainRide(&models[i])
		if err != nil {
			return nil, err
		}
		rides[i] = r
	}
	return rides, nil
}
