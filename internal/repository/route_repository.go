package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	routeDomain "github.com/ridemate/service-dispatch/internal/domain/route"
	"gorm.io/gorm"
)

// RouteModel is the GORM model for the fixed_routes table.
type RouteModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	DriverID       uuid.UUID       `gorm:"type:uuid;index;not null"`
	VehicleID      uuid.UUID       `gorm:"type:uuid;not null"`
	Name           string          `gorm:"not null;size:200"`
	Description    string          `gorm:"size:1000"`
	Pickup         json.RawMessage `gorm:"type:jsonb;not null"`
	Dropoff        json.RawMessage `gorm:"type:jsonb;not null"`
	PickupRadiusM  int             `gorm:"not null"`
	DropoffRadiusM int             `gorm:"not null"`
	DistanceM      float64         `gorm:"not null"`
	DepartureTime  string          `gorm:"not null;size:5"`
	Dates          json.RawMessage `gorm:"type:jsonb;not null"`
	PricePerSeat   int64           `gorm:"not null"`
	TotalSeats     int             `gorm:"not null"`
	AvailableSeats int             `gorm:"not null"`
	Status         string          `gorm:"not null;size:20;index"`
	Version        int64           `gorm:"not null;default:1"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (RouteModel) TableName() string {
	return "fixed_routes"
}

// GormRouteRepository is the GORM-based implementation of RouteRepository.
type GormRouteRepository struct {
	db *gorm.DB
}

// NewGormRouteRepository creates a new GormRouteRepository.
func NewGormRouteRepository(db *gorm.DB) *GormRouteRepository {
	return &GormRouteRepository{db: db}
}

// FindByID retrieves a route by its unique identifier.
func (r *GormRouteRepository) FindByID(ctx context.Context, id uuid.UUID) (*routeDomain.FixedRoute, error) {
	var model RouteModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Route", id.String())
		}
		return nil, fmt.Errorf("failed to find route by ID: %w", err)
	}
	return toDomainRoute(&model)
}

// FindByDriverID retrieves a driver's routes, cancelled ones excluded.
func (r *GormRouteRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID) ([]*routeDomain.FixedRoute, error) {
	var models []RouteModel
	if err := r.db.WithContext(ctx).
		Where("driver_id = ? AND status <> ?", driverID, string(routeDomain.StatusCancelled)).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find driver routes: %w", err)
	}
	return toDomainRoutes(models)
}

// FindActive retrieves all active routes.
func (r *GormRouteRepository) FindActive(ctx context.Context) ([]*routeDomain.FixedRoute, error) {
	var models []RouteModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(routeDomain.StatusActive)).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find active routes: %w", err)
	}
	return toDomainRoutes(models)
}

// Save persists a new route.
func (r *GormRouteRepository) Save(ctx context.Context, rt *routeDomain.FixedRoute) error {
	model, err := toRouteModel(rt)
	if err != nil {
		return fmt.Errorf("failed to convert route to model: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save route: %w", err)
	}
	return nil
}

// Update persists changes to an existing route with optimistic locking.
func (r *GormRouteRepository) Update(ctx context.Context, rt *routeDomain.FixedRoute) error {
	model, err := toRouteModel(rt)
	if err != nil {
		return fmt.Errorf("failed to convert route to model: %w", err)
	}

	expectedVersion := rt.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&RouteModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"name":             model.Name,
			"description":      model.Description,
			"pickup":           model.Pickup,
			"dropoff":          model.Dropoff,
			"pickup_radius_m":  model.PickupRadiusM,
			"dropoff_radius_m": model.DropoffRadiusM,
			"distance_m":       model.DistanceM,
			"departure_time":   model.DepartureTime,
			"dates":            model.Dates,
			"price_per_seat":   model.PricePerSeat,
			"total_seats":      model.TotalSeats,
			"available_seats":  model.AvailableSeats,
			"status":           model.Status,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update route: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("route was modified by another transaction")
	}
	return nil
}

// --- Conversion Helpers ---

func toRouteModel(rt *routeDomain.FixedRoute) (*RouteModel, error) {
	s := rt.Snapshot()
	pickupJSON, err := json.Marshal(s.Pickup)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pickup: %w", err)
	}
	dropoffJSON, err := json.Marshal(s.Dropoff)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dropoff: %w", err)
	}
	datesJSON, err := json.Marshal(s.Dates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dates: %w", err)
	}

	return &RouteModel{
		ID:             s.ID,
		DriverID:       s.DriverID,
		VehicleID:      s.VehicleID,
		Name:           s.Name,
		Description:    s.Description,
		Pickup:         pickupJSON,
		Dropoff:        dropoffJSON,
		PickupRadiusM:  s.PickupRadiusM,
		DropoffRadiusM: s.DropoffRadiusM,
		DistanceM:      s.DistanceM,
		DepartureTime:  s.DepartureTime,
		Dates:          datesJSON,
		PricePerSeat:   s.PricePerSeat,
		TotalSeats:     s.TotalSeats,
		AvailableSeats: s.AvailableSeats,
		Status:         string(s.Status),
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}, nil
}

func toDomainRoute(m *RouteModel) (*routeDomain.FixedRoute, error) {
	var pickup, dropoff domain.Location
	if err := json.Unmarshal(m.Pickup, &pickup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pickup: %w", err)
	}
	if err := json.Unmarshal(m.Dropoff, &dropoff); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dropoff: %w", err)
	}
	var dates []string
	if err := json.Unmarshal(m.Dates, &dates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dates: %w", err)
	}

	status, err := routeDomain.ParseRouteStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return routeDomain.Reconstruct(routeDomain.Snapshot{
		ID:             m.ID,
		DriverID:       m.DriverID,
		VehicleID:      m.VehicleID,
		Name:           m.Name,
		Description:    m.Description,
		Pickup:         pickup,
		Dropoff:        dropoff,
		PickupRadiusM:  m.PickupRadiusM,
		DropoffRadiusM: m.DropoffRadiusM,
		DistanceM:      m.DistanceM,
		DepartureTime:  m.DepartureTime,
		Dates:          dates,
		PricePerSeat:   m.PricePerSeat,
		TotalSeats:     m.TotalSeats,
		AvailableSeats: m.AvailableSeats,
		Status:         status,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}), nil
}

func toDomainRoutes(models []RouteModel) ([]*routeDomain.FixedRoute, error) {
	routes := make([]*routeDomain.FixedRoute, len(models))
	for i := range models {
		rt, err := toDomainRoute(&models[i])
		if err != nil {
			return nil, err
		}
		routes[i] = rt
	}
	return routes, nil
}
