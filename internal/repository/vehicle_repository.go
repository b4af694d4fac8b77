package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"gorm.io/gorm"
)

// VehicleModel is the GORM model for the vehicles table.
type VehicleModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	DriverID    uuid.UUID `gorm:"type:uuid;index;not null"`
	PlateNumber string    `gorm:"not null;size:20;uniqueIndex"`
	Type        string    `gorm:"size:30"`
	Capacity    int       `gorm:"not null"`
	Status      string    `gorm:"not null;size:20"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (VehicleModel) TableName() string {
	return "vehicles"
}

// GormVehicleRepository is the GORM-based implementation of VehicleRepository.
type GormVehicleRepository struct {
	db *gorm.DB
}

// NewGormVehicleRepository creates a new GormVehicleRepository.
func NewGormVehicleRepository(db *gorm.DB) *GormVehicleRepository {
	return &GormVehicleRepository{db: db}
}

// FindByID retrieves a vehicle by its unique identifier.
func (r *GormVehicleRepository) FindByID(ctx context.Context, id uuid.UUID) (*driverDomain.Vehicle, error) {
	var model VehicleModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Vehicle", id.String())
		}
		return nil, fmt.Errorf("failed to find vehicle by ID: %w", err)
	}
	v := toDomainVehicle(&model)
	return &v, nil
}

// FindByDriverID retrieves a driver's vehicles in registration order.
func (r *GormVehicleRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID) ([]driverDomain.Vehicle, error) {
	var models []VehicleModel
	if err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find driver vehicles: %w", err)
	}
	vehicles := make([]driverDomain.Vehicle, len(models))
	for i := range models {
		vehicles[i] = toDomainVehicle(&models[i])
	}
	return vehicles, nil
}

// Save persists a new vehicle.
func (r *GormVehicleRepository) Save(ctx context.Context, v *driverDomain.Vehicle) error {
	model := toVehicleModel(v)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewPreconditionError(fmt.Sprintf("plate number %s is already registered", v.PlateNumber))
		}
		return fmt.Errorf("failed to save vehicle: %w", err)
	}
	return nil
}

// Update persists changes to an existing vehicle.
func (r *GormVehicleRepository) Update(ctx context.Context, v *driverDomain.Vehicle) error {
	result := r.db.WithContext(ctx).
		Model(&VehicleModel{}).
		Where("id = ?", v.ID).
		Updates(map[string]interface{}{
			"type":       v.Type,
			"capacity":   v.Capacity,
			"status":     string(v.Status),
			"updated_at": v.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update vehicle: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Vehicle", v.ID.String())
	}
	return nil
}

func toVehicleModel(v *driverDomain.Vehicle) VehicleModel {
	return VehicleModel{
		ID:          v.ID,
		DriverID:    v.DriverID,
		PlateNumber: v.PlateNumber,
		Type:        v.Type,
		Capacity:    v.Capacity,
		Status:      string(v.Status),
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func toDomainVehicle(m *VehicleModel) driverDomain.Vehicle {
	return driverDomain.Vehicle{
		ID:          m.ID,
		DriverID:    m.DriverID,
		PlateNumber: m.PlateNumber,
		Type:        m.Type,
		Capacity:    m.Capacity,
		Status:      driverDomain.VehicleStatus(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
