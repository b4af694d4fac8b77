package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
)

// VehicleStatus is the approval state of a vehicle.
type VehicleStatus string

const (
	VehiclePending  VehicleStatus = "pending"
	VehicleApproved VehicleStatus = "approved"
	VehicleRejected VehicleStatus = "rejected"
)

func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehiclePending, VehicleApproved, VehicleRejected:
		return true
	}
	return false
}

// ParseVehicleStatus converts a string to a VehicleStatus.
func ParseVehicleStatus(s string) (VehicleStatus, error) {
	status := VehicleStatus(s)
	if !status.IsValid() {
		return "", domain.NewValidationError(fmt.Sprintf("invalid vehicle status: %s", s))
	}
	return status, nil
}

// Vehicle is a driver's registered vehicle.
type Vehicle struct {
	ID          uuid.UUID     `json:"id"`
	DriverID    uuid.UUID     `json:"driver_id"`
	PlateNumber string        `json:"plate_number"`
	Type        string        `json:"type"`
	Capacity    int           `json:"capacity"`
	Status      VehicleStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// NewVehicle registers a vehicle awaiting approval.
func NewVehicle(driverID uuid.UUID, plate, vehicleType string, capacity int, now time.Time) (*Vehicle, error) {
	if driverID == uuid.Nil {
		return nil, domain.NewValidationError("driver ID is required")
	}
	plate = strings.TrimSpace(plate)
	if plate == "" {
		return nil, domain.NewValidationError("plate number is required")
	}
	if capacity <= 0 {
		return nil, domain.NewValidationError("vehicle capacity must be positive")
	}
	return &Vehicle{
		ID:          uuid.New(),
		DriverID:    driverID,
		PlateNumber: plate,
		Type:        vehicleType,
		Capacity:    capacity,
		Status:      VehiclePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (v *Vehicle) IsApproved() bool { return v.Status == VehicleApproved }

// Review sets the approval status.
func (v *Vehicle) Review(status VehicleStatus, now time.Time) error {
	if !status.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("invalid vehicle status: %s", status))
	}
	v.Status = status
	v.UpdatedAt = now
	return nil
}

// FirstApproved returns the first approved vehicle, or nil.
func FirstApproved(vehicles []Vehicle) *Vehicle {
	for i := range vehicles {
		if vehicles[i].IsApproved() {
			return &vehicles[i]
		}
	}
	return nil
}
