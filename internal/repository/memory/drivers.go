package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/driver"
)

// DriverStates is an in-memory driver.StateStore.
type DriverStates struct {
	mu     sync.RWMutex
	states map[uuid.UUID]driver.Snapshot
}

func NewDriverStates() *DriverStates {
	return &DriverStates{states: make(map[uuid.UUID]driver.Snapshot)}
}

// Get returns the stored snapshot, or a fresh offline snapshot for unknown drivers.
func (d *DriverStates) Get(_ context.Context, driverID uuid.UUID) (*driver.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.states[driverID]
	if !ok {
		s = driver.NewSnapshot(driverID)
	}
	return &s, nil
}

func (d *DriverStates) Save(_ context.Context, s driver.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[s.DriverID] = s
	return nil
}

func (d *DriverStates) ListOnline(_ context.Context) ([]driver.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]driver.Snapshot, 0, len(d.states))
	for _, s := range d.states {
		if s.Status == driver.StatusOnline {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID.String() < out[j].DriverID.String() })
	return out, nil
}

// Vehicles is an in-memory driver.VehicleRepository.
type Vehicles struct {
	mu       sync.RWMutex
	vehicles map[uuid.UUID]driver.Vehicle
}

func NewVehicles() *Vehicles {
	return &Vehicles{vehicles: make(map[uuid.UUID]driver.Vehicle)}
}

func (v *Vehicles) FindByID(_ context.Context, id uuid.UUID) (*driver.Vehicle, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	veh, ok := v.vehicles[id]
	if !ok {
		return nil, domain.NewNotFoundError("Vehicle", id.String())
	}
	return &veh, nil
}

// FindByDriverID returns the driver's vehicles in registration order.
func (v *Vehicles) FindByDriverID(_ context.Context, driverID uuid.UUID) ([]driver.Vehicle, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []driver.Vehicle
	for _, veh := range v.vehicles {
		if veh.DriverID == driverID {
			out = append(out, veh)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v *Vehicles) Save(_ context.Context, veh *driver.Vehicle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, other := range v.vehicles {
		if other.PlateNumber == veh.PlateNumber {
			return domain.NewPreconditionError(fmt.Sprintf("plate number %s is already registered", veh.PlateNumber))
		}
	}
	v.vehicles[veh.ID] = *veh
	return nil
}

func (v *Vehicles) Update(_ context.Context, veh *driver.Vehicle) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.vehicles[veh.ID]; !ok {
		return domain.NewNotFoundError("Vehicle", veh.ID.String())
	}
	v.vehicles[veh.ID] = *veh
	return nil
}
