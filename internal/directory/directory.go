// Package directory assembles the driver directory read by the matcher from
// the live state store and the vehicle registry.
package directory

import (
	"context"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/driver"
)

// geoStateStore is a StateStore with its own spatial index.
type geoStateStore interface {
	ListOnlineNear(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]driver.Snapshot, error)
}

// Directory implements driver.Directory.
type Directory struct {
	states   driver.StateStore
	vehicles driver.VehicleRepository
}

// New creates a Directory over the given stores.
func New(states driver.StateStore, vehicles driver.VehicleRepository) *Directory {
	return &Directory{states: states, vehicles: vehicles}
}

func (d *Directory) ListOnlineDrivers(ctx context.Context) ([]driver.Snapshot, error) {
	return d.states.ListOnline(ctx)
}

// ListOnlineNear returns online drivers last seen within radiusKm of center.
// Stores without a geo index are filtered by haversine distance.
func (d *Directory) ListOnlineNear(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]driver.Snapshot, error) {
	if geo, ok := d.states.(geoStateStore); ok {
		return geo.ListOnlineNear(ctx, center, radiusKm)
	}
	all, err := d.states.ListOnline(ctx)
	if err != nil {
		return nil, err
	}
	near := make([]driver.Snapshot, 0, len(all))
	for _, s := range all {
		if s.Position != nil && domain.HaversineKm(center, *s.Position) <= radiusKm {
			near = append(near, s)
		}
	}
	return near, nil
}

// ListApprovedVehicles returns the driver's approved vehicles in registration order.
func (d *Directory) ListApprovedVehicles(ctx context.Context, driverID uuid.UUID) ([]driver.Vehicle, error) {
	all, err := d.vehicles.FindByDriverID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	approved := make([]driver.Vehicle, 0, len(all))
	for _, v := range all {
		if v.IsApproved() {
			approved = append(approved, v)
		}
	}
	return approved, nil
}
