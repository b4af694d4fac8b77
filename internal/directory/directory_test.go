package directory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	states := memory.NewDriverStates()
	vehicles := memory.NewVehicles()
	dir := New(states, vehicles)

	driverID := uuid.New()
	pending, err := driver.NewVehicle(driverID, "51A-00001", "car", 4, now)
	require.NoError(t, err)
	approved, err := driver.NewVehicle(driverID, "51A-00002", "car", 4, now.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, approved.Review(driver.VehicleApproved, now))
	require.NoError(t, vehicles.Save(ctx, pending))
	require.NoError(t, vehicles.Save(ctx, approved))

	got, err := dir.ListApprovedVehicles(ctx, driverID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, approved.ID, got[0].ID)

	snap := driver.NewSnapshot(driverID)
	snap.Status = driver.StatusOnline
	require.NoError(t, snap.ReportLocation(domain.GeoPoint{Latitude: 10.77, Longitude: 106.70}, now))
	require.NoError(t, states.Save(ctx, snap))
	require.NoError(t, states.Save(ctx, driver.NewSnapshot(uuid.New())))

	online, err := dir.ListOnlineDrivers(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, driverID, online[0].DriverID)
}

func TestDirectory_ListOnlineNear(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	states := memory.NewDriverStates()
	dir := New(states, memory.NewVehicles())
	center := domain.GeoPoint{Latitude: 10.7726, Longitude: 106.6980}

	online := func(p *domain.GeoPoint) uuid.UUID {
		snap := driver.NewSnapshot(uuid.New())
		snap.Status = driver.StatusOnline
		if p != nil {
			require.NoError(t, snap.ReportLocation(*p, now))
		}
		require.NoError(t, states.Save(ctx, snap))
		return snap.DriverID
	}
	near := online(&domain.GeoPoint{Latitude: 10.7800, Longitude: 106.6990})
	online(&domain.GeoPoint{Latitude: 10.9000, Longitude: 106.6980})
	online(nil)

	got, err := dir.ListOnlineNear(ctx, center, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near, got[0].DriverID)
}
