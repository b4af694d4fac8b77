package driver

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRates(t *testing.T) {
	var s Stats
	assert.Zero(t, s.AcceptanceRate())
	assert.Zero(t, s.CompletionRate())

	s = Stats{RidesOffered: 8, RidesAccepted: 4, RidesCompleted: 3}
	assert.InDelta(t, 50, s.AcceptanceRate(), 1e-9)
	assert.InDelta(t, 75, s.CompletionRate(), 1e-9)

	s = Stats{RidesOffered: 1, RidesAccepted: 3, RidesCompleted: 5}
	assert.Equal(t, 100.0, s.AcceptanceRate())
	assert.Equal(t, 100.0, s.CompletionRate())
}

func TestSnapshotLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := NewSnapshot(uuid.New())
	assert.False(t, s.IsMatchable(now, 5*time.Minute))

	require.NoError(t, s.ReportLocation(domain.GeoPoint{Latitude: 10.77, Longitude: 106.70}, now))
	assert.False(t, s.IsMatchable(now, 5*time.Minute), "offline drivers are not matchable")

	s.Status = StatusOnline
	assert.True(t, s.IsMatchable(now.Add(5*time.Minute), 5*time.Minute))
	assert.False(t, s.IsMatchable(now.Add(5*time.Minute+time.Second), 5*time.Minute))

	s.RecordOffered()
	s.RecordAccepted()
	assert.Equal(t, StatusBusy, s.Status)
	s.RecordCompleted()
	assert.Equal(t, StatusOnline, s.Status)
	assert.Equal(t, Stats{RidesOffered: 1, RidesAccepted: 1, RidesCompleted: 1}, s.Stats)

	s.Status = StatusOffline
	s.Release()
	assert.Equal(t, StatusOffline, s.Status, "release only frees busy drivers")

	assert.Error(t, s.ReportLocation(domain.GeoPoint{Latitude: 200}, now))
}

func TestFirstApproved(t *testing.T) {
	now := time.Now()
	a, err := NewVehicle(uuid.New(), "51A-12345", "car", 4, now)
	require.NoError(t, err)
	b, err := NewVehicle(a.DriverID, "51A-67890", "car", 7, now)
	require.NoError(t, err)
	assert.Nil(t, FirstApproved([]Vehicle{*a, *b}))

	require.NoError(t, b.Review(VehicleApproved, now))
	got := FirstApproved([]Vehicle{*a, *b})
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)

	_, err = NewVehicle(a.DriverID, " ", "car", 4, now)
	assert.Error(t, err)
}
