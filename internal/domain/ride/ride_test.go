package ride

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0          = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	pickup      = domain.Location{Point: domain.GeoPoint{Latitude: 10.7726, Longitude: 106.6980}, Address: "Ben Thanh"}
	destination = domain.Location{Point: domain.GeoPoint{Latitude: 10.8000, Longitude: 106.6600}, Address: "Tan Son Nhat"}
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from RideStatus
		ev   Event
		want RideStatus
		ok   bool
	}{
		{StatusPending, EventCandidatesFound, StatusWaiting, true},
		{StatusPending, EventAccept, "", false},
		{StatusWaiting, EventAccept, StatusAccepted, true},
		{StatusWaiting, EventCandidatesFound, "", false},
		{StatusAccepted, EventArrive, StatusDriverArrived, true},
		{StatusAccepted, EventStart, "", false},
		{StatusDriverArrived, EventStart, StatusInProgress, true},
		{StatusInProgress, EventComplete, StatusCompleted, true},
		{StatusAccepted, EventExpire, "", false},
		{StatusPending, EventExpire, StatusCancelled, true},
		{StatusWaiting, EventExpire, StatusCancelled, true},
		{StatusCompleted, EventCancel, "", false},
		{StatusCancelled, EventCancel, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			if !tt.ok {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrInvalidState))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCancelReachableFromEveryNonTerminalState(t *testing.T) {
	for status := range transitions {
		got, err := Transition(status, EventCancel)
		if status.IsTerminal() {
			assert.Error(t, err, status)
			continue
		}
		require.NoError(t, err, status)
		assert.Equal(t, StatusCancelled, got)
	}
}

func newWaitingRide(t *testing.T) (*Ride, uuid.UUID, uuid.UUID) {
	t.Helper()
	r, err := NewRide(uuid.New(), pickup, destination, 25, t0)
	require.NoError(t, err)
	driverID, vehicleID := uuid.New(), uuid.New()
	require.NoError(t, r.Offer([]matching.Candidate{{DriverID: driverID, VehicleID: vehicleID, Score: 0.9}}, t0))
	return r, driverID, vehicleID
}

func TestRideHappyPath(t *testing.T) {
	r, driverID, vehicleID := newWaitingRide(t)
	assert.Equal(t, StatusWaiting, r.Status())
	assert.Equal(t, []uuid.UUID{driverID}, r.OfferedDriverIDs())

	policy := NewCoinFarePolicy()
	fare := policy.Fare(r.DistanceKm())
	require.NoError(t, r.Accept(driverID, vehicleID, fare, t0.Add(time.Minute)))
	assert.Equal(t, fare, *r.Fare())
	assert.NotNil(t, r.MatchedAt())

	require.NoError(t, r.Arrive(driverID, t0.Add(5*time.Minute)))
	require.NoError(t, r.Start(driverID, t0.Add(6*time.Minute)))

	// A different policy at completion must not change the fare fixed at acceptance.
	require.NoError(t, r.Complete(driverID, CoinFarePolicy{Base: 1000, PerKm: 1000}, t0.Add(20*time.Minute+30*time.Second)))
	assert.Equal(t, StatusCompleted, r.Status())
	require.NotNil(t, r.StartedAt())
	require.NotNil(t, r.EndedAt())
	require.NotNil(t, r.Fare())
	assert.Equal(t, fare, *r.Fare())
	assert.Equal(t, 15, *r.DurationMinutes())
}

func TestRideOwnership(t *testing.T) {
	r, driverID, vehicleID := newWaitingRide(t)
	require.NoError(t, r.Accept(driverID, vehicleID, 20, t0))

	err := r.Arrive(uuid.New(), t0)
	assert.True(t, errors.Is(err, domain.ErrOwnership))

	err = r.Cancel(uuid.New(), "", t0)
	assert.True(t, errors.Is(err, domain.ErrOwnership))
}

func TestRideImmutableAfterTerminal(t *testing.T) {
	r, driverID, vehicleID := newWaitingRide(t)
	require.NoError(t, r.Cancel(r.PassengerID(), "changed plans", t0))
	assert.Equal(t, StatusCancelled, r.Status())
	assert.Equal(t, "changed plans", r.CancelReason())

	err := r.Accept(driverID, vehicleID, 10, t0)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	err = r.Cancel(r.PassengerID(), "", t0)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	assert.Nil(t, r.DriverID())
}

func TestRideExpire(t *testing.T) {
	r, err := NewRide(uuid.New(), pickup, destination, 25, t0)
	require.NoError(t, err)
	require.NoError(t, r.Expire(t0.Add(time.Hour)))
	assert.Equal(t, StatusCancelled, r.Status())
	assert.Equal(t, CancelReasonExpired, r.CancelReason())

	r2, driverID, vehicleID := newWaitingRide(t)
	require.NoError(t, r2.Accept(driverID, vehicleID, 10, t0))
	assert.True(t, errors.Is(r2.Expire(t0), domain.ErrInvalidState))
}

func TestOfferRequiresCandidates(t *testing.T) {
	r, err := NewRide(uuid.New(), pickup, destination, 25, t0)
	require.NoError(t, err)
	assert.True(t, errors.Is(r.Offer(nil, t0), domain.ErrPrecondition))
	assert.Equal(t, StatusPending, r.Status())
}

func TestNewDirectRide(t *testing.T) {
	driverID, vehicleID := uuid.New(), uuid.New()
	r, err := NewDirectRide(DirectRideParams{
		Kind:        KindPersonal,
		DriverID:    driverID,
		VehicleID:   vehicleID,
		Pickup:      pickup,
		Destination: destination,
	}, 30, t0)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, r.Status())
	assert.Equal(t, driverID, r.PassengerID(), "personal rides default the passenger to the driver")
	assert.Nil(t, r.Fare())

	require.NoError(t, r.Complete(driverID, NewCoinFarePolicy(), t0.Add(10*time.Minute)))
	require.NotNil(t, r.Fare())
	assert.Equal(t, NewCoinFarePolicy().Fare(r.DistanceKm()), *r.Fare())

	_, err = NewDirectRide(DirectRideParams{Kind: KindRoute, DriverID: driverID, VehicleID: vehicleID, Pickup: pickup, Destination: destination}, 0, t0)
	assert.True(t, errors.Is(err, domain.ErrValidation), "route rides need a booking and fare")
}

func TestSnapshotRoundTrip(t *testing.T) {
	r, driverID, vehicleID := newWaitingRide(t)
	require.NoError(t, r.Accept(driverID, vehicleID, 42, t0))
	r.IncrementVersion()

	back := Reconstruct(r.Snapshot())
	assert.Equal(t, r.Snapshot(), back.Snapshot())
}

func TestCoinFarePolicy(t *testing.T) {
	p := NewCoinFarePolicy()
	assert.Equal(t, int64(10), p.Fare(0))
	assert.Equal(t, int64(10), p.Fare(-3))
	assert.Equal(t, int64(15), p.Fare(1))
	assert.Equal(t, int64(16), p.Fare(1.1))

	prev := p.Fare(0.1)
	for km := 0.2; km < 30; km += 0.7 {
		next := p.Fare(km)
		assert.GreaterOrEqual(t, next, prev, "fare is monotonic in distance")
		prev = next
	}
}
