package application

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestAirportRide(h *harness, passengerID uuid.UUID) *RideDTO {
	h.t.Helper()
	r, err := h.rides.RequestRide(h.ctx, passengerID, RequestRideRequest{Pickup: benThanh, Destination: airport})
	require.NoError(h.t, err)
	return r
}

func TestRequestRide_OffersNearbyDrivers(t *testing.T) {
	h := newHarness(t)
	near, vehicleID := h.onlineDriver(nearby)
	far, _ := h.onlineDriver(farAway)
	passengerID := uuid.New()

	r := requestAirportRide(h, passengerID)

	assert.Equal(t, rideDomain.StatusWaiting.String(), r.Status)
	require.Len(t, r.Candidates, 1)
	assert.Equal(t, near, r.Candidates[0].DriverID)
	assert.Equal(t, vehicleID, r.Candidates[0].VehicleID)
	assert.Equal(t, h.fare.Fare(domain.HaversineKm(benThanh.Point, airport.Point)), r.EstimatedFare)

	offers := h.rec.notificationsFor(near)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.NotificationMatchRequest, offers[0].Type)
	assert.Contains(t, offers[0].Body, "From Ben Thanh Market to Tan Son Nhat Airport")
	assert.Empty(t, h.rec.notificationsFor(far))

	assert.Equal(t, int64(1), h.driverState(near).RidesOffered)
	assert.Equal(t, int64(0), h.driverState(far).RidesOffered)
}

func TestRequestRide_NoSupplyStaysPendingUntilRedispatch(t *testing.T) {
	h := newHarness(t)
	passengerID := uuid.New()

	r := requestAirportRide(h, passengerID)
	assert.Equal(t, rideDomain.StatusPending.String(), r.Status)
	assert.Empty(t, r.Candidates)

	_, err := h.rides.Redispatch(h.ctx, r.ID, uuid.New())
	requireKind(t, err, domain.KindOwnership)

	again, err := h.rides.Redispatch(h.ctx, r.ID, passengerID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusPending.String(), again.Status)

	driverID, _ := h.onlineDriver(nearby)
	again, err = h.rides.Redispatch(h.ctx, r.ID, passengerID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusWaiting.String(), again.Status)
	require.Len(t, again.Candidates, 1)
	assert.Equal(t, driverID, again.Candidates[0].DriverID)

	_, err = h.rides.Redispatch(h.ctx, r.ID, passengerID)
	requireKind(t, err, domain.KindInvalidState)
}

func TestRideLifecycle_HappyPath(t *testing.T) {
	h := newHarness(t)
	driverID, vehicleID := h.onlineDriver(nearby)
	passengerID := uuid.New()
	r := requestAirportRide(h, passengerID)

	accepted, err := h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{})
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusAccepted.String(), accepted.Status)
	require.NotNil(t, accepted.DriverID)
	assert.Equal(t, driverID, *accepted.DriverID)
	assert.Equal(t, vehicleID, *accepted.VehicleID)
	require.NotNil(t, accepted.Fare)
	assert.Equal(t, accepted.EstimatedFare, *accepted.Fare)

	state := h.driverState(driverID)
	assert.Equal(t, driverDomain.StatusBusy.String(), state.Status)
	assert.Equal(t, int64(1), state.RidesAccepted)
	assert.InDelta(t, 100.0, state.AcceptanceRate, 0.001)

	_, err = h.rides.StartRide(h.ctx, r.ID, driverID)
	requireKind(t, err, domain.KindInvalidState)

	_, err = h.rides.DriverArrived(h.ctx, r.ID, uuid.New())
	requireKind(t, err, domain.KindOwnership)

	arrived, err := h.rides.DriverArrived(h.ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusDriverArrived.String(), arrived.Status)

	started, err := h.rides.StartRide(h.ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusInProgress.String(), started.Status)

	h.clock.Advance(15 * time.Minute)
	completed, err := h.rides.CompleteRide(h.ctx, r.ID, driverID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusCompleted.String(), completed.Status)
	require.NotNil(t, completed.DurationMinutes)
	assert.Equal(t, 15, *completed.DurationMinutes)
	assert.Equal(t, *accepted.Fare, *completed.Fare)

	state = h.driverState(driverID)
	assert.Equal(t, driverDomain.StatusOnline.String(), state.Status)
	assert.Equal(t, int64(1), state.RidesCompleted)
	assert.InDelta(t, 100.0, state.CompletionRate, 0.001)

	assert.Equal(t, []domain.NotificationType{
		domain.NotificationMatchAccepted,
		domain.NotificationTripStarted,
		domain.NotificationRideCompleted,
	}, h.rec.typesFor(passengerID))

	last := h.rec.lastEvent()
	assert.Equal(t, domain.MatchEventCompleted, last.Type)
	assert.True(t, last.RatingEligible)
	assert.ElementsMatch(t, []uuid.UUID{passengerID, driverID}, last.Recipients)
}

func TestAcceptRide_ExactlyOneDriverWins(t *testing.T) {
	h := newHarness(t)
	first, _ := h.onlineDriver(nearby)
	second, _ := h.onlineDriver(domain.GeoPoint{Latitude: 10.7750, Longitude: 106.6985})
	r := requestAirportRide(h, uuid.New())
	require.Len(t, r.Candidates, 2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, driverID := range []uuid.UUID{first, second} {
		wg.Add(1)
		go func(i int, driverID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{})
		}(i, driverID)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrInvalidState), err.Error())
	}
	assert.Equal(t, 1, wins)

	got, err := h.rides.GetRide(h.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusAccepted.String(), got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestAcceptRide_Preconditions(t *testing.T) {
	h := newHarness(t)
	driverID, _ := h.onlineDriver(nearby)
	r := requestAirportRide(h, uuid.New())

	t.Run("offline driver", func(t *testing.T) {
		_, err := h.drivers.SetStatus(h.ctx, driverID, driverDomain.StatusOffline)
		require.NoError(t, err)
		_, err = h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{})
		requireKind(t, err, domain.KindPrecondition)
		_, err = h.drivers.SetStatus(h.ctx, driverID, driverDomain.StatusOnline)
		require.NoError(t, err)
	})

	t.Run("vehicle of another driver", func(t *testing.T) {
		other := h.approvedVehicle(uuid.New())
		_, err := h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{VehicleID: &other})
		requireKind(t, err, domain.KindPrecondition)
	})

	t.Run("busy driver cannot take a second ride", func(t *testing.T) {
		_, err := h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{})
		require.NoError(t, err)

		second := requestAirportRide(h, uuid.New())
		assert.Equal(t, rideDomain.StatusPending.String(), second.Status, "busy drivers are not matched")
		_, err = h.rides.AcceptRide(h.ctx, second.ID, driverID, AcceptRideRequest{})
		requireKind(t, err, domain.KindPrecondition)
	})
}

func TestCancelRide_ReleasesDriverAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	driverID, _ := h.onlineDriver(nearby)
	passengerID := uuid.New()
	r := requestAirportRide(h, passengerID)
	_, err := h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{})
	require.NoError(t, err)

	_, err = h.rides.CancelRide(h.ctx, r.ID, uuid.New(), "not mine")
	requireKind(t, err, domain.KindOwnership)

	cancelled, err := h.rides.CancelRide(h.ctx, r.ID, passengerID, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusCancelled.String(), cancelled.Status)
	assert.Equal(t, "changed plans", cancelled.CancelReason)
	assert.Equal(t, driverDomain.StatusOnline.String(), h.driverState(driverID).Status)

	again, err := h.rides.CancelRide(h.ctx, r.ID, passengerID, "again")
	require.NoError(t, err)
	assert.Equal(t, cancelled.Version, again.Version)
	assert.Equal(t, "changed plans", again.CancelReason)

	var cancelNotes int
	for _, n := range h.rec.notificationsFor(driverID) {
		if n.Type == domain.NotificationMatchCancelled {
			cancelNotes++
			assert.Contains(t, n.Body, "passenger")
		}
	}
	assert.Equal(t, 1, cancelNotes)

	_, err = h.rides.CompleteRide(h.ctx, r.ID, driverID)
	requireKind(t, err, domain.KindInvalidState)
}

func TestExpireRide(t *testing.T) {
	h := newHarness(t)
	driverID, _ := h.onlineDriver(nearby)
	passengerID := uuid.New()
	waiting := requestAirportRide(h, passengerID)

	expired, err := h.rides.ExpireRide(h.ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusCancelled.String(), expired.Status)
	assert.Equal(t, rideDomain.CancelReasonExpired, expired.CancelReason)
	assert.Contains(t, h.rec.lastEvent().Recipients, driverID, "offered drivers drop the offer")

	again, err := h.rides.ExpireRide(h.ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, expired.Version, again.Version)

	accepted := requestAirportRide(h, passengerID)
	_, err = h.rides.AcceptRide(h.ctx, accepted.ID, driverID, AcceptRideRequest{})
	require.NoError(t, err)
	_, err = h.rides.ExpireRide(h.ctx, accepted.ID)
	requireKind(t, err, domain.KindInvalidState)

	_, err = h.rides.ExpireRide(h.ctx, uuid.New())
	requireKind(t, err, domain.KindNotFound)
}

func TestStartPersonalRide(t *testing.T) {
	h := newHarness(t)
	driverID := uuid.New()

	_, err := h.rides.StartPersonalRide(h.ctx, driverID, StartPersonalRideRequest{Pickup: benThanh, Destination: airport})
	requireKind(t, err, domain.KindPrecondition)

	vehicleID := h.approvedVehicle(driverID)
	r, err := h.rides.StartPersonalRide(h.ctx, driverID, StartPersonalRideRequest{Pickup: benThanh, Destination: airport})
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusInProgress.String(), r.Status)
	assert.Equal(t, string(rideDomain.KindPersonal), r.Kind)
	assert.Equal(t, driverID, r.PassengerID)
	assert.Equal(t, vehicleID, *r.VehicleID)
	assert.Nil(t, r.Fare)

	h.clock.Advance(20 * time.Minute)
	done, err := h.rides.CompleteRide(h.ctx, r.ID, driverID)
	require.NoError(t, err)
	require.NotNil(t, done.Fare)
	assert.Equal(t, h.fare.Fare(r.DistanceKm), *done.Fare)
	assert.Equal(t, int64(0), h.driverState(driverID).RidesCompleted, "personal rides are not dispatch stats")
	assert.Empty(t, h.rec.notificationsFor(driverID))
}

func TestRideQueries(t *testing.T) {
	h := newHarness(t)
	driverID, _ := h.onlineDriver(nearby)
	passengerID := uuid.New()

	first := requestAirportRide(h, passengerID)
	h.clock.Advance(time.Minute)
	second := requestAirportRide(h, passengerID)

	waiting, err := h.rides.ListWaitingRides(h.ctx, 10)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, first.ID, waiting[0].ID)

	_, err = h.rides.AcceptRide(h.ctx, second.ID, driverID, AcceptRideRequest{})
	require.NoError(t, err)

	page, err := h.rides.ListPassengerRides(h.ctx, passengerID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, second.ID, page.Items[0].ID)

	mine, err := h.rides.ListDriverRides(h.ctx, driverID, 1, 10)
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, second.ID, mine.Items[0].ID)
}

func TestDispatcherFailuresDoNotFailTransitions(t *testing.T) {
	h := newHarness(t)
	driverID, _ := h.onlineDriver(nearby)
	h.rec.fail = errors.New("broker down")

	r := requestAirportRide(h, uuid.New())
	assert.Equal(t, rideDomain.StatusWaiting.String(), r.Status)

	accepted, err := h.rides.AcceptRide(h.ctx, r.ID, driverID, AcceptRideRequest{})
	require.NoError(t, err)
	assert.Equal(t, rideDomain.StatusAccepted.String(), accepted.Status)
	assert.Empty(t, h.rec.notifications)
}
