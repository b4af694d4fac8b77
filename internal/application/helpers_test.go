package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/ridemate/service-dispatch/internal/directory"
	"github.com/ridemate/service-dispatch/internal/domain"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	startTime = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	tripDate  = "2026-03-10"

	benThanh = domain.Location{Point: domain.GeoPoint{Latitude: 10.7726, Longitude: 106.6980}, Address: "Ben Thanh Market"}
	airport  = domain.Location{Point: domain.GeoPoint{Latitude: 10.8185, Longitude: 106.6588}, Address: "Tan Son Nhat Airport"}
	nearby   = domain.GeoPoint{Latitude: 10.7800, Longitude: 106.6990}
	farAway  = domain.GeoPoint{Latitude: 10.9500, Longitude: 106.8500}
)

// recorder captures everything the dispatcher flushes.
type recorder struct {
	mu            sync.Mutex
	notifications []domain.Notification
	events        []domain.MatchEvent
	locations     []domain.DriverLocation
	fail          error
}

func (r *recorder) Notify(_ context.Context, n domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recorder) PublishMatchEvent(_ context.Context, e domain.MatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) PublishDriverLocation(_ context.Context, l domain.DriverLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.locations = append(r.locations, l)
	return nil
}

func (r *recorder) notificationsFor(userID uuid.UUID) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) typesFor(userID uuid.UUID) []domain.NotificationType {
	var out []domain.NotificationType
	for _, n := range r.notificationsFor(userID) {
		out = append(out, n.Type)
	}
	return out
}

func (r *recorder) lastEvent() domain.MatchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	clock    *testclock.Clock
	store    *memory.Store
	states   *memory.DriverStates
	vehicles *memory.Vehicles
	rec      *recorder
	fare     rideDomain.CoinFarePolicy

	drivers  *DriverService
	rides    *RideService
	routes   *RouteService
	bookings *BookingService
	worker   *ExpiryWorker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		clock:    testclock.NewClock(startTime),
		store:    memory.NewStore(),
		states:   memory.NewDriverStates(),
		vehicles: memory.NewVehicles(),
		rec:      &recorder{},
		fare:     rideDomain.NewCoinFarePolicy(),
	}

	dispatcher := NewDispatcher(h.rec, logger, h.rec)
	matcher := matching.NewMatcher(directory.New(h.states, h.vehicles), h.clock, matching.DefaultConfig(), logger)

	h.drivers = NewDriverService(h.states, h.vehicles, dispatcher, h.clock, logger)
	h.rides = NewRideService(h.store, matcher, h.drivers, h.fare, dispatcher, h.clock, logger)
	h.routes = NewRouteService(h.store, h.vehicles, h.clock, logger)
	h.bookings = NewBookingService(h.store, h.routes, h.fare, dispatcher, h.clock, logger)
	h.worker = NewExpiryWorker(h.store, h.rides, h.bookings, h.clock, ExpiryConfig{
		Interval:          time.Minute,
		RidePendingTTL:    10 * time.Minute,
		BookingPendingTTL: 24 * time.Hour,
	}, logger)
	return h
}

// approvedVehicle registers and approves a vehicle for driverID.
func (h *harness) approvedVehicle(driverID uuid.UUID) uuid.UUID {
	h.t.Helper()
	v, err := h.drivers.RegisterVehicle(h.ctx, driverID, RegisterVehicleRequest{
		PlateNumber: "51A-" + driverID.String()[:6],
		Type:        "car",
		Capacity:    4,
	})
	require.NoError(h.t, err)
	_, err = h.drivers.ReviewVehicle(h.ctx, v.ID, driverDomain.VehicleApproved)
	require.NoError(h.t, err)
	return v.ID
}

// onlineDriver creates a driver with an approved vehicle, online at p.
func (h *harness) onlineDriver(p domain.GeoPoint) (uuid.UUID, uuid.UUID) {
	h.t.Helper()
	driverID := uuid.New()
	vehicleID := h.approvedVehicle(driverID)
	_, err := h.drivers.SetStatus(h.ctx, driverID, driverDomain.StatusOnline)
	require.NoError(h.t, err)
	_, err = h.drivers.UpdateLocation(h.ctx, driverID, UpdateLocationRequest{Latitude: p.Latitude, Longitude: p.Longitude})
	require.NoError(h.t, err)
	return driverID, vehicleID
}

// publishRoute creates a driver with a route from Ben Thanh to the airport on tripDate.
func (h *harness) publishRoute(seats int) (*RouteDTO, uuid.UUID) {
	h.t.Helper()
	driverID := uuid.New()
	vehicleID := h.approvedVehicle(driverID)
	rt, err := h.routes.CreateRoute(h.ctx, driverID, CreateRouteRequest{
		VehicleID:     vehicleID,
		Name:          "Morning airport run",
		Pickup:        benThanh,
		Dropoff:       airport,
		DepartureTime: "07:30",
		Dates:         []string{tripDate, "2026-03-11"},
		PricePerSeat:  40,
		TotalSeats:    seats,
	})
	require.NoError(h.t, err)
	return rt, driverID
}

func (h *harness) book(routeID, passengerID uuid.UUID, seats int) (*BookingDTO, error) {
	return h.bookings.CreateBooking(h.ctx, passengerID, CreateBookingRequest{
		RouteID: routeID,
		Pickup:  benThanh,
		Dropoff: airport,
		Date:    tripDate,
		Seats:   seats,
	})
}

func (h *harness) availableSeats(routeID uuid.UUID) int {
	h.t.Helper()
	rt, err := h.routes.GetRoute(h.ctx, routeID)
	require.NoError(h.t, err)
	return rt.AvailableSeats
}

func (h *harness) driverState(driverID uuid.UUID) *DriverDTO {
	h.t.Helper()
	d, err := h.drivers.GetDriver(h.ctx, driverID)
	require.NoError(h.t, err)
	return d
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := domain.KindOf(err)
	require.True(t, ok, "expected a domain error, got %v", err)
	require.Equal(t, kind, got, err.Error())
}
