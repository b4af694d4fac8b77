package application

import (
	"testing"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	routeDomain "github.com/ridemate/service-dispatch/internal/domain/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeRequest(vehicleID uuid.UUID) CreateRouteRequest {
	return CreateRouteRequest{
		VehicleID:     vehicleID,
		Name:          "Evening commute",
		Pickup:        benThanh,
		Dropoff:       airport,
		DepartureTime: "17:45",
		Dates:         []string{tripDate},
		PricePerSeat:  30,
		TotalSeats:    3,
	}
}

func TestCreateRoute_VehicleChecks(t *testing.T) {
	h := newHarness(t)
	driverID := uuid.New()

	pending, err := h.drivers.RegisterVehicle(h.ctx, driverID, RegisterVehicleRequest{PlateNumber: "59C-12345", Capacity: 4})
	require.NoError(t, err)
	_, err = h.routes.CreateRoute(h.ctx, driverID, routeRequest(pending.ID))
	requireKind(t, err, domain.KindPrecondition)

	_, err = h.routes.CreateRoute(h.ctx, uuid.New(), routeRequest(pending.ID))
	requireKind(t, err, domain.KindOwnership)

	_, err = h.routes.CreateRoute(h.ctx, driverID, routeRequest(uuid.New()))
	requireKind(t, err, domain.KindNotFound)

	_, err = h.drivers.ReviewVehicle(h.ctx, pending.ID, driverDomain.VehicleApproved)
	require.NoError(t, err)
	rt, err := h.routes.CreateRoute(h.ctx, driverID, routeRequest(pending.ID))
	require.NoError(t, err)
	assert.Equal(t, routeDomain.StatusActive.String(), rt.Status)
	assert.Equal(t, 3, rt.AvailableSeats)
	assert.Equal(t, routeDomain.DefaultRadiusMeters, rt.PickupRadiusM)
	assert.InDelta(t, domain.HaversineMeters(benThanh.Point, airport.Point), rt.DistanceM, 0.001)

	bad := routeRequest(pending.ID)
	bad.DepartureTime = "quarter past five"
	_, err = h.routes.CreateRoute(h.ctx, driverID, bad)
	requireKind(t, err, domain.KindValidation)
}

func TestUpdateRoute_SeatDelta(t *testing.T) {
	h := newHarness(t)
	rt, driverID := h.publishRoute(3)
	bk, err := h.book(rt.ID, uuid.New(), 2)
	require.NoError(t, err)
	_, err = h.bookings.AcceptBooking(h.ctx, bk.ID, driverID)
	require.NoError(t, err)

	seats := 5
	name := "Airport express"
	updated, err := h.routes.UpdateRoute(h.ctx, rt.ID, driverID, UpdateRouteRequest{TotalSeats: &seats, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalSeats)
	assert.Equal(t, 3, updated.AvailableSeats)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, rt.Version+2, updated.Version, "accept and update each bump the version")

	seats = 1
	shrunk, err := h.routes.UpdateRoute(h.ctx, rt.ID, driverID, UpdateRouteRequest{TotalSeats: &seats})
	require.NoError(t, err)
	assert.Equal(t, 0, shrunk.AvailableSeats)

	_, err = h.routes.UpdateRoute(h.ctx, rt.ID, uuid.New(), UpdateRouteRequest{Name: &name})
	requireKind(t, err, domain.KindOwnership)
}

func TestSetRouteStatus(t *testing.T) {
	h := newHarness(t)
	rt, driverID := h.publishRoute(2)

	paused, err := h.routes.SetRouteStatus(h.ctx, rt.ID, driverID, routeDomain.StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, routeDomain.StatusInactive.String(), paused.Status)

	_, err = h.book(rt.ID, uuid.New(), 1)
	requireKind(t, err, domain.KindPrecondition)

	_, err = h.routes.SetRouteStatus(h.ctx, rt.ID, driverID, routeDomain.StatusCompleted)
	requireKind(t, err, domain.KindInvalidState)

	_, err = h.routes.SetRouteStatus(h.ctx, rt.ID, driverID, routeDomain.RouteStatus("paused"))
	requireKind(t, err, domain.KindValidation)
}

func TestDeleteRoute(t *testing.T) {
	h := newHarness(t)
	rt, driverID := h.publishRoute(2)
	passengerID := uuid.New()
	bk, err := h.book(rt.ID, passengerID, 1)
	require.NoError(t, err)

	err = h.routes.DeleteRoute(h.ctx, rt.ID, uuid.New())
	requireKind(t, err, domain.KindOwnership)

	err = h.routes.DeleteRoute(h.ctx, rt.ID, driverID)
	requireKind(t, err, domain.KindPrecondition)

	_, err = h.bookings.CancelBooking(h.ctx, bk.ID, passengerID, "")
	require.NoError(t, err)
	require.NoError(t, h.routes.DeleteRoute(h.ctx, rt.ID, driverID))

	got, err := h.routes.GetRoute(h.ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, routeDomain.StatusCancelled.String(), got.Status)

	kept, err := h.bookings.GetRouteBookings(h.ctx, rt.ID, driverID)
	require.NoError(t, err)
	require.Len(t, kept, 1, "bookings stay readable on a deleted route")
	assert.Equal(t, bk.ID, kept[0].ID)

	listed, err := h.routes.ListDriverRoutes(h.ctx, driverID)
	require.NoError(t, err)
	assert.Empty(t, listed)
	active, err := h.routes.ListActiveRoutes(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSearchRoutes(t *testing.T) {
	h := newHarness(t)
	exact, _ := h.publishRoute(2)

	driverID := uuid.New()
	vehicleID := h.approvedVehicle(driverID)
	offset := routeRequest(vehicleID)
	offset.Pickup = domain.Location{Point: domain.GeoPoint{Latitude: 10.7750, Longitude: 106.6985}, Address: "Le Loi"}
	offset.PickupRadiusM = 1000
	offset.TotalSeats = 1
	shifted, err := h.routes.CreateRoute(h.ctx, driverID, offset)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  SearchRoutesRequest
		want []uuid.UUID
	}{
		{"nearest pickup first", SearchRoutesRequest{Pickup: benThanh.Point, Dropoff: airport.Point}, []uuid.UUID{exact.ID, shifted.ID}},
		{"date filter", SearchRoutesRequest{Pickup: benThanh.Point, Dropoff: airport.Point, Date: "2026-03-11"}, []uuid.UUID{exact.ID}},
		{"seat filter", SearchRoutesRequest{Pickup: benThanh.Point, Dropoff: airport.Point, Seats: 2}, []uuid.UUID{exact.ID}},
		{"outside every radius", SearchRoutesRequest{Pickup: farAway, Dropoff: airport.Point}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.routes.SearchRoutes(h.ctx, tt.req)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(got))
			for _, m := range got {
				ids = append(ids, m.Route.ID)
			}
			if tt.want == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err = h.routes.SearchRoutes(h.ctx, SearchRoutesRequest{Pickup: domain.GeoPoint{Latitude: 91}, Dropoff: airport.Point})
	requireKind(t, err, domain.KindValidation)
}
