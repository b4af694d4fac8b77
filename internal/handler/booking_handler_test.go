package handler_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const travelDate = "2030-05-20"

func TestRouteBookingFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	_, driverTok, vehicleID := api.onboardDriver(domain.GeoPoint{Latitude: 10.7800, Longitude: 106.6990})

	var rt application.RouteDTO
	api.call(http.MethodPost, "/api/v1/routes", application.CreateRouteRequest{
		VehicleID:     vehicleID,
		Name:          "Morning airport run",
		Pickup:        benThanh,
		Dropoff:       airport,
		DepartureTime: "07:30",
		Dates:         []string{travelDate},
		PricePerSeat:  40,
		TotalSeats:    3,
	}, driverTok, http.StatusCreated, &rt)
	assert.Equal(t, 3, rt.AvailableSeats)

	passengerID := uuid.New()
	passengerTok := api.token(passengerID, auth.RolePassenger)

	var hits []application.RouteMatchDTO
	api.call(http.MethodGet, "/api/v1/routes/search?pickup_lat=10.7726&pickup_lng=106.6980&dropoff_lat=10.8185&dropoff_lng=106.6588&seats=2&date="+travelDate,
		nil, passengerTok, http.StatusOK, &hits)
	require.Len(t, hits, 1)
	assert.Equal(t, rt.ID, hits[0].Route.ID)

	var bk application.BookingDTO
	api.call(http.MethodPost, "/api/v1/bookings", application.CreateBookingRequest{
		RouteID: rt.ID,
		Pickup:  benThanh,
		Dropoff: airport,
		Date:    travelDate,
		Seats:   2,
	}, passengerTok, http.StatusCreated, &bk)
	assert.Equal(t, "pending", bk.Status)
	assert.EqualValues(t, 80, bk.TotalPrice)

	w := api.do(http.MethodGet, "/api/v1/bookings?status=pending", nil, driverTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), bk.ID.String())

	bookingURL := "/api/v1/bookings/" + bk.ID.String()
	api.call(http.MethodPost, bookingURL+"/accept", nil, driverTok, http.StatusOK, &bk)
	assert.Equal(t, "accepted", bk.Status)

	api.call(http.MethodGet, "/api/v1/routes/"+rt.ID.String(), nil, passengerTok, http.StatusOK, &rt)
	assert.Equal(t, 1, rt.AvailableSeats)

	var onRoute []application.BookingDTO
	api.call(http.MethodGet, "/api/v1/routes/"+rt.ID.String()+"/bookings", nil, driverTok, http.StatusOK, &onRoute)
	require.Len(t, onRoute, 1)

	api.call(http.MethodPost, bookingURL+"/start", nil, driverTok, http.StatusOK, &bk)
	assert.Equal(t, "in_progress", bk.Status)
	require.NotNil(t, bk.RideID)

	api.call(http.MethodPost, bookingURL+"/complete", nil, driverTok, http.StatusOK, &bk)
	assert.Equal(t, "completed", bk.Status)

	var ride application.RideDTO
	api.call(http.MethodGet, "/api/v1/rides/"+bk.RideID.String(), nil, passengerTok, http.StatusOK, &ride)
	assert.Equal(t, "completed", ride.Status)
	require.NotNil(t, ride.Fare)
	assert.EqualValues(t, 80, *ride.Fare)
}

func TestBookingHandler_Errors(t *testing.T) {
	api := newTestAPI(t)
	driverID, driverTok, vehicleID := api.onboardDriver(domain.GeoPoint{Latitude: 10.7800, Longitude: 106.6990})
	passengerTok := api.token(uuid.New(), auth.RolePassenger)

	route := application.CreateRouteRequest{
		VehicleID:     vehicleID,
		Name:          "Single seat",
		Pickup:        benThanh,
		Dropoff:       airport,
		DepartureTime: "07:30",
		Dates:         []string{travelDate},
		PricePerSeat:  40,
		TotalSeats:    1,
	}

	w := api.do(http.MethodPost, "/api/v1/routes", route, passengerTok)
	assert.Equal(t, http.StatusForbidden, w.Code, "passengers cannot publish routes")

	var rt application.RouteDTO
	api.call(http.MethodPost, "/api/v1/routes", route, driverTok, http.StatusCreated, &rt)

	booking := application.CreateBookingRequest{RouteID: rt.ID, Pickup: benThanh, Dropoff: airport, Date: travelDate, Seats: 1}
	var bk application.BookingDTO
	api.call(http.MethodPost, "/api/v1/bookings", booking, passengerTok, http.StatusCreated, &bk)

	w = api.do(http.MethodPost, "/api/v1/bookings", booking, passengerTok)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(domain.KindPrecondition), errorCode(t, w))

	w = api.do(http.MethodPost, "/api/v1/bookings/"+bk.ID.String()+"/cancel", nil, api.token(uuid.New(), auth.RolePassenger))
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(domain.KindOwnership), errorCode(t, w))

	w = api.do(http.MethodPost, "/api/v1/bookings/"+bk.ID.String()+"/complete", nil, driverTok)
	require.Equal(t, http.StatusConflict, w.Code)

	w = api.do(http.MethodGet, "/api/v1/bookings?status=sleeping", nil, driverTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/routes/"+rt.ID.String(), nil, driverTok)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, "route still has a pending booking")

	api.call(http.MethodPost, "/api/v1/bookings/"+bk.ID.String()+"/reject", nil, driverTok, http.StatusOK, &bk)
	assert.Equal(t, "rejected", bk.Status)

	w = api.do(http.MethodDelete, "/api/v1/routes/"+rt.ID.String(), nil, driverTok)
	require.Equal(t, http.StatusNoContent, w.Code)

	var stats application.DriverDTO
	api.call(http.MethodGet, "/api/v1/admin/drivers/"+driverID.String(), nil, api.token(uuid.New(), auth.RoleAdmin), http.StatusOK, &stats)
	assert.Equal(t, driverID, stats.DriverID)

	var sweep application.SweepResult
	api.call(http.MethodPost, "/api/v1/admin/expiry/sweep", nil, api.token(uuid.New(), auth.RoleAdmin), http.StatusOK, &sweep)
	assert.Equal(t, application.SweepResult{}, sweep)
}
