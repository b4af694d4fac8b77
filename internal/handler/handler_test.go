package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/directory"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/handler"
	"github.com/ridemate/service-dispatch/internal/realtime"
	"github.com/ridemate/service-dispatch/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	benThanh = domain.Location{Point: domain.GeoPoint{Latitude: 10.7726, Longitude: 106.6980}, Address: "Ben Thanh Market"}
	airport  = domain.Location{Point: domain.GeoPoint{Latitude: 10.8185, Longitude: 106.6588}, Address: "Tan Son Nhat Airport"}
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// testAPI wires every handler over in-memory storage.
type testAPI struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTManager
	hub    *realtime.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	store := memory.NewStore()
	states := memory.NewDriverStates()
	vehicles := memory.NewVehicles()
	fare := rideDomain.NewCoinFarePolicy()
	clk := clock.WallClock

	hub := realtime.NewHub(logger)
	t.Cleanup(hub.Close)
	dispatcher := application.NewDispatcher(nil, logger, hub)
	matcher := matching.NewMatcher(directory.New(states, vehicles), clk, matching.DefaultConfig(), logger)

	drivers := application.NewDriverService(states, vehicles, dispatcher, clk, logger)
	rides := application.NewRideService(store, matcher, drivers, fare, dispatcher, clk, logger)
	routes := application.NewRouteService(store, vehicles, clk, logger)
	bookings := application.NewBookingService(store, routes, fare, dispatcher, clk, logger)
	worker := application.NewExpiryWorker(store, rides, bookings, clk, application.ExpiryConfig{
		Interval:          time.Minute,
		RidePendingTTL:    10 * time.Minute,
		BookingPendingTTL: 24 * time.Hour,
	}, logger)

	jwtManager := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)
	r := gin.New()
	api := &r.RouterGroup
	handler.NewRideHandler(rides).RegisterRoutes(api, jwtManager)
	handler.NewRouteHandler(routes, bookings).RegisterRoutes(api, jwtManager)
	handler.NewBookingHandler(bookings).RegisterRoutes(api, jwtManager)
	handler.NewDriverHandler(drivers).RegisterRoutes(api, jwtManager)
	handler.NewAdminHandler(drivers, rides, bookings, worker).RegisterRoutes(api, jwtManager)
	handler.NewRealtimeHandler(hub, logger).RegisterRoutes(api, jwtManager)

	return &testAPI{t: t, router: r, jwt: jwtManager, hub: hub}
}

func (a *testAPI) token(userID uuid.UUID, role auth.Role) string {
	a.t.Helper()
	tok, err := a.jwt.GenerateAccessToken(userID, role)
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// call performs the request, asserts the status and decodes data into out.
func (a *testAPI) call(method, path string, body interface{}, token string, wantStatus int, out interface{}) {
	a.t.Helper()
	w := a.do(method, path, body, token)
	require.Equal(a.t, wantStatus, w.Code, w.Body.String())
	if out == nil {
		return
	}
	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(a.t, env.Success, w.Body.String())
	require.NoError(a.t, json.Unmarshal(env.Data, out))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error, w.Body.String())
	return env.Error.Code
}

// onboardDriver registers a vehicle, has an admin approve it, and brings the
// driver online at p.
func (a *testAPI) onboardDriver(p domain.GeoPoint) (uuid.UUID, string, uuid.UUID) {
	a.t.Helper()
	driverID := uuid.New()
	driverTok := a.token(driverID, auth.RoleDriver)
	adminTok := a.token(uuid.New(), auth.RoleAdmin)

	var vehicle struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}
	a.call(http.MethodPost, "/api/v1/drivers/me/vehicles", map[string]any{
		"plate_number": "51A-" + driverID.String()[:5],
		"type":         "car",
		"capacity":     4,
	}, driverTok, http.StatusCreated, &vehicle)
	require.Equal(a.t, "pending", vehicle.Status)

	a.call(http.MethodPatch, "/api/v1/admin/vehicles/"+vehicle.ID.String(),
		map[string]string{"status": "approved"}, adminTok, http.StatusOK, &vehicle)
	a.call(http.MethodPut, "/api/v1/drivers/me/status",
		map[string]string{"status": "online"}, driverTok, http.StatusOK, nil)
	a.call(http.MethodPut, "/api/v1/drivers/me/location",
		application.UpdateLocationRequest{Latitude: p.Latitude, Longitude: p.Longitude}, driverTok, http.StatusOK, nil)
	return driverID, driverTok, vehicle.ID
}
