package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/response"
)

// AdminHandler handles operator requests: vehicle review, driver stats and
// manual expiry.
type AdminHandler struct {
	drivers  *application.DriverService
	rides    *application.RideService
	bookings *application.BookingService
	expiry   *application.ExpiryWorker
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	drivers *application.DriverService,
	rides *application.RideService,
	bookings *application.BookingService,
	expiry *application.ExpiryWorker,
) *AdminHandler {
	return &AdminHandler{drivers: drivers, rides: rides, bookings: bookings, expiry: expiry}
}

// RegisterRoutes registers admin routes.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	adminRole := middleware.RequireRole(auth.RoleAdmin)

	admin := r.Group("/api/v1/admin")
	admin.Use(authMW, adminRole)
	{
		admin.GET("/drivers/:id", h.GetDriver)
		admin.GET("/drivers/:id/vehicles", h.ListDriverVehicles)
		admin.PATCH("/vehicles/:id", h.ReviewVehicle)
		admin.POST("/rides/:id/expire", h.ExpireRide)
		admin.POST("/bookings/:id/expire", h.ExpireBooking)
		admin.POST("/expiry/sweep", h.Sweep)
	}
}

// GetDriver handles GET /api/v1/admin/drivers/:id.
func (h *AdminHandler) GetDriver(c *gin.Context) {
	driverID, ok := pathID(c, "driver")
	if !ok {
		return
	}

	result, err := h.drivers.GetDriver(c.Request.Context(), driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ListDriverVehicles handles GET /api/v1/admin/drivers/:id/vehicles.
func (h *AdminHandler) ListDriverVehicles(c *gin.Context) {
	driverID, ok := pathID(c, "driver")
	if !ok {
		return
	}

	result, err := h.drivers.ListVehicles(c.Request.Context(), driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ReviewVehicle handles PATCH /api/v1/admin/vehicles/:id.
func (h *AdminHandler) ReviewVehicle(c *gin.Context) {
	vehicleID, ok := pathID(c, "vehicle")
	if !ok {
		return
	}

	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.drivers.ReviewVehicle(c.Request.Context(), vehicleID, driverDomain.VehicleStatus(body.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ExpireRide handles POST /api/v1/admin/rides/:id/expire.
func (h *AdminHandler) ExpireRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}

	result, err := h.rides.ExpireRide(c.Request.Context(), rideID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ExpireBooking handles POST /api/v1/admin/bookings/:id/expire.
func (h *AdminHandler) ExpireBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}

	result, err := h.bookings.ExpireBooking(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Sweep handles POST /api/v1/admin/expiry/sweep.
func (h *AdminHandler) Sweep(c *gin.Context) {
	result, err := h.expiry.SweepOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
