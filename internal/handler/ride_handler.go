package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/response"
)

// RideHandler handles HTTP requests for on-demand and personal rides.
type RideHandler struct {
	service *application.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(service *application.RideService) *RideHandler {
	return &RideHandler{service: service}
}

// RegisterRoutes registers all ride routes on the given router group.
func (h *RideHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	passenger := middleware.RequireRole(auth.RolePassenger)
	driver := middleware.RequireRole(auth.RoleDriver)

	rides := r.Group("/api/v1/rides")
	rides.Use(authMW)
	{
		rides.POST("", passenger, h.RequestRide)
		rides.GET("", h.ListRides)
		rides.GET("/waiting", driver, h.ListWaitingRides)
		rides.POST("/personal", driver, h.StartPersonalRide)
		rides.GET("/:id", h.GetRide)
		rides.POST("/:id/redispatch", passenger, h.Redispatch)
		rides.POST("/:id/accept", driver, h.AcceptRide)
		rides.POST("/:id/arrived", driver, h.DriverArrived)
		rides.POST("/:id/start", driver, h.StartRide)
		rides.POST("/:id/complete", driver, h.CompleteRide)
		rides.POST("/:id/cancel", h.CancelRide)
	}
}

// RequestRide handles POST /api/v1/rides.
func (h *RideHandler) RequestRide(c *gin.Context) {
	passengerID, ok := actor(c)
	if !ok {
		return
	}

	var req application.RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RequestRide(c.Request.Context(), passengerID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListRides handles GET /api/v1/rides. Drivers see rides they served,
// everyone else the rides they requested.
func (h *RideHandler) ListRides(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	role, _ := middleware.GetUserRole(c)
	page, limit := parsePagination(c)

	list := h.service.ListPassengerRides
	if role == auth.RoleDriver {
		list = h.service.ListDriverRides
	}
	result, err := list(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// ListWaitingRides handles GET /api/v1/rides/waiting.
func (h *RideHandler) ListWaitingRides(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.service.ListWaitingRides(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// StartPersonalRide handles POST /api/v1/rides/personal.
func (h *RideHandler) StartPersonalRide(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	var req application.StartPersonalRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.StartPersonalRide(c.Request.Context(), driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// GetRide handles GET /api/v1/rides/:id.
func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}

	result, err := h.service.GetRide(c.Request.Context(), rideID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Redispatch handles POST /api/v1/rides/:id/redispatch.
func (h *RideHandler) Redispatch(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	passengerID, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.service.Redispatch(c.Request.Context(), rideID, passengerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AcceptRide handles POST /api/v1/rides/:id/accept.
func (h *RideHandler) AcceptRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	driverID, ok := actor(c)
	if !ok {
		return
	}

	var req application.AcceptRideRequest
	_ = c.ShouldBindJSON(&req) // the body is optional

	result, err := h.service.AcceptRide(c.Request.Context(), rideID, driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// DriverArrived handles POST /api/v1/rides/:id/arrived.
func (h *RideHandler) DriverArrived(c *gin.Context) {
	h.driverStep(c, h.service.DriverArrived)
}

// StartRide handles POST /api/v1/rides/:id/start.
func (h *RideHandler) StartRide(c *gin.Context) {
	h.driverStep(c, h.service.StartRide)
}

// CompleteRide handles POST /api/v1/rides/:id/complete.
func (h *RideHandler) CompleteRide(c *gin.Context) {
	h.driverStep(c, h.service.CompleteRide)
}

// CancelRide handles POST /api/v1/rides/:id/cancel.
func (h *RideHandler) CancelRide(c *gin.Context) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	userID, ok := actor(c)
	if !ok {
		return
	}

	var body application.CancelRequest
	_ = c.ShouldBindJSON(&body)

	result, err := h.service.CancelRide(c.Request.Context(), rideID, userID, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// driverStep runs a driver-side transition on the ride named by :id.
func (h *RideHandler) driverStep(c *gin.Context, step func(ctx context.Context, rideID, driverID uuid.UUID) (*application.RideDTO, error)) {
	rideID, ok := pathID(c, "ride")
	if !ok {
		return
	}
	driverID, ok := actor(c)
	if !ok {
		return
	}

	result, err := step(c.Request.Context(), rideID, driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
