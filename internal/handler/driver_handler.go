package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/response"
)

// DriverHandler handles a driver's own availability, position and vehicles.
type DriverHandler struct {
	service *application.DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(service *application.DriverService) *DriverHandler {
	return &DriverHandler{service: service}
}

// RegisterRoutes registers all driver routes on the given router group.
func (h *DriverHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	me := r.Group("/api/v1/drivers/me")
	me.Use(middleware.AuthMiddleware(jwtManager), middleware.RequireRole(auth.RoleDriver))
	{
		me.GET("", h.GetMe)
		me.PUT("/location", h.UpdateLocation)
		me.PUT("/status", h.SetStatus)
		me.POST("/vehicles", h.RegisterVehicle)
		me.GET("/vehicles", h.ListVehicles)
	}
}

// GetMe handles GET /api/v1/drivers/me.
func (h *DriverHandler) GetMe(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.service.GetDriver(c.Request.Context(), driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateLocation handles PUT /api/v1/drivers/me/location.
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	var req application.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpdateLocation(c.Request.Context(), driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SetStatus handles PUT /api/v1/drivers/me/status.
func (h *DriverHandler) SetStatus(c *gin.Context) {
	driverID, ok := actor(c)
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
	status, err := driverDomain.ParseStatus(body.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.SetStatus(c.Request.Context(), driverID, status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RegisterVehicle handles POST /api/v1/drivers/me/vehicles.
func (h *DriverHandler) RegisterVehicle(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	var req application.RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RegisterVehicle(c.Request.Context(), driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListVehicles handles GET /api/v1/drivers/me/vehicles.
func (h *DriverHandler) ListVehicles(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.service.ListVehicles(c.Request.Context(), driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
