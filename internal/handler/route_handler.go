package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/domain"
	routeDomain "github.com/ridemate/service-dispatch/internal/domain/route"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/response"
)

// RouteHandler handles HTTP requests for fixed routes.
type RouteHandler struct {
	routes   *application.RouteService
	bookings *application.BookingService
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(routes *application.RouteService, bookings *application.BookingService) *RouteHandler {
	return &RouteHandler{routes: routes, bookings: bookings}
}

// RegisterRoutes registers all fixed-route routes on the given router group.
func (h *RouteHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	driver := middleware.RequireRole(auth.RoleDriver)

	routes := r.Group("/api/v1/routes")
	routes.Use(authMW)
	{
		routes.POST("", driver, h.CreateRoute)
		routes.GET("", h.ListActiveRoutes)
		routes.GET("/mine", driver, h.ListMyRoutes)
		routes.GET("/search", h.SearchRoutes)
		routes.GET("/:id", h.GetRoute)
		routes.PUT("/:id", driver, h.UpdateRoute)
		routes.PATCH("/:id/status", driver, h.SetRouteStatus)
		routes.DELETE("/:id", driver, h.DeleteRoute)
		routes.GET("/:id/bookings", driver, h.ListRouteBookings)
	}
}

// CreateRoute handles POST /api/v1/routes.
func (h *RouteHandler) CreateRoute(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	var req application.CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.routes.CreateRoute(c.Request.Context(), driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListActiveRoutes handles GET /api/v1/routes.
func (h *RouteHandler) ListActiveRoutes(c *gin.Context) {
	result, err := h.routes.ListActiveRoutes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ListMyRoutes handles GET /api/v1/routes/mine.
func (h *RouteHandler) ListMyRoutes(c *gin.Context) {
	driverID, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.routes.ListDriverRoutes(c.Request.Context(), driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

type searchQuery struct {
	PickupLat  float64 `form:"pickup_lat"`
	PickupLng  float64 `form:"pickup_lng"`
	DropoffLat float64 `form:"dropoff_lat"`
	DropoffLng float64 `form:"dropoff_lng"`
	Date       string  `form:"date"`
	Seats      int     `form:"seats"`
}

// SearchRoutes handles GET /api/v1/routes/search.
func (h *RouteHandler) SearchRoutes(c *gin.Context) {
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.routes.SearchRoutes(c.Request.Context(), application.SearchRoutesRequest{
		Pickup:  domain.GeoPoint{Latitude: q.PickupLat, Longitude: q.PickupLng},
		Dropoff: domain.GeoPoint{Latitude: q.DropoffLat, Longitude: q.DropoffLng},
		Date:    q.Date,
		Seats:   q.Seats,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// GetRoute handles GET /api/v1/routes/:id.
func (h *RouteHandler) GetRoute(c *gin.Context) {
	routeID, ok := pathID(c, "route")
	if !ok {
		return
	}

	result, err := h.routes.GetRoute(c.Request.Context(), routeID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateRoute handles PUT /api/v1/routes/:id.
func (h *RouteHandler) UpdateRoute(c *gin.Context) {
	routeID, ok := pathID(c, "route")
	if !ok {
		return
	}
	driverID, ok := actor(c)
	if !ok {
		return
	}

	var req application.UpdateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.routes.UpdateRoute(c.Request.Context(), routeID, driverID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// SetRouteStatus handles PATCH /api/v1/routes/:id/status.
func (h *RouteHandler) SetRouteStatus(c *gin.Context) {
	routeID, ok := pathID(c, "route")
	if !ok {
		return
	}
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

	result, err := h.routes.SetRouteStatus(c.Request.Context(), routeID, driverID, routeDomain.RouteStatus(body.Status))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// DeleteRoute handles DELETE /api/v1/routes/:id.
func (h *RouteHandler) DeleteRoute(c *gin.Context) {
	routeID, ok := pathID(c, "route")
	if !ok {
		return
	}
	driverID, ok := actor(c)
	if !ok {
		return
	}

	if err := h.routes.DeleteRoute(c.Request.Context(), routeID, driverID); err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListRouteBookings handles GET /api/v1/routes/:id/bookings.
func (h *RouteHandler) ListRouteBookings(c *gin.Context) {
	routeID, ok := pathID(c, "route")
	if !ok {
		return
	}
	driverID, ok := actor(c)
	if !ok {
		return
	}

	result, err := h.bookings.GetRouteBookings(c.Request.Context(), routeID, driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
