package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/domain"
	bookingDomain "github.com/ridemate/service-dispatch/internal/domain/booking"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/response"
)

// BookingHandler handles HTTP requests for seat bookings on fixed routes.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers all booking routes on the given router group.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	authMW := middleware.AuthMiddleware(jwtManager)
	passenger := middleware.RequireRole(auth.RolePassenger)
	driver := middleware.RequireRole(auth.RoleDriver)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW)
	{
		bookings.POST("", passenger, h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/accept", driver, h.AcceptBooking)
		bookings.POST("/:id/reject", driver, h.RejectBooking)
		bookings.POST("/:id/start", driver, h.StartTrip)
		bookings.POST("/:id/complete", driver, h.CompleteTrip)
		bookings.POST("/:id/cancel", passenger, h.CancelBooking)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	passengerID, ok := actor(c)
	if !ok {
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), passengerID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings. Drivers see bookings across their
// routes, optionally filtered by ?status=; passengers see their own.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	role, _ := middleware.GetUserRole(c)
	page, limit := parsePagination(c)

	var (
		result *domain.PaginatedResult[application.BookingDTO]
		err    error
	)
	if role == auth.RoleDriver {
		var status *bookingDomain.BookingStatus
		if raw := c.Query("status"); raw != "" {
			s := bookingDomain.BookingStatus(raw)
			status = &s
		}
		result, err = h.service.GetDriverBookings(c.Request.Context(), userID, status, page, limit)
	} else {
		result, err = h.service.GetPassengerBookings(c.Request.Context(), userID, page, limit)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// AcceptBooking handles POST /api/v1/bookings/:id/accept.
func (h *BookingHandler) AcceptBooking(c *gin.Context) {
	h.driverStep(c, h.service.AcceptBooking)
}

// RejectBooking handles POST /api/v1/bookings/:id/reject.
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	h.driverStep(c, h.service.RejectBooking)
}

// StartTrip handles POST /api/v1/bookings/:id/start.
func (h *BookingHandler) StartTrip(c *gin.Context) {
	h.driverStep(c, h.service.StartTrip)
}

// CompleteTrip handles POST /api/v1/bookings/:id/complete.
func (h *BookingHandler) CompleteTrip(c *gin.Context) {
	h.driverStep(c, h.service.CompleteTrip)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	passengerID, ok := actor(c)
	if !ok {
		return
	}

	var body application.CancelRequest
	_ = c.ShouldBindJSON(&body)

	result, err := h.service.CancelBooking(c.Request.Context(), bookingID, passengerID, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

func (h *BookingHandler) driverStep(c *gin.Context, step func(ctx context.Context, bookingID, driverID uuid.UUID) (*application.BookingDTO, error)) {
	bookingID, ok := pathID(c, "booking")
	if !ok {
		return
	}
	driverID, ok := actor(c)
	if !ok {
		return
	}

	result, err := step(c.Request.Context(), bookingID, driverID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
