package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	bookingDomain "github.com/ridemate/service-dispatch/internal/domain/booking"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	routeDomain "github.com/ridemate/service-dispatch/internal/domain/route"
)

// --- Requests ---

// RequestRideRequest holds the data needed to request an on-demand ride.
type RequestRideRequest struct {
	Pickup      domain.Location `json:"pickup" binding:"required"`
	Destination domain.Location `json:"destination" binding:"required"`
}

// AcceptRideRequest optionally names the vehicle the driver accepts with.
type AcceptRideRequest struct {
	VehicleID *uuid.UUID `json:"vehicle_id"`
}

// CancelRequest carries a free-text reason.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// StartPersonalRideRequest starts a driver-initiated trip. A nil passenger means
// the driver is travelling alone.
type StartPersonalRideRequest struct {
	PassengerID *uuid.UUID      `json:"passenger_id"`
	VehicleID   *uuid.UUID      `json:"vehicle_id"`
	Pickup      domain.Location `json:"pickup" binding:"required"`
	Destination domain.Location `json:"destination" binding:"required"`
}

// CreateRouteRequest holds the data needed to publish a fixed route.
type CreateRouteRequest struct {
	VehicleID      uuid.UUID       `json:"vehicle_id" binding:"required"`
	Name           string          `json:"name" binding:"required"`
	Description    string          `json:"description"`
	Pickup         domain.Location `json:"pickup" binding:"required"`
	Dropoff        domain.Location `json:"dropoff" binding:"required"`
	PickupRadiusM  int             `json:"pickup_radius_m"`
	DropoffRadiusM int             `json:"dropoff_radius_m"`
	DepartureTime  string          `json:"departure_time" binding:"required"`
	Dates          []string        `json:"dates" binding:"required"`
	PricePerSeat   int64           `json:"price_per_seat"`
	TotalSeats     int             `json:"total_seats" binding:"required"`
}

// UpdateRouteRequest holds optional route changes.
type UpdateRouteRequest struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	DepartureTime  *string  `json:"departure_time"`
	Dates          []string `json:"dates"`
	PricePerSeat   *int64   `json:"price_per_seat"`
	TotalSeats     *int     `json:"total_seats"`
	PickupRadiusM  *int     `json:"pickup_radius_m"`
	DropoffRadiusM *int     `json:"dropoff_radius_m"`
}

// SearchRoutesRequest finds active routes serving a trip.
type SearchRoutesRequest struct {
	Pickup  domain.GeoPoint `json:"pickup"`
	Dropoff domain.GeoPoint `json:"dropoff"`
	Date    string          `json:"date"`
	Seats   int             `json:"seats"`
}

// CreateBookingRequest holds the data needed to book seats on a route.
type CreateBookingRequest struct {
	RouteID uuid.UUID       `json:"route_id" binding:"required"`
	Pickup  domain.Location `json:"pickup" binding:"required"`
	Dropoff domain.Location `json:"dropoff" binding:"required"`
	Date    string          `json:"date" binding:"required"`
	Seats   int             `json:"seats" binding:"required"`
	Notes   string          `json:"notes"`
}

// UpdateLocationRequest reports a driver position.
type UpdateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RegisterVehicleRequest registers a vehicle for approval.
type RegisterVehicleRequest struct {
	PlateNumber string `json:"plate_number" binding:"required"`
	Type        string `json:"type"`
	Capacity    int    `json:"capacity" binding:"required"`
}

// --- Responses ---

// RideDTO is the response representation of a ride.
type RideDTO struct {
	ID              uuid.UUID            `json:"id"`
	Kind            string               `json:"kind"`
	PassengerID     uuid.UUID            `json:"passenger_id"`
	DriverID        *uuid.UUID           `json:"driver_id,omitempty"`
	VehicleID       *uuid.UUID           `json:"vehicle_id,omitempty"`
	BookingID       *uuid.UUID           `json:"booking_id,omitempty"`
	Status          string               `json:"status"`
	Pickup          domain.Location      `json:"pickup"`
	Destination     domain.Location      `json:"destination"`
	DistanceKm      float64              `json:"distance_km"`
	DurationMinutes *int                 `json:"duration_minutes,omitempty"`
	EstimatedFare   int64                `json:"estimated_fare"`
	Fare            *int64               `json:"fare,omitempty"`
	Candidates      []matching.Candidate `json:"candidates,omitempty"`
	MatchedAt       *time.Time           `json:"matched_at,omitempty"`
	ArrivedAt       *time.Time           `json:"arrived_at,omitempty"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	EndedAt         *time.Time           `json:"ended_at,omitempty"`
	CancelledAt     *time.Time           `json:"cancelled_at,omitempty"`
	CancelReason    string               `json:"cancel_reason,omitempty"`
	Version         int64                `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// RouteDTO is the response representation of a fixed route.
type RouteDTO struct {
	ID             uuid.UUID       `json:"id"`
	DriverID       uuid.UUID       `json:"driver_id"`
	VehicleID      uuid.UUID       `json:"vehicle_id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Pickup         domain.Location `json:"pickup"`
	Dropoff        domain.Location `json:"dropoff"`
	PickupRadiusM  int             `json:"pickup_radius_m"`
	DropoffRadiusM int             `json:"dropoff_radius_m"`
	DistanceM      float64         `json:"distance_m"`
	DepartureTime  string          `json:"departure_time"`
	Dates          []string        `json:"dates"`
	PricePerSeat   int64           `json:"price_per_seat"`
	TotalSeats     int             `json:"total_seats"`
	AvailableSeats int             `json:"available_seats"`
	Status         string          `json:"status"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RouteMatchDTO is a search hit with the caller's distance to both endpoints.
type RouteMatchDTO struct {
	Route            RouteDTO `json:"route"`
	PickupDistanceM  float64  `json:"pickup_distance_m"`
	DropoffDistanceM float64  `json:"dropoff_distance_m"`
}

// BookingDTO is the response representation of a route booking.
type BookingDTO struct {
	ID               uuid.UUID       `json:"id"`
	RouteID          uuid.UUID       `json:"route_id"`
	DriverID         uuid.UUID       `json:"driver_id"`
	PassengerID      uuid.UUID       `json:"passenger_id"`
	RideID           *uuid.UUID      `json:"ride_id,omitempty"`
	Status           string          `json:"status"`
	Pickup           domain.Location `json:"pickup"`
	Dropoff          domain.Location `json:"dropoff"`
	PickupDistanceM  float64         `json:"pickup_distance_m"`
	DropoffDistanceM float64         `json:"dropoff_distance_m"`
	Date             string          `json:"date"`
	Seats            int             `json:"seats"`
	TotalPrice       int64           `json:"total_price"`
	Notes            string          `json:"notes,omitempty"`
	AcceptedAt       *time.Time      `json:"accepted_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason     string          `json:"cancel_reason,omitempty"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DriverDTO is a driver's live state with derived rates.
type DriverDTO struct {
	DriverID       uuid.UUID        `json:"driver_id"`
	Status         string           `json:"status"`
	Position       *domain.GeoPoint `json:"position,omitempty"`
	LastLocationAt *time.Time       `json:"last_location_at,omitempty"`
	Rating         float64          `json:"rating"`
	RidesOffered   int64            `json:"rides_offered"`
	RidesAccepted  int64            `json:"rides_accepted"`
	RidesCompleted int64            `json:"rides_completed"`
	AcceptanceRate float64          `json:"acceptance_rate"`
	CompletionRate float64          `json:"completion_rate"`
}

// --- Converters ---

func toRideDTO(r *rideDomain.Ride) *RideDTO {
	return &RideDTO{
		ID:              r.ID(),
		Kind:            string(r.Kind()),
		PassengerID:     r.PassengerID(),
		DriverID:        r.DriverID(),
		VehicleID:       r.VehicleID(),
		BookingID:       r.BookingID(),
		Status:          r.Status().String(),
		Pickup:          r.Pickup(),
		Destination:     r.Destination(),
		DistanceKm:      r.DistanceKm(),
		DurationMinutes: r.DurationMinutes(),
		EstimatedFare:   r.EstimatedFare(),
		Fare:            r.Fare(),
		Candidates:      r.Offered(),
		MatchedAt:       r.MatchedAt(),
		ArrivedAt:       r.ArrivedAt(),
		StartedAt:       r.StartedAt(),
		EndedAt:         r.EndedAt(),
		CancelledAt:     r.CancelledAt(),
		CancelReason:    r.CancelReason(),
		Version:         r.Version(),
		CreatedAt:       r.CreatedAt(),
		UpdatedAt:       r.UpdatedAt(),
	}
}

func toRideDTOs(rides []*rideDomain.Ride) []RideDTO {
	out := make([]RideDTO, len(rides))
	for i, r := range rides {
		out[i] = *toRideDTO(r)
	}
	return out
}

func toRouteDTO(r *routeDomain.FixedRoute) *RouteDTO {
	return &RouteDTO{
		ID:             r.ID(),
		DriverID:       r.DriverID(),
		VehicleID:      r.VehicleID(),
		Name:           r.Name(),
		Description:    r.Description(),
		Pickup:         r.Pickup(),
		Dropoff:        r.Dropoff(),
		PickupRadiusM:  r.PickupRadiusM(),
		DropoffRadiusM: r.DropoffRadiusM(),
		DistanceM:      r.DistanceM(),
		DepartureTime:  r.DepartureTime(),
		Dates:          r.Dates(),
		PricePerSeat:   r.PricePerSeat(),
		TotalSeats:     r.TotalSeats(),
		AvailableSeats: r.AvailableSeats(),
		Status:         r.Status().String(),
		Version:        r.Version(),
		CreatedAt:      r.CreatedAt(),
		UpdatedAt:      r.UpdatedAt(),
	}
}

func toRouteDTOs(routes []*routeDomain.FixedRoute) []RouteDTO {
	out := make([]RouteDTO, len(routes))
	for i, r := range routes {
		out[i] = *toRouteDTO(r)
	}
	return out
}

func toBookingDTO(b *bookingDomain.Booking) *BookingDTO {
	return &BookingDTO{
		ID:               b.ID(),
		RouteID:          b.RouteID(),
		DriverID:         b.DriverID(),
		PassengerID:      b.PassengerID(),
		RideID:           b.RideID(),
		Status:           b.Status().String(),
		Pickup:           b.Pickup(),
		Dropoff:          b.Dropoff(),
		PickupDistanceM:  b.PickupDistanceM(),
		DropoffDistanceM: b.DropoffDistanceM(),
		Date:             b.Date(),
		Seats:            b.Seats(),
		TotalPrice:       b.TotalPrice(),
		Notes:            b.Notes(),
		AcceptedAt:       b.AcceptedAt(),
		StartedAt:        b.StartedAt(),
		CompletedAt:      b.CompletedAt(),
		CancelledAt:      b.CancelledAt(),
		CancelReason:     b.CancelReason(),
		Version:          b.Version(),
		CreatedAt:        b.CreatedAt(),
		UpdatedAt:        b.UpdatedAt(),
	}
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	out := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		out[i] = *toBookingDTO(b)
	}
	return out
}

func toDriverDTO(s *driverDomain.Snapshot) *DriverDTO {
	return &DriverDTO{
		DriverID:       s.DriverID,
		Status:         s.Status.String(),
		Position:       s.Position,
		LastLocationAt: s.LastLocationAt,
		Rating:         s.Rating,
		RidesOffered:   s.Stats.RidesOffered,
		RidesAccepted:  s.Stats.RidesAccepted,
		RidesCompleted: s.Stats.RidesCompleted,
		AcceptanceRate: s.Stats.AcceptanceRate(),
		CompletionRate: s.Stats.CompletionRate(),
	}
}
