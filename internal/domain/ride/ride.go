package ride

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
)

// Kind tells how a ride was dispatched.
type Kind string

const (
	KindOnDemand Kind = "on_demand"
	KindPersonal Kind = "personal"
	KindRoute    Kind = "route"
)

// CancelReasonExpired marks rides cancelled by the expiry path.
const CancelReasonExpired = "expired"

// Ride is the aggregate root for a single trip.
type Ride struct {
	id          uuid.UUID
	kind        Kind
	passengerID uuid.UUID
	driverID    *uuid.UUID
	vehicleID   *uuid.UUID
	bookingID   *uuid.UUID
	pickup      domain.Location
	destination domain.Location
	status      RideStatus

	distanceKm      float64
	durationMinutes *int
	estimatedFare   int64
	fare            *int64
	offered         []matching.Candidate

	matchedAt    *time.Time
	arrivedAt    *time.Time
	startedAt    *time.Time
	endedAt      *time.Time
	cancelledAt  *time.Time
	cancelledBy  *uuid.UUID
	cancelReason string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// Snapshot is the flat persistence form of a Ride.
type Snapshot struct {
	ID              uuid.UUID
	Kind            Kind
	PassengerID     uuid.UUID
	DriverID        *uuid.UUID
	VehicleID       *uuid.UUID
	BookingID       *uuid.UUID
	Pickup          domain.Location
	Destination     domain.Location
	Status          RideStatus
	DistanceKm      float64
	DurationMinutes *int
	EstimatedFare   int64
	Fare            *int64
	Offered         []matching.Candidate
	MatchedAt       *time.Time
	ArrivedAt       *time.Time
	StartedAt       *time.Time
	EndedAt         *time.Time
	CancelledAt     *time.Time
	CancelledBy     *uuid.UUID
	CancelReason    string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRide creates an on-demand ride in status=pending.
func NewRide(passengerID uuid.UUID, pickup, destination domain.Location, estimatedFare int64, now time.Time) (*Ride, error) {
	if passengerID == uuid.Nil {
		return nil, domain.NewValidationError("passenger ID is required")
	}
	if err := pickup.Validate("pickup"); err != nil {
		return nil, err
	}
	if err := destination.Validate("destination"); err != nil {
		return nil, err
	}

	return &Ride{
		id:            uuid.New(),
		kind:          KindOnDemand,
		passengerID:   passengerID,
		pickup:        pickup,
		destination:   destination,
		status:        StatusPending,
		distanceKm:    domain.HaversineKm(pickup.Point, destination.Point),
		estimatedFare: estimatedFare,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// DirectRideParams describes a ride that skips dispatch and starts immediately.
type DirectRideParams struct {
	Kind        Kind
	DriverID    uuid.UUID
	VehicleID   uuid.UUID
	PassengerID uuid.UUID
	BookingID   *uuid.UUID
	Pickup      domain.Location
	Destination domain.Location
	Fare        *int64
}

// NewDirectRide creates a ride already in status=in_progress. It is used for
// driver-initiated personal trips and for fixed-route bookings whose trip has started.
func NewDirectRide(p DirectRideParams, estimatedFare int64, now time.Time) (*Ride, error) {
	if p.Kind != KindPersonal && p.Kind != KindRoute {
		return nil, domain.NewValidationError("direct rides must be personal or route rides")
	}
	if p.DriverID == uuid.Nil {
		return nil, domain.NewValidationError("driver ID is required")
	}
	if p.VehicleID == uuid.Nil {
		return nil, domain.NewValidationError("vehicle ID is required")
	}
	if p.Kind == KindRoute && (p.BookingID == nil || p.Fare == nil) {
		return nil, domain.NewValidationError("route rides need a booking and a fare")
	}
	passengerID := p.PassengerID
	if passengerID == uuid.Nil {
		passengerID = p.DriverID
	}
	if err := p.Pickup.Validate("pickup"); err != nil {
		return nil, err
	}
	if err := p.Destination.Validate("destination"); err != nil {
		return nil, err
	}

	driverID := p.DriverID
	vehicleID := p.VehicleID
	return &Ride{
		id:            uuid.New(),
		kind:          p.Kind,
		passengerID:   passengerID,
		driverID:      &driverID,
		vehicleID:     &vehicleID,
		bookingID:     p.BookingID,
		pickup:        p.Pickup,
		destination:   p.Destination,
		status:        StatusInProgress,
		distanceKm:    domain.HaversineKm(p.Pickup.Point, p.Destination.Point),
		estimatedFare: estimatedFare,
		fare:          p.Fare,
		matchedAt:     &now,
		startedAt:     &now,
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// Reconstruct rebuilds a Ride from persistence data (no validation).
func Reconstruct(s Snapshot) *Ride {
	return &Ride{
		id:              s.ID,
		kind:            s.Kind,
		passengerID:     s.PassengerID,
		driverID:        s.DriverID,
		vehicleID:       s.VehicleID,
		bookingID:       s.BookingID,
		pickup:          s.Pickup,
		destination:     s.Destination,
		status:          s.Status,
		distanceKm:      s.DistanceKm,
		durationMinutes: s.DurationMinutes,
		estimatedFare:   s.EstimatedFare,
		fare:            s.Fare,
		offered:         append([]matching.Candidate(nil), s.Offered...),
		matchedAt:       s.MatchedAt,
		arrivedAt:       s.ArrivedAt,
		startedAt:       s.StartedAt,
		endedAt:         s.EndedAt,
		cancelledAt:     s.CancelledAt,
		cancelledBy:     s.CancelledBy,
		cancelReason:    s.CancelReason,
		version:         s.Version,
		createdAt:       s.CreatedAt,
		updatedAt:       s.UpdatedAt,
	}
}

// Snapshot returns a copy of the ride's state.
func (r *Ride) Snapshot() Snapshot {
	return Snapshot{
		ID:              r.id,
		Kind:            r.kind,
		PassengerID:     r.passengerID,
		DriverID:        r.driverID,
		VehicleID:       r.vehicleID,
		BookingID:       r.bookingID,
		Pickup:          r.pickup,
		Destination:     r.destination,
		Status:          r.status,
		DistanceKm:      r.distanceKm,
		DurationMinutes: r.durationMinutes,
		EstimatedFare:   r.estimatedFare,
		Fare:            r.fare,
		Offered:         append([]matching.Candidate(nil), r.offered...),
		MatchedAt:       r.matchedAt,
		ArrivedAt:       r.arrivedAt,
		StartedAt:       r.startedAt,
		EndedAt:         r.endedAt,
		CancelledAt:     r.cancelledAt,
		CancelledBy:     r.cancelledBy,
		CancelReason:    r.cancelReason,
		Version:         r.version,
		CreatedAt:       r.createdAt,
		UpdatedAt:       r.updatedAt,
	}
}

// --- Getters ---

func (r *Ride) ID() uuid.UUID { return r.id }
func (r *Ride) Kind() Kind { return r.kind }
func (r *Ride) PassengerID() uuid.UUID { return r.passengerID }
func (r *Ride) DriverID() *uuid.UUID { return r.driverID }
func (r *Ride) VehicleID() *uuid.UUID { return r.vehicleID }
func (r *Ride) BookingID() *uuid.UUID { return r.bookingID }
func (r *Ride) Pickup() domain.Location { return r.pickup }
func (r *Ride) Destination() domain.Location { return r.destination }
func (r *Ride) Status() RideStatus { return r.status }
func (r *Ride) DistanceKm() float64 { return r.distanceKm }
func (r *Ride) DurationMinutes() *int { return r.durationMinutes }
func (r *Ride) EstimatedFare() int64 { return r.estimatedFare }
func (r *Ride) Fare() *int64 { return r.fare }
func (r *Ride) Offered() []matching.Candidate { return r.offered }
func (r *Ride) MatchedAt() *time.Time { return r.matchedAt }
func (r *Ride) ArrivedAt() *time.Time { return r.arrivedAt }
func (r *Ride) StartedAt() *time.Time { return r.startedAt }
func (r *Ride) EndedAt() *time.Time { return r.endedAt }
func (r *Ride) CancelledAt() *time.Time { return r.cancelledAt }
func (r *Ride) CancelReason() string { return r.cancelReason }
func (r *Ride) Version() int64 { return r.version }
func (r *Ride) CreatedAt() time.Time { return r.createdAt }
func (r *Ride) UpdatedAt() time.Time { return r.updatedAt }

// OfferedDriverIDs lists the drivers the ride was last offered to.
func (r *Ride) OfferedDriverIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(r.offered))
	for i, c := range r.offered {
		ids[i] = c.DriverID
	}
	return ids
}

// OfferedVehicle returns the vehicle a candidate driver was offered with.
func (r *Ride) OfferedVehicle(driverID uuid.UUID) (uuid.UUID, bool) {
	for _, c := range r.offered {
		if c.DriverID == driverID {
			return c.VehicleID, true
		}
	}
	return uuid.Nil, false
}

// IsDriver reports whether userID is the bound driver.
func (r *Ride) IsDriver(userID uuid.UUID) bool {
	return r.driverID != nil && *r.driverID == userID
}

// --- State Transitions ---

// Offer records the candidates the ride was fanned out to. pending -> waiting.
func (r *Ride) Offer(candidates []matching.Candidate, now time.Time) error {
	if len(candidates) == 0 {
		return domain.NewPreconditionError("cannot offer a ride without candidates")
	}
	next, err := Transition(r.status, EventCandidatesFound)
	if err != nil {
		return err
	}
	r.offered = append([]matching.Candidate(nil), candidates...)
	r.status = next
	r.updatedAt = now
	return nil
}

// Accept binds the driver and vehicle and fixes the fare. waiting -> accepted.
func (r *Ride) Accept(driverID, vehicleID uuid.UUID, fare int64, now time.Time) error {
	if driverID == uuid.Nil || vehicleID == uuid.Nil {
		return domain.NewValidationError("driver and vehicle are required")
	}
	next, err := Transition(r.status, EventAccept)
	if err != nil {
		return err
	}
	r.driverID = &driverID
	r.vehicleID = &vehicleID
	r.fare = &fare
	r.matchedAt = &now
	r.status = next
	r.updatedAt = now
	return nil
}

// Arrive marks the driver at the pickup point. accepted -> driver_arrived.
func (r *Ride) Arrive(driverID uuid.UUID, now time.Time) error {
	if !r.IsDriver(driverID) {
		return domain.NewOwnershipError("only the assigned driver can update this ride")
	}
	next, err := Transition(r.status, EventArrive)
	if err != nil {
		return err
	}
	r.arrivedAt = &now
	r.status = next
	r.updatedAt = now
	return nil
}

// Start begins the trip. driver_arrived -> in_progress.
func (r *Ride) Start(driverID uuid.UUID, now time.Time) error {
	if !r.IsDriver(driverID) {
		return domain.NewOwnershipError("only the assigned driver can update this ride")
	}
	next, err := Transition(r.status, EventStart)
	if err != nil {
		return err
	}
	r.startedAt = &now
	r.status = next
	r.updatedAt = now
	return nil
}

// Complete ends the trip. in_progress -> completed. A fare fixed earlier is kept;
// otherwise the policy prices the ride now.
func (r *Ride) Complete(driverID uuid.UUID, policy FarePolicy, now time.Time) error {
	if !r.IsDriver(driverID) {
		return domain.NewOwnershipError("only the assigned driver can complete this ride")
	}
	next, err := Transition(r.status, EventComplete)
	if err != nil {
		return err
	}
	if r.startedAt == nil {
		r.startedAt = &now
	}
	minutes := int(math.Ceil(now.Sub(*r.startedAt).Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	if r.fare == nil {
		fare := policy.Fare(r.distanceKm)
		r.fare = &fare
	}
	r.durationMinutes = &minutes
	r.endedAt = &now
	r.status = next
	r.updatedAt = now
	return nil
}

// Cancel terminates a non-terminal ride on behalf of its passenger or driver.
func (r *Ride) Cancel(actorID uuid.UUID, reason string, now time.Time) error {
	if actorID != r.passengerID && !r.IsDriver(actorID) {
		return domain.NewOwnershipError("only the passenger or the assigned driver can cancel this ride")
	}
	next, err := Transition(r.status, EventCancel)
	if err != nil {
		return err
	}
	r.cancel(next, &actorID, reason, now)
	return nil
}

// Expire cancels a ride that never got a driver. pending|waiting -> cancelled.
func (r *Ride) Expire(now time.Time) error {
	next, err := Transition(r.status, EventExpire)
	if err != nil {
		return err
	}
	r.cancel(next, nil, CancelReasonExpired, now)
	return nil
}

func (r *Ride) cancel(next RideStatus, by *uuid.UUID, reason string, now time.Time) {
	r.cancelledAt = &now
	r.cancelledBy = by
	r.cancelReason = reason
	r.status = next
	r.updatedAt = now
}

// IncrementVersion bumps the optimistic locking version.
func (r *Ride) IncrementVersion() {
	r.version++
}

func newInvalidTransition(from RideStatus, ev Event) error {
	return domain.NewInvalidStateError(string(from), string(ev)+" ride")
}
