package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/route"
)

// Booking is the aggregate root for a passenger's seats on a fixed route.
type Booking struct {
	id          uuid.UUID
	routeID     uuid.UUID
	driverID    uuid.UUID
	passengerID uuid.UUID
	rideID      *uuid.UUID
	status      BookingStatus

	pickup           domain.Location
	dropoff          domain.Location
	pickupDistanceM  float64
	dropoffDistanceM float64
	date             string
	seats            int
	totalPrice       int64
	notes            string

	acceptedAt   *time.Time
	rejectedAt   *time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	cancelledAt  *time.Time
	expiredAt    *time.Time
	cancelReason string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// Snapshot is the flat persistence form of a Booking.
type Snapshot struct {
	ID               uuid.UUID
	RouteID          uuid.UUID
	DriverID         uuid.UUID
	PassengerID      uuid.UUID
	RideID           *uuid.UUID
	Status           BookingStatus
	Pickup           domain.Location
	Dropoff          domain.Location
	PickupDistanceM  float64
	DropoffDistanceM float64
	Date             string
	Seats            int
	TotalPrice       int64
	Notes            string
	AcceptedAt       *time.Time
	RejectedAt       *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
	ExpiredAt        *time.Time
	CancelReason     string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateParams carries the passenger's request.
type CreateParams struct {
	PassengerID uuid.UUID
	Pickup      domain.Location
	Dropoff     domain.Location
	Date        string
	Seats       int
	Notes       string
}

// NewBooking creates a pending booking against rt after checking every creation
// precondition that can be decided from the route alone. The duplicate-booking
// check needs the repository and is left to the caller. The location of now
// decides which calendar day counts as today.
func NewBooking(rt *route.FixedRoute, p CreateParams, now time.Time) (*Booking, error) {
	if p.PassengerID == uuid.Nil {
		return nil, domain.NewValidationError("passenger ID is required")
	}
	if p.Seats <= 0 {
		return nil, domain.NewValidationError("seat count must be positive")
	}
	if err := p.Pickup.Validate("pickup"); err != nil {
		return nil, err
	}
	if err := p.Dropoff.Validate("dropoff"); err != nil {
		return nil, err
	}
	day, err := time.Parse(route.DateLayout, p.Date)
	if err != nil {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", p.Date))
	}
	if rt.IsOwnedBy(p.PassengerID) {
		return nil, domain.NewPreconditionError("drivers cannot book their own route")
	}
	if rt.Status() != route.StatusActive {
		return nil, domain.NewPreconditionError("route is not active")
	}
	today := now.Format(route.DateLayout)
	if day.Format(route.DateLayout) < today {
		return nil, domain.NewPreconditionError("cannot book for past dates")
	}
	if !rt.IsAvailableOn(p.Date) {
		return nil, domain.NewPreconditionError(fmt.Sprintf("route is not available on date: %s", p.Date))
	}
	if !rt.HasSeats(p.Seats) {
		return nil, domain.NewPreconditionError("not enough available seats")
	}
	pickupDistance := rt.PickupDistanceM(p.Pickup.Point)
	if pickupDistance > float64(rt.PickupRadiusM()) {
		return nil, domain.NewPreconditionError(fmt.Sprintf(
			"pickup location is %.0fm from the route's pickup point, limit is %dm", pickupDistance, rt.PickupRadiusM()))
	}
	dropoffDistance := rt.DropoffDistanceM(p.Dropoff.Point)
	if dropoffDistance > float64(rt.DropoffRadiusM()) {
		return nil, domain.NewPreconditionError(fmt.Sprintf(
			"dropoff location is %.0fm from the route's dropoff point, limit is %dm", dropoffDistance, rt.DropoffRadiusM()))
	}

	return &Booking{
		id:               uuid.New(),
		routeID:          rt.ID(),
		driverID:         rt.DriverID(),
		passengerID:      p.PassengerID,
		status:           StatusPending,
		pickup:           p.Pickup,
		dropoff:          p.Dropoff,
		pickupDistanceM:  pickupDistance,
		dropoffDistanceM: dropoffDistance,
		date:             p.Date,
		seats:            p.Seats,
		totalPrice:       rt.PricePerSeat() * int64(p.Seats),
		notes:            p.Notes,
		version:          1,
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

// Reconstruct rebuilds a Booking from persistence data (no validation).
func Reconstruct(s Snapshot) *Booking {
	return &Booking{
		id:               s.ID,
		routeID:          s.RouteID,
		driverID:         s.DriverID,
		passengerID:      s.PassengerID,
		rideID:           s.RideID,
		status:           s.Status,
		pickup:           s.Pickup,
		dropoff:          s.Dropoff,
		pickupDistanceM:  s.PickupDistanceM,
		dropoffDistanceM: s.DropoffDistanceM,
		date:             s.Date,
		seats:            s.Seats,
		totalPrice:       s.TotalPrice,
		notes:            s.Notes,
		acceptedAt:       s.AcceptedAt,
		rejectedAt:       s.RejectedAt,
		startedAt:        s.StartedAt,
		completedAt:      s.CompletedAt,
		cancelledAt:      s.CancelledAt,
		expiredAt:        s.ExpiredAt,
		cancelReason:     s.CancelReason,
		version:          s.Version,
		createdAt:        s.CreatedAt,
		updatedAt:        s.UpdatedAt,
	}
}

// Snapshot returns a copy of the booking's state.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:               b.id,
		RouteID:          b.routeID,
		DriverID:         b.driverID,
		PassengerID:      b.passengerID,
		RideID:           b.rideID,
		Status:           b.status,
		Pickup:           b.pickup,
		Dropoff:          b.dropoff,
		PickupDistanceM:  b.pickupDistanceM,
		DropoffDistanceM: b.dropoffDistanceM,
		Date:             b.date,
		Seats:            b.seats,
		TotalPrice:       b.totalPrice,
		Notes:            b.notes,
		AcceptedAt:       b.acceptedAt,
		RejectedAt:       b.rejectedAt,
		StartedAt:        b.startedAt,
		CompletedAt:      b.completedAt,
		CancelledAt:      b.cancelledAt,
		ExpiredAt:        b.expiredAt,
		CancelReason:     b.cancelReason,
		Version:          b.version,
		CreatedAt:        b.createdAt,
		UpdatedAt:        b.updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// RouteID returns the booked route.
func (b *Booking) RouteID() uuid.UUID { return b.routeID }

// DriverID returns the route driver at booking time.
func (b *Booking) DriverID() uuid.UUID { return b.driverID }

// PassengerID returns the passenger's user ID.
func (b *Booking) PassengerID() uuid.UUID { return b.passengerID }

// RideID returns the ride created when the trip started, or nil.
func (b *Booking) RideID() *uuid.UUID { return b.rideID }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

func (b *Booking) Pickup() domain.Location { return b.pickup }
func (b *Booking) Dropoff() domain.Location { return b.dropoff }
func (b *Booking) PickupDistanceM() float64 { return b.pickupDistanceM }
func (b *Booking) DropoffDistanceM() float64 { return b.dropoffDistanceM }
func (b *Booking) Date() string { return b.date }
func (b *Booking) Seats() int { return b.seats }
func (b *Booking) TotalPrice() int64 { return b.totalPrice }
func (b *Booking) Notes() string { return b.notes }
func (b *Booking) AcceptedAt() *time.Time { return b.acceptedAt }
func (b *Booking) RejectedAt() *time.Time { return b.rejectedAt }
func (b *Booking) StartedAt() *time.Time { return b.startedAt }
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }
func (b *Booking) ExpiredAt() *time.Time { return b.expiredAt }
func (b *Booking) CancelReason() string { return b.cancelReason }

// Version returns the optimistic locking version.
func (b *Booking) Version() int64 { return b.version }

func (b *Booking) CreatedAt() time.Time { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- State Transitions ---

// Accept confirms the booking on behalf of the route driver. The caller reserves
// Seats() on the route in the same transaction.
func (b *Booking) Accept(actorID uuid.UUID, now time.Time) error {
	if err := b.requireDriver(actorID, "accept"); err != nil {
		return err
	}
	if err := b.apply(EventAccept, now); err != nil {
		return err
	}
	b.acceptedAt = &now
	return nil
}

// Reject declines a pending booking. No seats are involved.
func (b *Booking) Reject(actorID uuid.UUID, now time.Time) error {
	if err := b.requireDriver(actorID, "reject"); err != nil {
		return err
	}
	if err := b.apply(EventReject, now); err != nil {
		return err
	}
	b.rejectedAt = &now
	return nil
}

// Cancel withdraws the booking on behalf of its passenger and returns the number
// of seats the caller must release: Seats() if they had been reserved, else zero.
func (b *Booking) Cancel(actorID uuid.UUID, reason string, now time.Time) (int, error) {
	if actorID != b.passengerID {
		return 0, domain.NewOwnershipError("you don't have permission to cancel this booking")
	}
	held := b.status.HoldsSeats()
	if err := b.apply(EventCancel, now); err != nil {
		return 0, err
	}
	b.cancelledAt = &now
	b.cancelReason = reason
	if held {
		return b.seats, nil
	}
	return 0, nil
}

// Start links the ride created for the trip. accepted -> in_progress.
func (b *Booking) Start(actorID, rideID uuid.UUID, now time.Time) error {
	if err := b.requireDriver(actorID, "start"); err != nil {
		return err
	}
	if err := b.apply(EventStart, now); err != nil {
		return err
	}
	b.rideID = &rideID
	b.startedAt = &now
	return nil
}

// Complete finishes the trip. in_progress -> completed.
func (b *Booking) Complete(actorID uuid.UUID, now time.Time) error {
	if err := b.requireDriver(actorID, "complete"); err != nil {
		return err
	}
	if err := b.apply(EventComplete, now); err != nil {
		return err
	}
	b.completedAt = &now
	return nil
}

// Expire closes a pending booking nobody acted on.
func (b *Booking) Expire(now time.Time) error {
	if err := b.apply(EventExpire, now); err != nil {
		return err
	}
	b.expiredAt = &now
	return nil
}

// RideCancelled follows the linked ride into cancellation and returns the seats to release.
func (b *Booking) RideCancelled(reason string, now time.Time) (int, error) {
	if err := b.apply(EventRideCancelled, now); err != nil {
		return 0, err
	}
	b.cancelledAt = &now
	b.cancelReason = reason
	return b.seats, nil
}

// IncrementVersion bumps the optimistic locking version.
func (b *Booking) IncrementVersion() {
	b.version++
}

func (b *Booking) apply(ev Event, now time.Time) error {
	next, err := Transition(b.status, ev)
	if err != nil {
		return err
	}
	b.status = next
	b.updatedAt = now
	return nil
}

func (b *Booking) requireDriver(actorID uuid.UUID, action string) error {
	if actorID != b.driverID {
		return domain.NewOwnershipError(fmt.Sprintf("you don't have permission to %s this booking", action))
	}
	return nil
}

func newInvalidTransition(from BookingStatus, ev Event) error {
	return domain.NewInvalidStateError(string(from), string(ev)+" booking")
}
