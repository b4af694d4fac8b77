package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/domain"
	bookingDomain "github.com/ridemate/service-dispatch/internal/domain/booking"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	routeDomain "github.com/ridemate/service-dispatch/internal/domain/route"
	"github.com/ridemate/service-dispatch/internal/observability"
	"github.com/ridemate/service-dispatch/internal/repository"
	"go.uber.org/zap"
)

// BookingService is the application service orchestrating route booking use cases.
// Every operation runs under the route lock so seat counts move one booking at a time.
type BookingService struct {
	uow        repository.UnitOfWork
	routes     *RouteService
	fare       rideDomain.FarePolicy
	dispatcher *Dispatcher
	clock      clock.Clock
	zone       *time.Location
	logger     *zap.Logger
}

// BookingOption customises a BookingService.
type BookingOption func(*BookingService)

// WithLocalZone sets the time zone whose calendar decides when a travel date
// is in the past. The default is UTC.
func WithLocalZone(loc *time.Location) BookingOption {
	return func(s *BookingService) {
		if loc != nil {
			s.zone = loc
		}
	}
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	uow repository.UnitOfWork,
	routes *RouteService,
	fare rideDomain.FarePolicy,
	dispatcher *Dispatcher,
	clk clock.Clock,
	logger *zap.Logger,
	opts ...BookingOption,
) *BookingService {
	s := &BookingService{
		uow:        uow,
		routes:     routes,
		fare:       fare,
		dispatcher: dispatcher,
		clock:      clk,
		zone:       time.UTC,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBooking requests seats on a route for one date. Seats are not held until
// the driver accepts.
func (s *BookingService) CreateBooking(ctx context.Context, passengerID uuid.UUID, req CreateBookingRequest) (*BookingDTO, error) {
	unlock := s.routes.lock(req.RouteID)
	defer unlock()

	var bk *bookingDomain.Booking
	var rt *routeDomain.FixedRoute
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		rt, err = repos.Routes.FindByID(ctx, req.RouteID)
		if err != nil {
			return err
		}
		exists, err := repos.Bookings.ExistsActive(ctx, req.RouteID, passengerID, req.Date)
		if err != nil {
			return err
		}
		if exists {
			return domain.NewPreconditionError("you already have a booking for this route on this date")
		}
		bk, err = bookingDomain.NewBooking(rt, bookingDomain.CreateParams{
			PassengerID: passengerID,
			Pickup:      req.Pickup,
			Dropoff:     req.Dropoff,
			Date:        req.Date,
			Seats:       req.Seats,
			Notes:       req.Notes,
		}, s.clock.Now().In(s.zone))
		if err != nil {
			return err
		}
		return repos.Bookings.Save(ctx, bk)
	})
	if err != nil {
		return nil, err
	}
	observability.BookingTransitions.WithLabelValues(bk.Status().String()).Inc()

	s.logger.Info("booking created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("route_id", rt.ID().String()),
		zap.String("passenger_id", passengerID.String()),
		zap.Int("seats", bk.Seats()),
	)

	var out domain.Outbox
	out.Notify(domain.Notification{
		UserID: bk.DriverID(),
		Title:  "New Booking Request",
		Body: fmt.Sprintf("A passenger requested %d seat(s) on %s for %s. Total: %d coins.",
			bk.Seats(), rt.Name(), bk.Date(), bk.TotalPrice()),
		Type:        domain.NotificationNewRideRequest,
		ReferenceID: bk.ID(),
	})
	s.dispatcher.Flush(ctx, &out)

	return toBookingDTO(bk), nil
}

// AcceptBooking confirms a pending booking and reserves its seats in the same transaction.
func (s *BookingService) AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*BookingDTO, error) {
	var reserved int
	bk, err := s.withRoute(ctx, bookingID, func(ctx context.Context, repos repository.Repositories, bk *bookingDomain.Booking, now time.Time) error {
		if err := bk.Accept(driverID, now); err != nil {
			return err
		}
		rt, err := repos.Routes.FindByID(ctx, bk.RouteID())
		if err != nil {
			return err
		}
		if !rt.HasSeats(bk.Seats()) {
			return domain.NewPreconditionError("not enough available seats")
		}
		rt.ReserveSeats(bk.Seats(), now)
		rt.IncrementVersion()
		if err := repos.Routes.Update(ctx, rt); err != nil {
			return err
		}
		reserved = bk.Seats()
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.SeatsReserved.Add(float64(reserved))

	s.notify(ctx, bk, "Booking Accepted!",
		fmt.Sprintf("Your booking for %s has been accepted by the driver.", bk.Date()),
		domain.NotificationMatchAccepted, bk.PassengerID())
	return toBookingDTO(bk), nil
}

// RejectBooking declines a pending booking. No seats were held.
func (s *BookingService) RejectBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.withRoute(ctx, bookingID, func(_ context.Context, _ repository.Repositories, bk *bookingDomain.Booking, now time.Time) error {
		return bk.Reject(driverID, now)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, bk, "Booking Rejected",
		fmt.Sprintf("Your booking for %s was rejected by the driver.", bk.Date()),
		domain.NotificationMatchCancelled, bk.PassengerID())
	return toBookingDTO(bk), nil
}

// CancelBooking withdraws the passenger's booking. Accepted bookings give their
// seats back; pending ones never held any. Cancelling twice is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, passengerID uuid.UUID, reason string) (*BookingDTO, error) {
	var released int
	var unchanged bool
	bk, err := s.withRoute(ctx, bookingID, func(ctx context.Context, repos repository.Repositories, bk *bookingDomain.Booking, now time.Time) error {
		if bk.PassengerID() != passengerID {
			return domain.NewOwnershipError("you don't have permission to cancel this booking")
		}
		if bk.Status() == bookingDomain.StatusCancelled {
			unchanged = true
			return nil
		}
		n, err := bk.Cancel(passengerID, reason, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		rt, err := repos.Routes.FindByID(ctx, bk.RouteID())
		if err != nil {
			return err
		}
		rt.ReleaseSeats(n, now)
		rt.IncrementVersion()
		if err := repos.Routes.Update(ctx, rt); err != nil {
			return err
		}
		released = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		return toBookingDTO(bk), nil
	}
	observability.SeatsReleased.Add(float64(released))

	s.notify(ctx, bk, "Booking Cancelled",
		fmt.Sprintf("A passenger cancelled their booking for %s.", bk.Date()),
		domain.NotificationMatchCancelled, bk.DriverID())
	return toBookingDTO(bk), nil
}

// StartTrip opens the ride for an accepted booking. The ride is created in
// progress with the booking total as its fare; seats stay reserved.
func (s *BookingService) StartTrip(ctx context.Context, bookingID, driverID uuid.UUID) (*BookingDTO, error) {
	var r *rideDomain.Ride
	bk, err := s.withRoute(ctx, bookingID, func(ctx context.Context, repos repository.Repositories, bk *bookingDomain.Booking, now time.Time) error {
		if bk.DriverID() != driverID {
			return domain.NewOwnershipError("you don't have permission to start this booking")
		}
		if bk.Status() != bookingDomain.StatusAccepted {
			return domain.NewInvalidStateError(bk.Status().String(), string(bookingDomain.EventStart)+" booking")
		}
		rt, err := repos.Routes.FindByID(ctx, bk.RouteID())
		if err != nil {
			return err
		}

		id := bk.ID()
		fare := bk.TotalPrice()
		r, err = rideDomain.NewDirectRide(rideDomain.DirectRideParams{
			Kind:        rideDomain.KindRoute,
			DriverID:    driverID,
			VehicleID:   rt.VehicleID(),
			PassengerID: bk.PassengerID(),
			BookingID:   &id,
			Pickup:      bk.Pickup(),
			Destination: bk.Dropoff(),
			Fare:        &fare,
		}, fare, now)
		if err != nil {
			return err
		}
		if err := bk.Start(driverID, r.ID(), now); err != nil {
			return err
		}
		return repos.Rides.Save(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	var out domain.Outbox
	out.Notify(tripStarted(r))
	out.PublishMatch(rideEvent(domain.MatchEventStarted, r, s.clock.Now(), r.PassengerID(), driverID))
	s.dispatcher.Flush(ctx, &out)
	return toBookingDTO(bk), nil
}

// CompleteTrip finishes the booking and its ride together.
func (s *BookingService) CompleteTrip(ctx context.Context, bookingID, driverID uuid.UUID) (*BookingDTO, error) {
	var r *rideDomain.Ride
	var completedAt time.Time
	bk, err := s.withRoute(ctx, bookingID, func(ctx context.Context, repos repository.Repositories, bk *bookingDomain.Booking, now time.Time) error {
		if bk.RideID() == nil {
			return domain.NewInvalidStateError(bk.Status().String(), string(bookingDomain.EventComplete)+" booking")
		}
		var err error
		r, err = repos.Rides.FindByID(ctx, *bk.RideID())
		if err != nil {
			return err
		}
		completedAt = now
		return completeRouteTrip(ctx, repos, r, bk, driverID, s.fare, now)
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	var out domain.Outbox
	queueCompleted(&out, r, completedAt)
	s.dispatcher.Flush(ctx, &out)
	return toBookingDTO(bk), nil
}

// ExpireBooking closes a pending booking the driver never answered. Bookings
// already expired are returned unchanged.
func (s *BookingService) ExpireBooking(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error) {
	var unchanged bool
	bk, err := s.withRoute(ctx, bookingID, func(_ context.Context, _ repository.Repositories, bk *bookingDomain.Booking, now time.Time) error {
		if bk.Status() == bookingDomain.StatusExpired {
			unchanged = true
			return nil
		}
		return bk.Expire(now)
	})
	if err != nil {
		return nil, err
	}
	if unchanged {
		return toBookingDTO(bk), nil
	}
	observability.Expired.WithLabelValues("booking").Inc()

	s.notify(ctx, bk, "Booking Expired",
		fmt.Sprintf("Your booking for %s expired before the driver responded.", bk.Date()),
		domain.NotificationMatchCancelled, bk.PassengerID())
	return toBookingDTO(bk), nil
}

// GetBooking retrieves a booking by ID.
func (s *BookingService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.uow.Repositories().Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return toBookingDTO(bk), nil
}

// GetPassengerBookings retrieves paginated bookings for a passenger.
func (s *BookingService) GetPassengerBookings(ctx context.Context, passengerID uuid.UUID, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.uow.Repositories().Bookings.FindByPassengerID(ctx, passengerID, page, limit)
	if err != nil {
		return nil, err
	}
	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// GetDriverBookings retrieves paginated bookings across the driver's routes,
// optionally narrowed to one status.
func (s *BookingService) GetDriverBookings(
	ctx context.Context,
	driverID uuid.UUID,
	status *bookingDomain.BookingStatus,
	page, limit int,
) (*domain.PaginatedResult[BookingDTO], error) {
	if status != nil && !status.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid booking status: %s", *status))
	}
	bookings, total, err := s.uow.Repositories().Bookings.FindByDriverID(ctx, driverID, status, page, limit)
	if err != nil {
		return nil, err
	}
	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// GetRouteBookings lists every booking on the driver's route.
func (s *BookingService) GetRouteBookings(ctx context.Context, routeID, driverID uuid.UUID) ([]BookingDTO, error) {
	rt, err := s.uow.Repositories().Routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if !rt.IsOwnedBy(driverID) {
		return nil, domain.NewOwnershipError("you don't have permission to view bookings for this route")
	}
	bookings, err := s.uow.Repositories().Bookings.FindByRouteID(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return toBookingDTOs(bookings), nil
}

// --- Helpers ---

// withRoute loads the booking, takes its route lock and runs fn inside one
// transaction with a fresh copy. The booking is saved when fn succeeds.
func (s *BookingService) withRoute(
	ctx context.Context,
	bookingID uuid.UUID,
	fn func(ctx context.Context, repos repository.Repositories, bk *bookingDomain.Booking, now time.Time) error,
) (*bookingDomain.Booking, error) {
	peek, err := s.uow.Repositories().Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	unlock := s.routes.lock(peek.RouteID())
	defer unlock()

	var bk *bookingDomain.Booking
	var changed bool
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		bk, err = repos.Bookings.FindByID(ctx, bookingID)
		if err != nil {
			return err
		}
		before := bk.Status()
		if err := fn(ctx, repos, bk, s.clock.Now()); err != nil {
			return err
		}
		if bk.Status() == before {
			return nil
		}
		changed = true
		bk.IncrementVersion()
		return repos.Bookings.Update(ctx, bk)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		observability.BookingTransitions.WithLabelValues(bk.Status().String()).Inc()
		s.logger.Info("booking status changed",
			zap.String("booking_id", bookingID.String()),
			zap.String("status", bk.Status().String()),
		)
	}
	return bk, nil
}

func (s *BookingService) notify(ctx context.Context, bk *bookingDomain.Booking, title, body string, typ domain.NotificationType, userID uuid.UUID) {
	var out domain.Outbox
	out.Notify(domain.Notification{
		UserID:      userID,
		Title:       title,
		Body:        body,
		Type:        typ,
		ReferenceID: bk.ID(),
	})
	s.dispatcher.Flush(ctx, &out)
}
