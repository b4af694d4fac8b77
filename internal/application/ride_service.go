package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/domain"
	bookingDomain "github.com/ridemate/service-dispatch/internal/domain/booking"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/observability"
	"github.com/ridemate/service-dispatch/internal/repository"
	"go.uber.org/zap"
)

// RideService orchestrates on-demand, personal and route ride use cases.
type RideService struct {
	uow        repository.UnitOfWork
	matcher    *matching.Matcher
	drivers    *DriverService
	fare       rideDomain.FarePolicy
	dispatcher *Dispatcher
	clock      clock.Clock
	locks      keyedLock
	logger     *zap.Logger
}

// NewRideService creates a new RideService.
func NewRideService(
	uow repository.UnitOfWork,
	matcher *matching.Matcher,
	drivers *DriverService,
	fare rideDomain.FarePolicy,
	dispatcher *Dispatcher,
	clk clock.Clock,
	logger *zap.Logger,
) *RideService {
	return &RideService{
		uow:        uow,
		matcher:    matcher,
		drivers:    drivers,
		fare:       fare,
		dispatcher: dispatcher,
		clock:      clk,
		locks:      newKeyedLock(),
		logger:     logger,
	}
}

// RequestRide creates a ride and offers it to the best nearby drivers. When no
// driver is found the ride stays pending and can be redispatched.
func (s *RideService) RequestRide(ctx context.Context, passengerID uuid.UUID, req RequestRideRequest) (*RideDTO, error) {
	now := s.clock.Now()
	estimate := s.fare.Fare(domain.HaversineKm(req.Pickup.Point, req.Destination.Point))
	r, err := rideDomain.NewRide(passengerID, req.Pickup, req.Destination, estimate, now)
	if err != nil {
		return nil, err
	}

	result := s.match(ctx, r)
	if !result.NoSupply() {
		if err := r.Offer(result.Candidates, now); err != nil {
			return nil, err
		}
	}

	if err := s.uow.Repositories().Rides.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save ride: %w", err)
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	s.logger.Info("ride requested",
		zap.String("ride_id", r.ID().String()),
		zap.String("passenger_id", passengerID.String()),
		zap.Int("candidates", len(result.Candidates)),
	)

	s.afterOffer(ctx, r, now)
	return toRideDTO(r), nil
}

// Redispatch re-runs matching for a pending ride, typically after no driver was found.
func (s *RideService) Redispatch(ctx context.Context, rideID, passengerID uuid.UUID) (*RideDTO, error) {
	unlock := s.locks.lock(rideID)
	defer unlock()

	r, err := s.uow.Repositories().Rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.PassengerID() != passengerID {
		return nil, domain.NewOwnershipError("you don't have permission to redispatch this ride")
	}
	if r.Status() != rideDomain.StatusPending {
		return nil, domain.NewInvalidStateError(r.Status().String(), string(rideDomain.EventCandidatesFound)+" ride")
	}

	result := s.match(ctx, r)
	if result.NoSupply() {
		return toRideDTO(r), nil
	}

	now := s.clock.Now()
	if err := r.Offer(result.Candidates, now); err != nil {
		return nil, err
	}
	r.IncrementVersion()
	if err := s.uow.Repositories().Rides.Update(ctx, r); err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	s.afterOffer(ctx, r, now)
	return toRideDTO(r), nil
}

// AcceptRide binds the driver to a waiting ride. Exactly one acceptance wins;
// later ones see the ride already accepted.
func (s *RideService) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID, req AcceptRideRequest) (*RideDTO, error) {
	unlock := s.locks.lock(rideID)
	defer unlock()
	unlockDriver := s.drivers.locks.lock(driverID)
	defer unlockDriver()

	snap, err := s.drivers.states.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if snap.Status != driverDomain.StatusOnline {
		return nil, domain.NewPreconditionError("driver must be online to accept a ride")
	}

	r, err := s.uow.Repositories().Rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	var preferred []uuid.UUID
	if req.VehicleID != nil {
		preferred = append(preferred, *req.VehicleID)
	}
	if offered, ok := r.OfferedVehicle(driverID); ok {
		preferred = append(preferred, offered)
	}
	vehicle, err := s.drivers.approvedVehicle(ctx, driverID, preferred)
	if err != nil {
		return nil, err
	}
	if req.VehicleID != nil && vehicle.ID != *req.VehicleID {
		return nil, domain.NewPreconditionError("vehicle is not approved for this driver")
	}

	now := s.clock.Now()
	if err := r.Accept(driverID, vehicle.ID, s.fare.Fare(r.DistanceKm()), now); err != nil {
		return nil, err
	}
	r.IncrementVersion()
	if err := s.uow.Repositories().Rides.Update(ctx, r); err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	snap.RecordAccepted()
	if err := s.drivers.states.Save(ctx, *snap); err != nil {
		s.logger.Error("failed to mark driver busy", zap.String("driver_id", driverID.String()), zap.Error(err))
	}

	s.logger.Info("ride accepted",
		zap.String("ride_id", rideID.String()),
		zap.String("driver_id", driverID.String()),
		zap.String("vehicle_id", vehicle.ID.String()),
	)

	var out domain.Outbox
	out.Notify(domain.Notification{
		UserID:      r.PassengerID(),
		Title:       "Ride Accepted!",
		Body:        "Your driver has accepted your request and is on the way.",
		Type:        domain.NotificationMatchAccepted,
		ReferenceID: r.ID(),
	})
	evt := rideEvent(domain.MatchEventAccepted, r, now, append([]uuid.UUID{r.PassengerID()}, r.OfferedDriverIDs()...)...)
	evt.Payload = snap.Position
	out.PublishMatch(evt)
	s.dispatcher.Flush(ctx, &out)

	return toRideDTO(r), nil
}

// DriverArrived marks the bound driver at the pickup point.
func (s *RideService) DriverArrived(ctx context.Context, rideID, driverID uuid.UUID) (*RideDTO, error) {
	return s.transition(ctx, rideID, func(r *rideDomain.Ride, now time.Time, out *domain.Outbox) error {
		if err := r.Arrive(driverID, now); err != nil {
			return err
		}
		out.PublishMatch(rideEvent(domain.MatchEventArrived, r, now, r.PassengerID()))
		return nil
	})
}

// StartRide begins the trip once the passenger is on board.
func (s *RideService) StartRide(ctx context.Context, rideID, driverID uuid.UUID) (*RideDTO, error) {
	return s.transition(ctx, rideID, func(r *rideDomain.Ride, now time.Time, out *domain.Outbox) error {
		if err := r.Start(driverID, now); err != nil {
			return err
		}
		out.Notify(tripStarted(r))
		out.PublishMatch(rideEvent(domain.MatchEventStarted, r, now, r.PassengerID()))
		return nil
	})
}

// CompleteRide ends the trip. A route ride completes its booking in the same transaction.
func (s *RideService) CompleteRide(ctx context.Context, rideID, driverID uuid.UUID) (*RideDTO, error) {
	unlock := s.locks.lock(rideID)
	defer unlock()

	now := s.clock.Now()
	var r *rideDomain.Ride
	err := s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		r, err = repos.Rides.FindByID(ctx, rideID)
		if err != nil {
			return err
		}
		if r.BookingID() == nil {
			if err := r.Complete(driverID, s.fare, now); err != nil {
				return err
			}
			r.IncrementVersion()
			return repos.Rides.Update(ctx, r)
		}
		b, err := repos.Bookings.FindByID(ctx, *r.BookingID())
		if err != nil {
			return err
		}
		if err := completeRouteTrip(ctx, repos, r, b, driverID, s.fare, now); err != nil {
			return err
		}
		b.IncrementVersion()
		return repos.Bookings.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()
	if r.BookingID() != nil {
		observability.BookingTransitions.WithLabelValues(bookingDomain.StatusCompleted.String()).Inc()
	}

	if r.Kind() == rideDomain.KindOnDemand {
		s.drivers.recordCompleted(ctx, driverID)
	}

	s.logger.Info("ride completed",
		zap.String("ride_id", rideID.String()),
		zap.String("driver_id", driverID.String()),
		zap.Int64("fare", *r.Fare()),
	)

	var out domain.Outbox
	queueCompleted(&out, r, now)
	s.dispatcher.Flush(ctx, &out)
	return toRideDTO(r), nil
}

// CancelRide terminates a ride on behalf of its passenger or bound driver.
// Cancelling a cancelled ride returns it unchanged. A bound on-demand driver is
// freed; a route ride in progress cancels its booking and releases the seats.
func (s *RideService) CancelRide(ctx context.Context, rideID, actorID uuid.UUID, reason string) (*RideDTO, error) {
	unlock := s.locks.lock(rideID)
	defer unlock()

	r, err := s.uow.Repositories().Rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.PassengerID() != actorID && !r.IsDriver(actorID) {
		return nil, domain.NewOwnershipError("only the passenger or the assigned driver can cancel this ride")
	}
	if r.Status() == rideDomain.StatusCancelled {
		return toRideDTO(r), nil
	}

	now := s.clock.Now()
	released := 0
	err = s.uow.Do(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := r.Cancel(actorID, reason, now); err != nil {
			return err
		}
		r.IncrementVersion()
		if err := repos.Rides.Update(ctx, r); err != nil {
			return err
		}
		if r.BookingID() == nil {
			return nil
		}
		n, err := cancelBookingForRide(ctx, repos, *r.BookingID(), reason, now)
		released = n
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()
	if released > 0 {
		observability.BookingTransitions.WithLabelValues(bookingDomain.StatusCancelled.String()).Inc()
		observability.SeatsReleased.Add(float64(released))
	}

	if r.Kind() == rideDomain.KindOnDemand && r.DriverID() != nil {
		s.drivers.release(ctx, *r.DriverID())
	}

	s.logger.Info("ride cancelled",
		zap.String("ride_id", rideID.String()),
		zap.String("actor_id", actorID.String()),
		zap.Int("seats_released", released),
	)

	var out domain.Outbox
	by := "passenger"
	counterpart := r.DriverID()
	if r.IsDriver(actorID) && actorID != r.PassengerID() {
		by = "driver"
		passenger := r.PassengerID()
		counterpart = &passenger
	}
	if counterpart != nil && *counterpart != actorID {
		out.Notify(domain.Notification{
			UserID:      *counterpart,
			Title:       "Ride Cancelled",
			Body:        fmt.Sprintf("The ride has been cancelled by the %s.", by),
			Type:        domain.NotificationMatchCancelled,
			ReferenceID: r.ID(),
		})
	}
	out.PublishMatch(rideEvent(domain.MatchEventCancelled, r, now, rideParticipants(r)...))
	s.dispatcher.Flush(ctx, &out)

	return toRideDTO(r), nil
}

// ExpireRide cancels a ride that never got a driver. Rides already cancelled are
// returned unchanged.
func (s *RideService) ExpireRide(ctx context.Context, rideID uuid.UUID) (*RideDTO, error) {
	unlock := s.locks.lock(rideID)
	defer unlock()

	r, err := s.uow.Repositories().Rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status() == rideDomain.StatusCancelled {
		return toRideDTO(r), nil
	}

	now := s.clock.Now()
	if err := r.Expire(now); err != nil {
		return nil, err
	}
	r.IncrementVersion()
	if err := s.uow.Repositories().Rides.Update(ctx, r); err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()
	observability.Expired.WithLabelValues("ride").Inc()

	s.logger.Info("ride expired", zap.String("ride_id", rideID.String()))

	var out domain.Outbox
	out.Notify(domain.Notification{
		UserID:      r.PassengerID(),
		Title:       "No Driver Found",
		Body:        "Your ride request expired before a driver accepted it.",
		Type:        domain.NotificationMatchCancelled,
		ReferenceID: r.ID(),
	})
	out.PublishMatch(rideEvent(domain.MatchEventCancelled, r, now, rideParticipants(r)...))
	s.dispatcher.Flush(ctx, &out)

	return toRideDTO(r), nil
}

// StartPersonalRide records a driver-initiated trip that skips dispatch.
func (s *RideService) StartPersonalRide(ctx context.Context, driverID uuid.UUID, req StartPersonalRideRequest) (*RideDTO, error) {
	var preferred []uuid.UUID
	if req.VehicleID != nil {
		preferred = append(preferred, *req.VehicleID)
	}
	vehicle, err := s.drivers.approvedVehicle(ctx, driverID, preferred)
	if err != nil {
		return nil, err
	}
	if req.VehicleID != nil && vehicle.ID != *req.VehicleID {
		return nil, domain.NewPreconditionError("vehicle is not approved for this driver")
	}

	params := rideDomain.DirectRideParams{
		Kind:        rideDomain.KindPersonal,
		DriverID:    driverID,
		VehicleID:   vehicle.ID,
		Pickup:      req.Pickup,
		Destination: req.Destination,
	}
	if req.PassengerID != nil {
		params.PassengerID = *req.PassengerID
	}

	now := s.clock.Now()
	estimate := s.fare.Fare(domain.HaversineKm(req.Pickup.Point, req.Destination.Point))
	r, err := rideDomain.NewDirectRide(params, estimate, now)
	if err != nil {
		return nil, err
	}
	if err := s.uow.Repositories().Rides.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save ride: %w", err)
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	s.logger.Info("personal ride started",
		zap.String("ride_id", r.ID().String()),
		zap.String("driver_id", driverID.String()),
	)

	if r.PassengerID() != driverID {
		var out domain.Outbox
		out.Notify(tripStarted(r))
		out.PublishMatch(rideEvent(domain.MatchEventStarted, r, now, r.PassengerID()))
		s.dispatcher.Flush(ctx, &out)
	}
	return toRideDTO(r), nil
}

// GetRide retrieves a ride by ID.
func (s *RideService) GetRide(ctx context.Context, rideID uuid.UUID) (*RideDTO, error) {
	r, err := s.uow.Repositories().Rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return toRideDTO(r), nil
}

// ListWaitingRides returns rides waiting for a driver, oldest first.
func (s *RideService) ListWaitingRides(ctx context.Context, limit int) ([]RideDTO, error) {
	rides, err := s.uow.Repositories().Rides.FindByStatus(ctx, rideDomain.StatusWaiting, limit)
	if err != nil {
		return nil, err
	}
	return toRideDTOs(rides), nil
}

// ListPassengerRides returns a page of the passenger's rides, newest first.
func (s *RideService) ListPassengerRides(ctx context.Context, passengerID uuid.UUID, page, limit int) (*domain.PaginatedResult[RideDTO], error) {
	rides, total, err := s.uow.Repositories().Rides.FindByPassengerID(ctx, passengerID, page, limit)
	if err != nil {
		return nil, err
	}
	result := domain.NewPaginatedResult(toRideDTOs(rides), total, page, limit)
	return &result, nil
}

// ListDriverRides returns a page of the driver's rides, newest first.
func (s *RideService) ListDriverRides(ctx context.Context, driverID uuid.UUID, page, limit int) (*domain.PaginatedResult[RideDTO], error) {
	rides, total, err := s.uow.Repositories().Rides.FindByDriverID(ctx, driverID, page, limit)
	if err != nil {
		return nil, err
	}
	result := domain.NewPaginatedResult(toRideDTOs(rides), total, page, limit)
	return &result, nil
}

// transition loads a ride under its lock, applies fn, persists and flushes.
func (s *RideService) transition(
	ctx context.Context,
	rideID uuid.UUID,
	fn func(r *rideDomain.Ride, now time.Time, out *domain.Outbox) error,
) (*RideDTO, error) {
	unlock := s.locks.lock(rideID)
	defer unlock()

	r, err := s.uow.Repositories().Rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var out domain.Outbox
	if err := fn(r, now, &out); err != nil {
		return nil, err
	}
	r.IncrementVersion()
	if err := s.uow.Repositories().Rides.Update(ctx, r); err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(r.Status().String()).Inc()

	s.logger.Info("ride status changed",
		zap.String("ride_id", rideID.String()),
		zap.String("status", r.Status().String()),
	)
	s.dispatcher.Flush(ctx, &out)
	return toRideDTO(r), nil
}

// match runs one matching pass. Directory failures degrade to no supply so the
// ride is still recorded and can be redispatched.
func (s *RideService) match(ctx context.Context, r *rideDomain.Ride) matching.Result {
	start := time.Now()
	pickup := r.Pickup().Point
	result, err := s.matcher.FindCandidates(ctx, &pickup)
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.MatchPasses.WithLabelValues("error").Inc()
		s.logger.Error("matching pass failed", zap.String("ride_id", r.ID().String()), zap.Error(err))
		return matching.Result{}
	}
	if result.NoSupply() {
		observability.MatchPasses.WithLabelValues("no_supply").Inc()
		return result
	}
	observability.MatchPasses.WithLabelValues("matched").Inc()
	observability.MatchRadiusKm.Observe(result.RadiusKm)
	return result
}

// afterOffer notifies the candidates of a waiting ride and counts the offers.
func (s *RideService) afterOffer(ctx context.Context, r *rideDomain.Ride, now time.Time) {
	if r.Status() != rideDomain.StatusWaiting {
		return
	}
	var out domain.Outbox
	for _, c := range r.Offered() {
		out.Notify(domain.Notification{
			UserID: c.DriverID,
			Title:  "New Ride Request!",
			Body: fmt.Sprintf("From %s to %s. Distance: %.2fkm, Coin: %d",
				r.Pickup().Address, r.Destination().Address, r.DistanceKm(), r.EstimatedFare()),
			Type:        domain.NotificationMatchRequest,
			ReferenceID: r.ID(),
		})
	}
	evt := rideEvent(domain.MatchEventOffered, r, now, r.OfferedDriverIDs()...)
	evt.Payload = toRideDTO(r)
	out.PublishMatch(evt)
	s.dispatcher.Flush(ctx, &out)

	s.drivers.recordOffered(ctx, r.OfferedDriverIDs())
}

// completeRouteTrip completes a route ride and its booking. The ride is written
// here; the caller persists the booking.
func completeRouteTrip(
	ctx context.Context,
	repos repository.Repositories,
	r *rideDomain.Ride,
	b *bookingDomain.Booking,
	driverID uuid.UUID,
	policy rideDomain.FarePolicy,
	now time.Time,
) error {
	if err := b.Complete(driverID, now); err != nil {
		return err
	}
	if err := r.Complete(driverID, policy, now); err != nil {
		return err
	}
	r.IncrementVersion()
	return repos.Rides.Update(ctx, r)
}

// cancelBookingForRide follows a cancelled route ride into its booking and frees
// the seats. It returns the number of seats released.
func cancelBookingForRide(ctx context.Context, repos repository.Repositories, bookingID uuid.UUID, reason string, now time.Time) (int, error) {
	b, err := repos.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return 0, err
	}
	if b.Status() != bookingDomain.StatusInProgress {
		return 0, nil
	}
	seats, err := b.RideCancelled(reason, now)
	if err != nil {
		return 0, err
	}
	b.IncrementVersion()
	if err := repos.Bookings.Update(ctx, b); err != nil {
		return 0, err
	}

	rt, err := repos.Routes.FindByID(ctx, b.RouteID())
	if err != nil {
		return 0, err
	}
	rt.ReleaseSeats(seats, now)
	rt.IncrementVersion()
	if err := repos.Routes.Update(ctx, rt); err != nil {
		return 0, err
	}
	return seats, nil
}

func rideEvent(t domain.MatchEventType, r *rideDomain.Ride, now time.Time, recipients ...uuid.UUID) domain.MatchEvent {
	return domain.MatchEvent{
		Type:        t,
		RideID:      r.ID(),
		PassengerID: r.PassengerID(),
		DriverID:    r.DriverID(),
		Status:      r.Status().String(),
		Recipients:  dedupe(recipients),
		OccurredAt:  now,
	}
}

// rideParticipants lists everyone who may be watching the ride.
func rideParticipants(r *rideDomain.Ride) []uuid.UUID {
	ids := []uuid.UUID{r.PassengerID()}
	if r.DriverID() != nil {
		ids = append(ids, *r.DriverID())
	}
	if r.Status() == rideDomain.StatusCancelled && r.MatchedAt() == nil {
		ids = append(ids, r.OfferedDriverIDs()...)
	}
	return dedupe(ids)
}

func tripStarted(r *rideDomain.Ride) domain.Notification {
	return domain.Notification{
		UserID:      r.PassengerID(),
		Title:       "Trip Started",
		Body:        fmt.Sprintf("Your ride to %s has started.", r.Destination().Address),
		Type:        domain.NotificationTripStarted,
		ReferenceID: r.ID(),
	}
}

// queueCompleted tells the passenger the fare and, for route trips, thanks the driver.
func queueCompleted(out *domain.Outbox, r *rideDomain.Ride, now time.Time) {
	var fare int64
	if r.Fare() != nil {
		fare = *r.Fare()
	}
	if r.PassengerID() != *r.DriverID() {
		out.Notify(domain.Notification{
			UserID:      r.PassengerID(),
			Title:       "Ride Completed",
			Body:        fmt.Sprintf("You have arrived at %s. Total: %d coins.", r.Destination().Address, fare),
			Type:        domain.NotificationRideCompleted,
			ReferenceID: r.ID(),
		})
	}
	if r.Kind() == rideDomain.KindRoute {
		out.Notify(domain.Notification{
			UserID:      *r.DriverID(),
			Title:       "Ride Completed",
			Body:        fmt.Sprintf("Trip to %s completed. You earned %d coins.", r.Destination().Address, fare),
			Type:        domain.NotificationRideCompleted,
			ReferenceID: r.ID(),
		})
	}
	evt := rideEvent(domain.MatchEventCompleted, r, now, r.PassengerID(), *r.DriverID())
	evt.RatingEligible = r.PassengerID() != *r.DriverID()
	out.PublishMatch(evt)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
