package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/domain"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	routeDomain "github.com/ridemate/service-dispatch/internal/domain/route"
	"github.com/ridemate/service-dispatch/internal/repository"
	"go.uber.org/zap"
)

// RouteService manages fixed routes published by drivers. Its lock is keyed by
// route ID and shared with BookingService for every seat mutation.
type RouteService struct {
	uow      repository.UnitOfWork
	vehicles driverDomain.VehicleRepository
	clock    clock.Clock
	locks    keyedLock
	logger   *zap.Logger
}

// NewRouteService creates a new RouteService.
func NewRouteService(
	uow repository.UnitOfWork,
	vehicles driverDomain.VehicleRepository,
	clk clock.Clock,
	logger *zap.Logger,
) *RouteService {
	return &RouteService{
		uow:      uow,
		vehicles: vehicles,
		clock:    clk,
		locks:    newKeyedLock(),
		logger:   logger,
	}
}

// CreateRoute publishes a route. The vehicle must belong to the driver and be approved.
func (s *RouteService) CreateRoute(ctx context.Context, driverID uuid.UUID, req CreateRouteRequest) (*RouteDTO, error) {
	v, err := s.vehicles.FindByID(ctx, req.VehicleID)
	if err != nil {
		return nil, err
	}
	if v.DriverID != driverID {
		return nil, domain.NewOwnershipError("vehicle does not belong to this driver")
	}
	if !v.IsApproved() {
		return nil, domain.NewPreconditionError("vehicle must be approved before publishing a route")
	}

	rt, err := routeDomain.NewFixedRoute(routeDomain.CreateParams{
		DriverID:       driverID,
		VehicleID:      v.ID,
		Name:           req.Name,
		Description:    req.Description,
		Pickup:         req.Pickup,
		Dropoff:        req.Dropoff,
		PickupRadiusM:  req.PickupRadiusM,
		DropoffRadiusM: req.DropoffRadiusM,
		DepartureTime:  req.DepartureTime,
		Dates:          req.Dates,
		PricePerSeat:   req.PricePerSeat,
		TotalSeats:     req.TotalSeats,
	}, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.uow.Repositories().Routes.Save(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to save route: %w", err)
	}

	s.logger.Info("route created",
		zap.String("route_id", rt.ID().String()),
		zap.String("driver_id", driverID.String()),
		zap.Int("seats", rt.TotalSeats()),
	)
	return toRouteDTO(rt), nil
}

// UpdateRoute applies the owner's changes. Changing the seat total shifts the
// available count by the same delta.
func (s *RouteService) UpdateRoute(ctx context.Context, routeID, driverID uuid.UUID, req UpdateRouteRequest) (*RouteDTO, error) {
	return s.mutate(ctx, routeID, driverID, func(rt *routeDomain.FixedRoute) error {
		return rt.Update(routeDomain.UpdateParams{
			Name:           req.Name,
			Description:    req.Description,
			DepartureTime:  req.DepartureTime,
			Dates:          req.Dates,
			PricePerSeat:   req.PricePerSeat,
			TotalSeats:     req.TotalSeats,
			PickupRadiusM:  req.PickupRadiusM,
			DropoffRadiusM: req.DropoffRadiusM,
		}, s.clock.Now())
	})
}

// SetRouteStatus moves the owner's route between active, inactive and completed.
func (s *RouteService) SetRouteStatus(ctx context.Context, routeID, driverID uuid.UUID, status routeDomain.RouteStatus) (*RouteDTO, error) {
	if !status.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid route status: %s", status))
	}
	return s.mutate(ctx, routeID, driverID, func(rt *routeDomain.FixedRoute) error {
		return rt.ChangeStatus(status, s.clock.Now())
	})
}

// DeleteRoute soft-deletes the route. Routes with bookings still in play cannot be deleted.
func (s *RouteService) DeleteRoute(ctx context.Context, routeID, driverID uuid.UUID) error {
	_, err := s.mutate(ctx, routeID, driverID, func(rt *routeDomain.FixedRoute) error {
		bookings, err := s.uow.Repositories().Bookings.FindByRouteID(ctx, routeID)
		if err != nil {
			return err
		}
		for _, b := range bookings {
			if !b.Status().IsTerminal() {
				return domain.NewPreconditionError("route has bookings that are not finished")
			}
		}
		return rt.Cancel(s.clock.Now())
	})
	return err
}

// GetRoute retrieves a route by ID.
func (s *RouteService) GetRoute(ctx context.Context, routeID uuid.UUID) (*RouteDTO, error) {
	rt, err := s.uow.Repositories().Routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return toRouteDTO(rt), nil
}

// ListDriverRoutes returns the driver's routes that are not cancelled.
func (s *RouteService) ListDriverRoutes(ctx context.Context, driverID uuid.UUID) ([]RouteDTO, error) {
	routes, err := s.uow.Repositories().Routes.FindByDriverID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return toRouteDTOs(routes), nil
}

// ListActiveRoutes returns every bookable route.
func (s *RouteService) ListActiveRoutes(ctx context.Context) ([]RouteDTO, error) {
	routes, err := s.uow.Repositories().Routes.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	return toRouteDTOs(routes), nil
}

// SearchRoutes finds active routes whose pickup and dropoff radii cover the
// requested points, nearest pickup first. Date and seat filters are optional.
func (s *RouteService) SearchRoutes(ctx context.Context, req SearchRoutesRequest) ([]RouteMatchDTO, error) {
	if err := req.Pickup.Validate(); err != nil {
		return nil, err
	}
	if err := req.Dropoff.Validate(); err != nil {
		return nil, err
	}

	routes, err := s.uow.Repositories().Routes.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]RouteMatchDTO, 0)
	for _, rt := range routes {
		if req.Date != "" && !rt.IsAvailableOn(req.Date) {
			continue
		}
		if req.Seats > 0 && !rt.HasSeats(req.Seats) {
			continue
		}
		pickup := rt.PickupDistanceM(req.Pickup)
		if pickup > float64(rt.PickupRadiusM()) {
			continue
		}
		dropoff := rt.DropoffDistanceM(req.Dropoff)
		if dropoff > float64(rt.DropoffRadiusM()) {
			continue
		}
		matches = append(matches, RouteMatchDTO{
			Route:            *toRouteDTO(rt),
			PickupDistanceM:  pickup,
			DropoffDistanceM: dropoff,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].PickupDistanceM < matches[j].PickupDistanceM
	})
	return matches, nil
}

// lock serializes seat and status changes on one route.
func (s *RouteService) lock(routeID uuid.UUID) func() {
	return s.locks.lock(routeID)
}

func (s *RouteService) mutate(
	ctx context.Context,
	routeID, driverID uuid.UUID,
	fn func(rt *routeDomain.FixedRoute) error,
) (*RouteDTO, error) {
	unlock := s.lock(routeID)
	defer unlock()

	rt, err := s.uow.Repositories().Routes.FindByID(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if !rt.IsOwnedBy(driverID) {
		return nil, domain.NewOwnershipError("you don't have permission to modify this route")
	}
	if err := fn(rt); err != nil {
		return nil, err
	}
	rt.IncrementVersion()
	if err := s.uow.Repositories().Routes.Update(ctx, rt); err != nil {
		return nil, err
	}

	s.logger.Info("route updated",
		zap.String("route_id", routeID.String()),
		zap.String("status", rt.Status().String()),
		zap.Int("available_seats", rt.AvailableSeats()),
	)
	return toRouteDTO(rt), nil
}
