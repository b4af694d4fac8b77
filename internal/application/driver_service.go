package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/domain"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"go.uber.org/zap"
)

// DriverService owns the live driver state: position, availability, vehicles and stats.
type DriverService struct {
	states     driverDomain.StateStore
	vehicles   driverDomain.VehicleRepository
	dispatcher *Dispatcher
	clock      clock.Clock
	locks      keyedLock
	logger     *zap.Logger
}

// NewDriverService creates a new DriverService.
func NewDriverService(
	states driverDomain.StateStore,
	vehicles driverDomain.VehicleRepository,
	dispatcher *Dispatcher,
	clk clock.Clock,
	logger *zap.Logger,
) *DriverService {
	return &DriverService{
		states:     states,
		vehicles:   vehicles,
		dispatcher: dispatcher,
		clock:      clk,
		locks:      newKeyedLock(),
		logger:     logger,
	}
}

// GetDriver returns the driver's live state. Unknown drivers are reported offline.
func (s *DriverService) GetDriver(ctx context.Context, driverID uuid.UUID) (*DriverDTO, error) {
	snap, err := s.states.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return toDriverDTO(snap), nil
}

// UpdateLocation stamps a new position with the service clock and broadcasts it.
func (s *DriverService) UpdateLocation(ctx context.Context, driverID uuid.UUID, req UpdateLocationRequest) (*DriverDTO, error) {
	point := domain.GeoPoint{Latitude: req.Latitude, Longitude: req.Longitude}
	now := s.clock.Now()

	var snap driverDomain.Snapshot
	err := s.withDriver(ctx, driverID, func(d *driverDomain.Snapshot) error {
		if err := d.ReportLocation(point, now); err != nil {
			return err
		}
		snap = *d
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out domain.Outbox
	out.PublishLocation(domain.DriverLocation{
		DriverID:   driverID,
		Point:      point,
		Status:     snap.Status.String(),
		ReportedAt: now,
	})
	s.dispatcher.Flush(ctx, &out)

	return toDriverDTO(&snap), nil
}

// SetStatus toggles a driver between online and offline. Busy is owned by the
// ride lifecycle and cannot be set or left here.
func (s *DriverService) SetStatus(ctx context.Context, driverID uuid.UUID, status driverDomain.Status) (*DriverDTO, error) {
	if status == driverDomain.StatusBusy {
		return nil, domain.NewValidationError("busy is set by ride acceptance")
	}
	if !status.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid driver status: %s", status))
	}
	if status == driverDomain.StatusOnline {
		if _, err := s.approvedVehicle(ctx, driverID, nil); err != nil {
			if errors.Is(err, domain.ErrPrecondition) {
				return nil, domain.NewPreconditionError("an approved vehicle is required to go online")
			}
			return nil, err
		}
	}

	var snap driverDomain.Snapshot
	err := s.withDriver(ctx, driverID, func(d *driverDomain.Snapshot) error {
		if d.Status == driverDomain.StatusBusy {
			return domain.NewPreconditionError("cannot change status during an active ride")
		}
		d.Status = status
		snap = *d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("driver status changed",
		zap.String("driver_id", driverID.String()),
		zap.String("status", status.String()),
	)
	return toDriverDTO(&snap), nil
}

// RegisterVehicle adds a vehicle awaiting admin approval.
func (s *DriverService) RegisterVehicle(ctx context.Context, driverID uuid.UUID, req RegisterVehicleRequest) (*driverDomain.Vehicle, error) {
	v, err := driverDomain.NewVehicle(driverID, req.PlateNumber, req.Type, req.Capacity, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.vehicles.Save(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("vehicle registered",
		zap.String("vehicle_id", v.ID.String()),
		zap.String("driver_id", driverID.String()),
	)
	return v, nil
}

// ReviewVehicle records an admin decision on a vehicle.
func (s *DriverService) ReviewVehicle(ctx context.Context, vehicleID uuid.UUID, status driverDomain.VehicleStatus) (*driverDomain.Vehicle, error) {
	v, err := s.vehicles.FindByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if err := v.Review(status, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.vehicles.Update(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("vehicle reviewed",
		zap.String("vehicle_id", vehicleID.String()),
		zap.String("status", string(status)),
	)
	return v, nil
}

// ListVehicles returns every vehicle registered by the driver.
func (s *DriverService) ListVehicles(ctx context.Context, driverID uuid.UUID) ([]driverDomain.Vehicle, error) {
	return s.vehicles.FindByDriverID(ctx, driverID)
}

// approvedVehicle picks the vehicle a driver works with. The first preferred ID
// that is approved and owned wins; without preferences the first approved vehicle is used.
func (s *DriverService) approvedVehicle(ctx context.Context, driverID uuid.UUID, preferred []uuid.UUID) (*driverDomain.Vehicle, error) {
	vehicles, err := s.vehicles.FindByDriverID(ctx, driverID)
	if err != nil {
		return nil, err
	}
	for _, id := range preferred {
		for i := range vehicles {
			if vehicles[i].ID == id && vehicles[i].IsApproved() {
				return &vehicles[i], nil
			}
		}
	}
	if v := driverDomain.FirstApproved(vehicles); v != nil {
		return v, nil
	}
	return nil, domain.NewPreconditionError("driver has no approved vehicle")
}

// withDriver runs fn on the driver's snapshot under the driver lock and saves
// the result when fn succeeds.
func (s *DriverService) withDriver(ctx context.Context, driverID uuid.UUID, fn func(d *driverDomain.Snapshot) error) error {
	unlock := s.locks.lock(driverID)
	defer unlock()

	snap, err := s.states.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.states.Save(ctx, *snap)
}

// recordOffered bumps the offered counter of every candidate. Stats are
// bookkeeping, so failures are logged and skipped.
func (s *DriverService) recordOffered(ctx context.Context, driverIDs []uuid.UUID) {
	for _, id := range driverIDs {
		err := s.withDriver(ctx, id, func(d *driverDomain.Snapshot) error {
			d.RecordOffered()
			return nil
		})
		if err != nil {
			s.logger.Warn("failed to record ride offer", zap.String("driver_id", id.String()), zap.Error(err))
		}
	}
}

func (s *DriverService) recordCompleted(ctx context.Context, driverID uuid.UUID) {
	err := s.withDriver(ctx, driverID, func(d *driverDomain.Snapshot) error {
		d.RecordCompleted()
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to record ride completion", zap.String("driver_id", driverID.String()), zap.Error(err))
	}
}

func (s *DriverService) release(ctx context.Context, driverID uuid.UUID) {
	err := s.withDriver(ctx, driverID, func(d *driverDomain.Snapshot) error {
		d.Release()
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to release driver", zap.String("driver_id", driverID.String()), zap.Error(err))
	}
}
