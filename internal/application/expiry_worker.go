package application

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/repository"
	"go.uber.org/zap"
)

const expiryBatchSize = 100

// ExpiryConfig sets how long unanswered work may wait.
type ExpiryConfig struct {
	Interval          time.Duration
	RidePendingTTL    time.Duration
	BookingPendingTTL time.Duration
}

// SweepResult counts the records one sweep expired.
type SweepResult struct {
	Rides    int `json:"rides"`
	Bookings int `json:"bookings"`
}

// ExpiryWorker periodically expires rides nobody accepted and bookings the driver never answered.
type ExpiryWorker struct {
	uow      repository.UnitOfWork
	rides    *RideService
	bookings *BookingService
	clock    clock.Clock
	cfg      ExpiryConfig
	logger   *zap.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(
	uow repository.UnitOfWork,
	rides *RideService,
	bookings *BookingService,
	clk clock.Clock,
	cfg ExpiryConfig,
	logger *zap.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		uow:      uow,
		rides:    rides,
		bookings: bookings,
		clock:    clk,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.logger.Info("expiry worker started", zap.Duration("interval", w.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("expiry worker stopped")
			return nil
		case <-w.clock.After(w.cfg.Interval):
			if _, err := w.SweepOnce(ctx); err != nil {
				w.logger.Error("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce expires everything past its TTL. A record that changed state since
// it was listed is skipped.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := w.clock.Now()
	repos := w.uow.Repositories()

	rides, err := repos.Rides.FindUnassignedBefore(ctx, now.Add(-w.cfg.RidePendingTTL), expiryBatchSize)
	if err != nil {
		return result, err
	}
	for _, r := range rides {
		if _, err := w.rides.ExpireRide(ctx, r.ID()); err != nil {
			if skippable(err) {
				continue
			}
			return result, err
		}
		result.Rides++
	}

	bookings, err := repos.Bookings.FindPendingBefore(ctx, now.Add(-w.cfg.BookingPendingTTL), expiryBatchSize)
	if err != nil {
		return result, err
	}
	for _, b := range bookings {
		if _, err := w.bookings.ExpireBooking(ctx, b.ID()); err != nil {
			if skippable(err) {
				continue
			}
			return result, err
		}
		result.Bookings++
	}

	if result.Rides > 0 || result.Bookings > 0 {
		w.logger.Info("expiry sweep finished",
			zap.Int("rides", result.Rides),
			zap.Int("bookings", result.Bookings),
		)
	}
	return result, nil
}

func skippable(err error) bool {
	return errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound)
}
