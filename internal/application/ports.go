package application

import (
	"context"
	"time"

	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/observability"
	"go.uber.org/zap"
)

// Notifier delivers a user-facing notification.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// LocationPublisher fans realtime ride and driver updates out to devices.
type LocationPublisher interface {
	PublishDriverLocation(ctx context.Context, loc domain.DriverLocation) error
	PublishMatchEvent(ctx context.Context, evt domain.MatchEvent) error
}

const flushTimeout = 5 * time.Second

// Dispatcher drains a committed transition's outbox. Delivery is best-effort:
// failures are logged and counted and never reach the caller.
type Dispatcher struct {
	notifier   Notifier
	publishers []LocationPublisher
	logger     *zap.Logger
}

// NewDispatcher creates a new Dispatcher. A nil notifier logs notifications instead.
func NewDispatcher(notifier Notifier, logger *zap.Logger, publishers ...LocationPublisher) *Dispatcher {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Dispatcher{
		notifier:   notifier,
		publishers: publishers,
		logger:     logger,
	}
}

// Flush sends everything queued in out. It detaches from ctx cancellation so a
// client hanging up after commit does not drop the messages.
func (d *Dispatcher) Flush(ctx context.Context, out *domain.Outbox) {
	if out == nil || out.Len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	for _, n := range out.Notifications {
		if err := d.notifier.Notify(ctx, n); err != nil {
			d.failed("notification", err, zap.String("user_id", n.UserID.String()), zap.String("type", string(n.Type)))
		}
	}
	for _, p := range d.publishers {
		for _, evt := range out.MatchEvents {
			if err := p.PublishMatchEvent(ctx, evt); err != nil {
				d.failed("match_event", err, zap.String("ride_id", evt.RideID.String()), zap.String("type", string(evt.Type)))
			}
		}
		for _, loc := range out.Locations {
			if err := p.PublishDriverLocation(ctx, loc); err != nil {
				d.failed("driver_location", err, zap.String("driver_id", loc.DriverID.String()))
			}
		}
	}
}

func (d *Dispatcher) failed(channel string, err error, fields ...zap.Field) {
	observability.SideChannelFailures.WithLabelValues(channel).Inc()
	d.logger.Warn("side channel delivery failed",
		append(fields, zap.String("channel", channel), zap.Error(err))...)
}

// LogNotifier writes notifications to the log. It stands in when no bus is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification domain.Notification) error {
	n.logger.Info("notification",
		zap.String("user_id", notification.UserID.String()),
		zap.String("type", string(notification.Type)),
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
	)
	return nil
}
