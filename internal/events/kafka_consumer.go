package events

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LocationUpdater applies a driver position report.
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, driverID uuid.UUID, req application.UpdateLocationRequest) (*application.DriverDTO, error)
}

// LocationReportConsumer feeds driver location reports from Kafka into the
// driver directory.
type LocationReportConsumer struct {
	consumer *kafka.Consumer
	drivers  LocationUpdater
	logger   *zap.Logger
}

// NewLocationReportConsumer creates a new LocationReportConsumer.
func NewLocationReportConsumer(
	brokers []string,
	groupID string,
	drivers LocationUpdater,
	logger *zap.Logger,
) *LocationReportConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicLocationReports, logger)
	return &LocationReportConsumer{
		consumer: consumer,
		drivers:  drivers,
		logger:   logger,
	}
}

// Start begins consuming location reports. This blocks until the context is cancelled.
func (c *LocationReportConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *LocationReportConsumer) Close() error {
	return c.consumer.Close()
}

func (c *LocationReportConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from location topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // malformed messages are not retried
	}

	switch cloudEvent.Type {
	case DriverLocationReported:
		return c.handleLocationReported(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled location event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *LocationReportConsumer) handleLocationReported(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt LocationReportedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse LocationReportedEvent data", zap.Error(err))
		return nil
	}
	if evt.DriverID == uuid.Nil {
		c.logger.Warn("location report without driver id", zap.String("event_id", cloudEvent.ID))
		return nil
	}

	_, err := c.drivers.UpdateLocation(ctx, evt.DriverID, application.UpdateLocationRequest{
		Latitude:  evt.Latitude,
		Longitude: evt.Longitude,
	})
	if err != nil {
		// A bad position will not get better on retry.
		if errors.Is(err, domain.ErrValidation) {
			c.logger.Warn("rejected location report",
				zap.String("driver_id", evt.DriverID.String()),
				zap.Error(err),
			)
			return nil
		}
		c.logger.Error("failed to apply location report",
			zap.String("driver_id", evt.DriverID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
