package events

import (
	"context"
	"fmt"

	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/kafka"
	"go.uber.org/zap"
)

type eventProducer interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
}

// Publisher forwards notifications, ride events and driver positions to Kafka.
// It satisfies both application.Notifier and application.LocationPublisher.
type Publisher struct {
	producer eventProducer
	logger   *zap.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(producer *kafka.Producer, logger *zap.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// Notify publishes a notification request for the notification service.
func (p *Publisher) Notify(ctx context.Context, n domain.Notification) error {
	return p.publish(ctx, TopicNotifications, NotificationRequested, n.UserID.String(), n)
}

// PublishMatchEvent publishes a ride event keyed by ride so a ride's events stay ordered.
func (p *Publisher) PublishMatchEvent(ctx context.Context, evt domain.MatchEvent) error {
	return p.publish(ctx, TopicRideEvents, rideEventPrefix+string(evt.Type), evt.RideID.String(), evt)
}

func (p *Publisher) PublishDriverLocation(ctx context.Context, loc domain.DriverLocation) error {
	return p.publish(ctx, TopicDriverLocations, DriverLocationUpdated, loc.DriverID.String(), loc)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType, subject string, data interface{}) error {
	cloudEvent, err := kafka.NewCloudEvent(Source, eventType, data)
	if err != nil {
		return fmt.Errorf("failed to build %s event: %w", eventType, err)
	}
	if err := p.producer.PublishEvent(ctx, topic, cloudEvent.WithSubject(subject)); err != nil {
		return err
	}
	p.logger.Debug("dispatch event published",
		zap.String("topic", topic),
		zap.String("type", eventType),
		zap.String("subject", subject),
	)
	return nil
}
