package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sent struct {
	topic string
	event kafka.CloudEvent
}

type fakeProducer struct {
	sent []sent
	err  error
}

func (f *fakeProducer) PublishEvent(_ context.Context, topic string, event kafka.CloudEvent) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{topic: topic, event: event})
	return nil
}

func TestPublisher_RoutesByTopic(t *testing.T) {
	fp := &fakeProducer{}
	p := &Publisher{producer: fp, logger: zap.NewNop()}
	ctx := context.Background()

	userID, rideID, driverID := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, p.Notify(ctx, domain.Notification{
		UserID: userID,
		Title:  "Ride Accepted!",
		Type:   domain.NotificationMatchAccepted,
	}))
	require.NoError(t, p.PublishMatchEvent(ctx, domain.MatchEvent{
		Type:       domain.MatchEventAccepted,
		RideID:     rideID,
		Recipients: []uuid.UUID{userID},
		OccurredAt: time.Now(),
	}))
	require.NoError(t, p.PublishDriverLocation(ctx, domain.DriverLocation{
		DriverID: driverID,
		Point:    domain.GeoPoint{Latitude: 10.77, Longitude: 106.70},
	}))

	require.Len(t, fp.sent, 3)

	assert.Equal(t, TopicNotifications, fp.sent[0].topic)
	assert.Equal(t, NotificationRequested, fp.sent[0].event.Type)
	assert.Equal(t, userID.String(), fp.sent[0].event.Subject)
	var n domain.Notification
	require.NoError(t, fp.sent[0].event.ParseData(&n))
	assert.Equal(t, domain.NotificationMatchAccepted, n.Type)

	assert.Equal(t, TopicRideEvents, fp.sent[1].topic)
	assert.Equal(t, "dispatch.ride.accepted", fp.sent[1].event.Type)
	assert.Equal(t, rideID.String(), fp.sent[1].event.Subject)

	assert.Equal(t, TopicDriverLocations, fp.sent[2].topic)
	assert.Equal(t, DriverLocationUpdated, fp.sent[2].event.Type)
	assert.Equal(t, Source, fp.sent[2].event.Source)
	var loc domain.DriverLocation
	require.NoError(t, fp.sent[2].event.ParseData(&loc))
	assert.Equal(t, driverID, loc.DriverID)
}

func TestPublisher_PropagatesProducerError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Publisher{producer: &fakeProducer{err: boom}, logger: zap.NewNop()}

	err := p.Notify(context.Background(), domain.Notification{UserID: uuid.New()})
	assert.ErrorIs(t, err, boom)
}
