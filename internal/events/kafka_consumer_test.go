package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type update struct {
	driverID uuid.UUID
	req      application.UpdateLocationRequest
}

type fakeUpdater struct {
	updates []update
	err     error
}

func (f *fakeUpdater) UpdateLocation(_ context.Context, driverID uuid.UUID, req application.UpdateLocationRequest) (*application.DriverDTO, error) {
	f.updates = append(f.updates, update{driverID: driverID, req: req})
	if f.err != nil {
		return nil, f.err
	}
	return &application.DriverDTO{DriverID: driverID}, nil
}

func reportMessage(t *testing.T, eventType string, data interface{}) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("driver-app", eventType, data)
	require.NoError(t, err)
	raw, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Topic: TopicLocationReports, Value: raw}
}

func TestLocationReportConsumer_HandleMessage(t *testing.T) {
	driverID := uuid.New()

	tests := []struct {
		name        string
		msg         func(t *testing.T) kafkago.Message
		updaterErr  error
		wantErr     bool
		wantUpdates int
	}{
		{
			name: "applies report",
			msg: func(t *testing.T) kafkago.Message {
				return reportMessage(t, DriverLocationReported, LocationReportedEvent{DriverID: driverID, Latitude: 10.77, Longitude: 106.70})
			},
			wantUpdates: 1,
		},
		{
			name: "malformed envelope is dropped",
			msg: func(*testing.T) kafkago.Message {
				return kafkago.Message{Value: []byte("{not json")}
			},
		},
		{
			name: "unknown type is ignored",
			msg: func(t *testing.T) kafkago.Message {
				return reportMessage(t, "driver.shift.started", map[string]string{"driver_id": driverID.String()})
			},
		},
		{
			name: "missing driver is dropped",
			msg: func(t *testing.T) kafkago.Message {
				return reportMessage(t, DriverLocationReported, LocationReportedEvent{Latitude: 10.77})
			},
		},
		{
			name: "invalid coordinates are not retried",
			msg: func(t *testing.T) kafkago.Message {
				return reportMessage(t, DriverLocationReported, LocationReportedEvent{DriverID: driverID, Latitude: 123})
			},
			updaterErr:  domain.NewValidationError("latitude out of range"),
			wantUpdates: 1,
		},
		{
			name: "store failures are retried",
			msg: func(t *testing.T) kafkago.Message {
				return reportMessage(t, DriverLocationReported, LocationReportedEvent{DriverID: driverID, Latitude: 10.77, Longitude: 106.70})
			},
			updaterErr:  errors.New("redis unavailable"),
			wantErr:     true,
			wantUpdates: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updater := &fakeUpdater{err: tt.updaterErr}
			c := &LocationReportConsumer{drivers: updater, logger: zap.NewNop()}

			err := c.handleMessage(context.Background(), tt.msg(t))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, updater.updates, tt.wantUpdates)
			if tt.wantUpdates > 0 {
				assert.Equal(t, driverID, updater.updates[0].driverID)
			}
		})
	}
}
