//go:build integration

package main_test

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/directory"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/events"
	"github.com/ridemate/service-dispatch/internal/kafka"
	"github.com/ridemate/service-dispatch/internal/repository"
	"github.com/ridemate/service-dispatch/internal/repository/memory"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// startPostgres starts a PostgreSQL container and returns a migrated GORM DB.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "test_dispatch",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	})

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_dispatch sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, repository.Migrate(db))
	return db
}

// startRedis starts a Redis container and returns a connected client.
func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.Eventually(t, func() bool {
		return client.Ping(ctx).Err() == nil
	}, 10*time.Second, 200*time.Millisecond, "Redis not ready for connections")
	return client
}

// startKafka starts a Kafka container and pre-creates the dispatch topics.
func startKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	ensureTopics(t, brokers,
		events.TopicNotifications,
		events.TopicRideEvents,
		events.TopicDriverLocations,
		events.TopicLocationReports,
	)
	return brokers
}

// dispatchStack holds wired-up dispatch services.
type dispatchStack struct {
	Drivers  *application.DriverService
	Rides    *application.RideService
	Routes   *application.RouteService
	Bookings *application.BookingService
}

// newDispatchStack wires the services over the given stores. A nil publisher
// leaves notifications to the log.
func newDispatchStack(
	uow repository.UnitOfWork,
	states driverDomain.StateStore,
	vehicles driverDomain.VehicleRepository,
	publisher *events.Publisher,
) *dispatchStack {
	logger, _ := zap.NewDevelopment()
	clk := clock.WallClock
	fare := rideDomain.NewCoinFarePolicy()

	var dispatcher *application.Dispatcher
	if publisher != nil {
		dispatcher = application.NewDispatcher(publisher, logger, publisher)
	} else {
		dispatcher = application.NewDispatcher(nil, logger)
	}
	matcher := matching.NewMatcher(directory.New(states, vehicles), clk, matching.DefaultConfig(), logger)

	drivers := application.NewDriverService(states, vehicles, dispatcher, clk, logger)
	routes := application.NewRouteService(uow, vehicles, clk, logger)
	return &dispatchStack{
		Drivers:  drivers,
		Rides:    application.NewRideService(uow, matcher, drivers, fare, dispatcher, clk, logger),
		Routes:   routes,
		Bookings: application.NewBookingService(uow, routes, fare, dispatcher, clk, logger),
	}
}

// gormStack wires the services over PostgreSQL with an in-memory driver directory.
func gormStack(db *gorm.DB) *dispatchStack {
	return newDispatchStack(
		repository.NewGormUnitOfWork(db),
		memory.NewDriverStates(),
		repository.NewGormVehicleRepository(db),
		nil,
	)
}

// approvedVehicle registers and approves a vehicle for driverID.
func approvedVehicle(t *testing.T, s *dispatchStack, driverID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	v, err := s.Drivers.RegisterVehicle(ctx, driverID, application.RegisterVehicleRequest{
		PlateNumber: "51A-" + driverID.String()[:6],
		Type:        "car",
		Capacity:    4,
	})
	require.NoError(t, err)
	_, err = s.Drivers.ReviewVehicle(ctx, v.ID, driverDomain.VehicleApproved)
	require.NoError(t, err)
	return v.ID
}

// reportLocation publishes a driver app location report.
func reportLocation(t *testing.T, brokers []string, report events.LocationReportedEvent) {
	t.Helper()
	producer := kafka.NewProducer(brokers, zap.NewNop())
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent("driver-app", events.DriverLocationReported, report)
	require.NoError(t, err)
	ce = ce.WithSubject(report.DriverID.String())
	require.NoError(t, producer.PublishEvent(context.Background(), events.TopicLocationReports, ce))
}

// awaitDriverLocation reads the republished positions until one for driverID shows up.
func awaitDriverLocation(t *testing.T, brokers []string, driverID uuid.UUID, within time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), within)
	defer cancel()

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     "it-locations-" + uuid.NewString()[:8],
		Topic:       events.TopicDriverLocations,
		StartOffset: kafkago.FirstOffset,
		MaxBytes:    1 << 20,
	})
	defer func() { _ = reader.Close() }()

	for ctx.Err() == nil {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err == nil && ce.Type == events.DriverLocationUpdated && ce.Subject == driverID.String() {
			return ce
		}
	}
	t.Fatalf("no %s event for driver %s within %s", events.DriverLocationUpdated, driverID, within)
	return kafka.CloudEvent{}
}

// ensureTopics creates single-partition topics through the controller and
// waits until every one of them reports its partition.
func ensureTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	broker, err := conn.Controller()
	require.NoError(t, err)
	controller, err := kafkago.Dial("tcp", net.JoinHostPort(broker.Host, strconv.Itoa(broker.Port)))
	require.NoError(t, err)
	defer controller.Close()

	configs := make([]kafkago.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, controller.CreateTopics(configs...))

	require.Eventually(t, func() bool {
		partitions, err := conn.ReadPartitions(topics...)
		return err == nil && len(partitions) == len(topics)
	}, 10*time.Second, 250*time.Millisecond, "topics never became visible")
}
