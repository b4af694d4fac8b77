package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/ridemate/service-dispatch/internal/application"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/config"
	"github.com/ridemate/service-dispatch/internal/database"
	"github.com/ridemate/service-dispatch/internal/directory"
	driverDomain "github.com/ridemate/service-dispatch/internal/domain/driver"
	"github.com/ridemate/service-dispatch/internal/domain/matching"
	rideDomain "github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/events"
	"github.com/ridemate/service-dispatch/internal/handler"
	"github.com/ridemate/service-dispatch/internal/health"
	"github.com/ridemate/service-dispatch/internal/kafka"
	"github.com/ridemate/service-dispatch/internal/logger"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/realtime"
	"github.com/ridemate/service-dispatch/internal/repository"
	"github.com/ridemate/service-dispatch/internal/repository/memory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "service-dispatch"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("storage", cfg.Storage),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal(serviceName+" failed", zap.Error(err))
	}
	log.Info(serviceName + " stopped")
}

func run(cfg *config.ServiceConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []health.Check

	// Storage for rides, routes, bookings and vehicles
	var (
		uow      repository.UnitOfWork
		vehicles driverDomain.VehicleRepository
	)
	switch cfg.Storage {
	case "postgres":
		db, err := database.Connect(database.PostgresConfig{
			Host:     cfg.DBConfig.Host,
			Port:     cfg.DBConfig.Port,
			User:     cfg.DBConfig.User,
			Password: cfg.DBConfig.Password,
			DBName:   cfg.DBConfig.DBName,
			SSLMode:  cfg.DBConfig.SSLMode,
		}, log)
		if err != nil {
			return err
		}
		if err := repository.Migrate(db); err != nil {
			return err
		}
		log.Info("database migration completed")

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql.DB: %w", err)
		}
		defer func() { _ = sqlDB.Close() }()
		checks = append(checks, health.Check{Name: "postgres", Probe: sqlDB.PingContext})

		uow = repository.NewGormUnitOfWork(db)
		vehicles = repository.NewGormVehicleRepository(db)
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		uow = memory.NewStore()
		vehicles = memory.NewVehicles()
	}

	// Live driver directory
	var states driverDomain.StateStore = memory.NewDriverStates()
	if cfg.RedisConfig.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Addr,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, health.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		states = directory.NewRedisStateStore(rdb)
	}

	// Side channels
	hub := realtime.NewHub(log)
	defer hub.Close()

	var (
		notifier   application.Notifier
		publishers = []application.LocationPublisher{hub}
	)
	if len(cfg.KafkaConfig.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
		defer func() { _ = producer.Close() }()
		publisher := events.NewPublisher(producer, log)
		notifier = publisher
		publishers = append(publishers, publisher)
	} else {
		log.Warn("no kafka brokers configured; notifications are logged only")
	}
	dispatcher := application.NewDispatcher(notifier, log, publishers...)

	// Application services
	clk := clock.WallClock
	fare := rideDomain.CoinFarePolicy{
		Base:  float64(cfg.Dispatch.FareBaseCoin),
		PerKm: float64(cfg.Dispatch.FareCoinPerKm),
	}
	matcher := matching.NewMatcher(directory.New(states, vehicles), clk, matching.DefaultConfig(), log)

	driverService := application.NewDriverService(states, vehicles, dispatcher, clk, log)
	rideService := application.NewRideService(uow, matcher, driverService, fare, dispatcher, clk, log)
	routeService := application.NewRouteService(uow, vehicles, clk, log)
	bookingService := application.NewBookingService(uow, routeService, fare, dispatcher, clk, log,
		application.WithLocalZone(cfg.Dispatch.BookingZone))
	expiryWorker := application.NewExpiryWorker(uow, rideService, bookingService, clk, application.ExpiryConfig{
		Interval:          cfg.Dispatch.ExpiryInterval,
		RidePendingTTL:    cfg.Dispatch.RidePendingTTL,
		BookingPendingTTL: cfg.Dispatch.BookingPendingTTL,
	}, log)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(
		cfg.JWTConfig.Secret,
		cfg.JWTConfig.AccessDuration,
		cfg.JWTConfig.RefreshDuration,
	)

	// Setup Gin router
	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check and metrics routes
	health.NewHandler(serviceName, checks...).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Register routes
	api := &router.RouterGroup
	handler.NewRideHandler(rideService).RegisterRoutes(api, jwtManager)
	handler.NewRouteHandler(routeService, bookingService).RegisterRoutes(api, jwtManager)
	handler.NewBookingHandler(bookingService).RegisterRoutes(api, jwtManager)
	handler.NewDriverHandler(driverService).RegisterRoutes(api, jwtManager)
	handler.NewAdminHandler(driverService, rideService, bookingService, expiryWorker).RegisterRoutes(api, jwtManager)
	handler.NewRealtimeHandler(hub, log).RegisterRoutes(api, jwtManager)

	// Create HTTP server. No write timeout: websocket connections are long lived.
	srv := &http.Server{
		Addr:        cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down " + serviceName + "...")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced shutdown", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting expiry worker", zap.Duration("interval", cfg.Dispatch.ExpiryInterval))
		return expiryWorker.Run(gctx)
	})

	if len(cfg.KafkaConfig.Brokers) > 0 {
		groupID := cfg.KafkaConfig.GroupPrefix + serviceName
		locationConsumer := events.NewLocationReportConsumer(cfg.KafkaConfig.Brokers, groupID, driverService, log)
		defer func() { _ = locationConsumer.Close() }()

		g.Go(func() error {
			log.Info("starting location report consumer")
			if err := locationConsumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("location report consumer: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
