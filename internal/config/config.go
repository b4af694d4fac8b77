package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "DISPATCH"

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds token settings.
type JWTConfig struct {
	Secret          string
	AccessDuration  time.Duration
	RefreshDuration time.Duration
}

// KafkaConfig holds broker settings. No brokers disables the event bus.
type KafkaConfig struct {
	Brokers     []string
	GroupPrefix string
}

// RedisConfig holds the driver directory store settings. An empty Addr keeps
// the directory in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DispatchConfig holds the business tunables.
type DispatchConfig struct {
	FareBaseCoin      int64
	FareCoinPerKm     int64
	ExpiryInterval    time.Duration
	RidePendingTTL    time.Duration
	BookingPendingTTL time.Duration
	// BookingZone decides which calendar day is today for the past-date guard.
	BookingZone *time.Location
}

// ServiceConfig holds all configuration for the dispatch service.
type ServiceConfig struct {
	Port        string
	AppEnv      string
	Storage     string
	DBConfig    DatabaseConfig
	JWTConfig   JWTConfig
	KafkaConfig KafkaConfig
	RedisConfig RedisConfig
	Dispatch    DispatchConfig
}

// Load reads configuration from DISPATCH_* environment variables and an
// optional config file named dispatch.{yaml,json,toml} in the working directory.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("dispatch")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &ServiceConfig{
		Port:    ":" + strings.TrimPrefix(v.GetString("SERVICE_PORT"), ":"),
		AppEnv:  v.GetString("APP_ENV"),
		Storage: v.GetString("STORAGE"),
		DBConfig: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		JWTConfig: JWTConfig{
			Secret:          v.GetString("JWT_SECRET"),
			AccessDuration:  v.GetDuration("JWT_ACCESS_TTL"),
			RefreshDuration: v.GetDuration("JWT_REFRESH_TTL"),
		},
		KafkaConfig: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKERS")),
			GroupPrefix: v.GetString("KAFKA_GROUP_PREFIX"),
		},
		RedisConfig: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Dispatch: DispatchConfig{
			FareBaseCoin:      v.GetInt64("FARE_BASE_COIN"),
			FareCoinPerKm:     v.GetInt64("FARE_COIN_PER_KM"),
			ExpiryInterval:    v.GetDuration("EXPIRY_INTERVAL"),
			RidePendingTTL:    v.GetDuration("RIDE_PENDING_TTL"),
			BookingPendingTTL: v.GetDuration("BOOKING_PENDING_TTL"),
		},
	}

	zone, err := time.LoadLocation(v.GetString("BOOKING_TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid BOOKING_TIMEZONE: %w", err)
	}
	cfg.Dispatch.BookingZone = zone

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("STORAGE", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "dispatch")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ACCESS_TTL", 15*time.Minute)
	v.SetDefault("JWT_REFRESH_TTL", 7*24*time.Hour)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_GROUP_PREFIX", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("FARE_BASE_COIN", 10)
	v.SetDefault("FARE_COIN_PER_KM", 5)
	v.SetDefault("EXPIRY_INTERVAL", time.Minute)
	v.SetDefault("RIDE_PENDING_TTL", 10*time.Minute)
	v.SetDefault("BOOKING_PENDING_TTL", 24*time.Hour)
	v.SetDefault("BOOKING_TIMEZONE", "UTC")
}

func (c *ServiceConfig) validate() error {
	if c.Storage != "postgres" && c.Storage != "memory" {
		return fmt.Errorf("STORAGE must be postgres or memory, got %q", c.Storage)
	}
	if c.JWTConfig.Secret == "" {
		if c.AppEnv != "development" {
			return errors.New("JWT_SECRET is required outside development")
		}
		c.JWTConfig.Secret = "development-secret"
	}
	if c.Dispatch.FareBaseCoin < 0 || c.Dispatch.FareCoinPerKm < 0 {
		return errors.New("fare settings must not be negative")
	}
	if c.Dispatch.ExpiryInterval <= 0 {
		return fmt.Errorf("EXPIRY_INTERVAL must be positive, got %s", c.Dispatch.ExpiryInterval)
	}
	if c.Dispatch.RidePendingTTL <= 0 || c.Dispatch.BookingPendingTTL <= 0 {
		return errors.New("RIDE_PENDING_TTL and BOOKING_PENDING_TTL must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
