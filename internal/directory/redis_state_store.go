package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/driver"
)

const (
	onlineSetKey = "drivers:online"
	geoKey       = "drivers:geo"
)

func stateKey(id uuid.UUID) string { return "driver:state:" + id.String() }

// RedisStateStore keeps driver snapshots in Redis so every dispatch replica
// sees the same live directory.
type RedisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore creates a new RedisStateStore.
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// Get returns the driver's snapshot. Unknown drivers read as offline.
func (s *RedisStateStore) Get(ctx context.Context, driverID uuid.UUID) (*driver.Snapshot, error) {
	raw, err := s.client.Get(ctx, stateKey(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		snap := driver.NewSnapshot(driverID)
		return &snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get driver state: %w", err)
	}

	var snap driver.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode driver state: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot and keeps the online set and geo index in step.
// Only online drivers with a position are indexed.
func (s *RedisStateStore) Save(ctx context.Context, snap driver.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode driver state: %w", err)
	}

	member := snap.DriverID.String()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, stateKey(snap.DriverID), raw, 0)
		if snap.Status == driver.StatusOnline {
			pipe.SAdd(ctx, onlineSetKey, member)
		} else {
			pipe.SRem(ctx, onlineSetKey, member)
		}
		if snap.Status == driver.StatusOnline && snap.Position != nil {
			pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
				Name:      member,
				Longitude: snap.Position.Longitude,
				Latitude:  snap.Position.Latitude,
			})
		} else {
			pipe.ZRem(ctx, geoKey, member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save driver state: %w", err)
	}
	return nil
}

// ListOnline returns every driver currently in the online set.
func (s *RedisStateStore) ListOnline(ctx context.Context) ([]driver.Snapshot, error) {
	members, err := s.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online drivers: %w", err)
	}
	return s.load(ctx, members)
}

// ListOnlineNear returns online drivers indexed within radiusKm of center.
func (s *RedisStateStore) ListOnlineNear(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]driver.Snapshot, error) {
	members, err := s.client.GeoSearch(ctx, geoKey, &redis.GeoSearchQuery{
		Longitude:  center.Longitude,
		Latitude:   center.Latitude,
		Radius:     radiusKm,
		RadiusUnit: "km",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to search nearby drivers: %w", err)
	}
	return s.load(ctx, members)
}

// load fetches the snapshots for members and keeps the ones still online.
func (s *RedisStateStore) load(ctx context.Context, members []string) ([]driver.Snapshot, error) {
	keys := make([]string, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		keys = append(keys, stateKey(id))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load online drivers: %w", err)
	}

	out := make([]driver.Snapshot, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var snap driver.Snapshot
		if err := json.Unmarshal([]byte(str), &snap); err != nil {
			continue
		}
		if snap.Status == driver.StatusOnline {
			out = append(out, snap)
		}
	}
	return out, nil
}
