package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/driver"
	"go.uber.org/zap"
)

// Score weights. They sum to 1.
const (
	WeightDistance   = 0.40
	WeightRating     = 0.25
	WeightAcceptance = 0.20
	WeightETA        = 0.10
	WeightCompletion = 0.05
)

// Config controls the radius expansion and candidate limits.
type Config struct {
	InitialRadiusKm float64
	RadiusStepKm    float64
	MaxRadiusKm     float64
	MaxCandidates   int
	StaleAfter      time.Duration
	AvgSpeedKmh     float64
}

// DefaultConfig searches 2, 4 and 6 km for up to five drivers reported in the last five minutes.
func DefaultConfig() Config {
	return Config{
		InitialRadiusKm: 2,
		RadiusStepKm:    2,
		MaxRadiusKm:     7,
		MaxCandidates:   5,
		StaleAfter:      5 * time.Minute,
		AvgSpeedKmh:     30,
	}
}

// Candidate is a driver eligible for one match attempt.
type Candidate struct {
	DriverID   uuid.UUID `json:"driver_id"`
	VehicleID  uuid.UUID `json:"vehicle_id"`
	DistanceKm float64   `json:"distance_km"`
	ETAMinutes int       `json:"eta_minutes"`
	Score      float64   `json:"score"`
}

// Result is the outcome of a matching pass.
type Result struct {
	Candidates []Candidate
	RadiusKm   float64
}

// NoSupply reports that no eligible driver was found at any radius.
func (r Result) NoSupply() bool { return len(r.Candidates) == 0 }

// Matcher ranks online drivers around a pickup point.
type Matcher struct {
	directory driver.Directory
	clock     clock.Clock
	cfg       Config
	logger    *zap.Logger
}

// NewMatcher creates a new Matcher.
func NewMatcher(directory driver.Directory, clk clock.Clock, cfg Config, logger *zap.Logger) *Matcher {
	return &Matcher{
		directory: directory,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// FindCandidates returns at most MaxCandidates drivers ordered by descending score.
// The radius grows by RadiusStepKm only while a search comes back empty, and the
// first radius that yields anyone ends the search. A nil pickup yields no candidates.
func (m *Matcher) FindCandidates(ctx context.Context, pickup *domain.GeoPoint) (Result, error) {
	if pickup == nil {
		return Result{}, nil
	}

	drivers, err := m.onlineDrivers(ctx, *pickup)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list online drivers: %w", err)
	}

	now := m.clock.Now()
	vehicles := make(map[uuid.UUID]*driver.Vehicle)
	radius := m.cfg.InitialRadiusKm
	var found []Candidate

	for len(found) < m.cfg.MaxCandidates && radius <= m.cfg.MaxRadiusKm {
		found, err = m.search(ctx, *pickup, drivers, radius, now, vehicles)
		if err != nil {
			return Result{}, err
		}
		if len(found) > 0 {
			break
		}
		radius += m.cfg.RadiusStepKm
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Score > found[j].Score
	})
	if len(found) > m.cfg.MaxCandidates {
		found = found[:m.cfg.MaxCandidates]
	}

	m.logger.Debug("matching pass finished",
		zap.Float64("radius_km", radius),
		zap.Int("candidates", len(found)),
		zap.Int("drivers_considered", len(drivers)),
	)

	return Result{Candidates: found, RadiusKm: radius}, nil
}

// onlineDrivers prefers the directory's geo index when it has one. Only the
// outermost radius is asked for; the per-radius cut happens in search.
func (m *Matcher) onlineDrivers(ctx context.Context, pickup domain.GeoPoint) ([]driver.Snapshot, error) {
	if nearby, ok := m.directory.(driver.NearbyDirectory); ok {
		return nearby.ListOnlineNear(ctx, pickup, m.cfg.MaxRadiusKm)
	}
	return m.directory.ListOnlineDrivers(ctx)
}

func (m *Matcher) search(
	ctx context.Context,
	pickup domain.GeoPoint,
	drivers []driver.Snapshot,
	radiusKm float64,
	now time.Time,
	vehicles map[uuid.UUID]*driver.Vehicle,
) ([]Candidate, error) {
	var out []Candidate
	for _, d := range drivers {
		if !d.IsMatchable(now, m.cfg.StaleAfter) {
			continue
		}
		distance := domain.HaversineKm(pickup, *d.Position)
		if distance > radiusKm {
			continue
		}

		vehicle, seen := vehicles[d.DriverID]
		if !seen {
			approved, err := m.directory.ListApprovedVehicles(ctx, d.DriverID)
			if err != nil {
				return nil, fmt.Errorf("failed to list vehicles for driver %s: %w", d.DriverID, err)
			}
			vehicle = driver.FirstApproved(approved)
			vehicles[d.DriverID] = vehicle
		}
		if vehicle == nil {
			continue
		}

		eta := ETAMinutes(distance, m.cfg.AvgSpeedKmh)
		out = append(out, Candidate{
			DriverID:   d.DriverID,
			VehicleID:  vehicle.ID,
			DistanceKm: distance,
			ETAMinutes: eta,
			Score:      Score(distance, eta, d),
		})
	}
	return out, nil
}

// ETAMinutes converts a distance to whole minutes at the given speed, rounding up.
func ETAMinutes(distanceKm, speedKmh float64) int {
	return int(math.Ceil(distanceKm / speedKmh * 60))
}

// Score combines the five normalized factors into one value, higher is better.
func Score(distanceKm float64, etaMinutes int, d driver.Snapshot) float64 {
	distanceScore := math.Min(1, 10/math.Max(distanceKm, 0.5))
	ratingScore := d.Rating / 5
	acceptanceScore := d.Stats.AcceptanceRate() / 100
	etaScore := math.Min(1, 30/math.Max(float64(etaMinutes), 1))
	completionScore := d.Stats.CompletionRate() / 100

	return WeightDistance*distanceScore +
		WeightRating*ratingScore +
		WeightAcceptance*acceptanceScore +
		WeightETA*etaScore +
		WeightCompletion*completionScore
}
