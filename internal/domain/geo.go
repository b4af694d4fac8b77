package domain

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the sphere radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that the point lies within coordinate bounds.
func (p GeoPoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return NewValidationError(fmt.Sprintf("latitude out of range: %f", p.Latitude))
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return NewValidationError(fmt.Sprintf("longitude out of range: %f", p.Longitude))
	}
	return nil
}

// Location is a point with its human-readable address.
type Location struct {
	Point   GeoPoint `json:"point"`
	Address string   `json:"address"`
}

// Validate checks the point and requires an address.
func (l Location) Validate(field string) error {
	if l.Address == "" {
		return NewValidationError(field + " address is required")
	}
	if err := l.Point.Validate(); err != nil {
		return NewValidationError(field + ": " + err.(*DomainError).Message)
	}
	return nil
}

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b GeoPoint) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineMeters is HaversineKm in metres.
func HaversineMeters(a, b GeoPoint) float64 {
	return HaversineKm(a, b) * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
