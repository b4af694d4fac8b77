package ride

import "math"

// FarePolicy prices a ride from its straight-line distance.
type FarePolicy interface {
	Fare(distanceKm float64) int64
}

// CoinFarePolicy charges Base coins plus PerKm coins per kilometre, rounded up.
type CoinFarePolicy struct {
	Base  float64
	PerKm float64
}

// NewCoinFarePolicy returns the standard 10 + 5/km policy.
func NewCoinFarePolicy() CoinFarePolicy {
	return CoinFarePolicy{Base: 10, PerKm: 5}
}

func (p CoinFarePolicy) Fare(distanceKm float64) int64 {
	if distanceKm <= 0 {
		return int64(math.Ceil(p.Base))
	}
	return int64(math.Ceil(p.Base + distanceKm*p.PerKm))
}
