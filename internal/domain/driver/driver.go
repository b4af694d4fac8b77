package driver

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
)

// Status is a driver's availability.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusBusy    Status = "busy"
)

// IsValid returns true if the status is a recognized driver status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus converts a string to a Status, returning an error if invalid.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", domain.NewValidationError(fmt.Sprintf("invalid driver status: %s", s))
	}
	return status, nil
}

// Stats are lifetime counters for a driver.
type Stats struct {
	RidesOffered   int64 `json:"rides_offered"`
	RidesAccepted  int64 `json:"rides_accepted"`
	RidesCompleted int64 `json:"rides_completed"`
}

// AcceptanceRate is accepted/offered as a percentage in [0,100].
func (s Stats) AcceptanceRate() float64 {
	return percentage(s.RidesAccepted, s.RidesOffered)
}

// CompletionRate is completed/accepted as a percentage in [0,100].
func (s Stats) CompletionRate() float64 {
	return percentage(s.RidesCompleted, s.RidesAccepted)
}

func percentage(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	p := float64(part) / float64(whole) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Snapshot is the directory's view of one driver.
type Snapshot struct {
	DriverID       uuid.UUID        `json:"driver_id"`
	Position       *domain.GeoPoint `json:"position,omitempty"`
	Status         Status           `json:"status"`
	LastLocationAt *time.Time       `json:"last_location_at,omitempty"`
	Stats          Stats            `json:"stats"`
	Rating         float64          `json:"rating"`
}

// NewSnapshot returns an offline driver with no position and a neutral rating.
func NewSnapshot(driverID uuid.UUID) Snapshot {
	return Snapshot{
		DriverID: driverID,
		Status:   StatusOffline,
		Rating:   5.0,
	}
}

// IsMatchable reports whether the driver may be offered a ride at now:
// online, positioned, and reported within staleAfter.
func (s Snapshot) IsMatchable(now time.Time, staleAfter time.Duration) bool {
	if s.Status != StatusOnline || s.Position == nil || s.LastLocationAt == nil {
		return false
	}
	return now.Sub(*s.LastLocationAt) <= staleAfter
}

// ReportLocation records a new position at the given time.
func (s *Snapshot) ReportLocation(p domain.GeoPoint, at time.Time) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.Position = &p
	s.LastLocationAt = &at
	return nil
}

// RecordOffered bumps the offered counter.
func (s *Snapshot) RecordOffered() {
	s.Stats.RidesOffered++
}

// RecordAccepted bumps the accepted counter and marks the driver busy.
func (s *Snapshot) RecordAccepted() {
	s.Stats.RidesAccepted++
	if s.Stats.RidesOffered < s.Stats.RidesAccepted {
		s.Stats.RidesOffered = s.Stats.RidesAccepted
	}
	s.Status = StatusBusy
}

// RecordCompleted bumps the completed counter and frees the driver.
func (s *Snapshot) RecordCompleted() {
	s.Stats.RidesCompleted++
	s.Status = StatusOnline
}

// Release returns a busy driver to the available pool.
func (s *Snapshot) Release() {
	if s.Status == StatusBusy {
		s.Status = StatusOnline
	}
}
