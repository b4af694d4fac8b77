package route

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
)

// DateLayout is the ISO calendar date format used for route dates.
const DateLayout = "2006-01-02"

// DefaultRadiusMeters is the pickup/dropoff radius when none is given.
const DefaultRadiusMeters = 500

// FixedRoute is the aggregate root for a recurring multi-passenger route.
type FixedRoute struct {
	id          uuid.UUID
	driverID    uuid.UUID
	vehicleID   uuid.UUID
	name        string
	description string

	pickup         domain.Location
	dropoff        domain.Location
	pickupRadiusM  int
	dropoffRadiusM int
	distanceM      float64

	departureTime  string
	dates          []string
	pricePerSeat   int64
	totalSeats     int
	availableSeats int
	status         RouteStatus

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// Snapshot is the flat persistence form of a FixedRoute.
type Snapshot struct {
	ID             uuid.UUID
	DriverID       uuid.UUID
	VehicleID      uuid.UUID
	Name           string
	Description    string
	Pickup         domain.Location
	Dropoff        domain.Location
	PickupRadiusM  int
	DropoffRadiusM int
	DistanceM      float64
	DepartureTime  string
	Dates          []string
	PricePerSeat   int64
	TotalSeats     int
	AvailableSeats int
	Status         RouteStatus
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateParams carries the inputs for NewFixedRoute. Zero radii fall back to DefaultRadiusMeters.
type CreateParams struct {
	DriverID       uuid.UUID
	VehicleID      uuid.UUID
	Name           string
	Description    string
	Pickup         domain.Location
	Dropoff        domain.Location
	PickupRadiusM  int
	DropoffRadiusM int
	DepartureTime  string
	Dates          []string
	PricePerSeat   int64
	TotalSeats     int
}

// NewFixedRoute creates an active route with every seat available.
func NewFixedRoute(p CreateParams, now time.Time) (*FixedRoute, error) {
	if p.DriverID == uuid.Nil {
		return nil, domain.NewValidationError("driver ID is required")
	}
	if p.VehicleID == uuid.Nil {
		return nil, domain.NewValidationError("vehicle ID is required")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, domain.NewValidationError("route name is required")
	}
	if err := p.Pickup.Validate("pickup"); err != nil {
		return nil, err
	}
	if err := p.Dropoff.Validate("dropoff"); err != nil {
		return nil, err
	}
	if err := validateDepartureTime(p.DepartureTime); err != nil {
		return nil, err
	}
	dates, err := normalizeDates(p.Dates)
	if err != nil {
		return nil, err
	}
	if p.PricePerSeat < 0 {
		return nil, domain.NewValidationError("price per seat cannot be negative")
	}
	if p.TotalSeats <= 0 {
		return nil, domain.NewValidationError("total seats must be positive")
	}
	pickupRadius, err := radiusOrDefault(p.PickupRadiusM, "pickup")
	if err != nil {
		return nil, err
	}
	dropoffRadius, err := radiusOrDefault(p.DropoffRadiusM, "dropoff")
	if err != nil {
		return nil, err
	}

	return &FixedRoute{
		id:             uuid.New(),
		driverID:       p.DriverID,
		vehicleID:      p.VehicleID,
		name:           name,
		description:    p.Description,
		pickup:         p.Pickup,
		dropoff:        p.Dropoff,
		pickupRadiusM:  pickupRadius,
		dropoffRadiusM: dropoffRadius,
		distanceM:      domain.HaversineMeters(p.Pickup.Point, p.Dropoff.Point),
		departureTime:  p.DepartureTime,
		dates:          dates,
		pricePerSeat:   p.PricePerSeat,
		totalSeats:     p.TotalSeats,
		availableSeats: p.TotalSeats,
		status:         StatusActive,
		version:        1,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

// Reconstruct rebuilds a FixedRoute from persistence data (no validation).
func Reconstruct(s Snapshot) *FixedRoute {
	return &FixedRoute{
		id:             s.ID,
		driverID:       s.DriverID,
		vehicleID:      s.VehicleID,
		name:           s.Name,
		description:    s.Description,
		pickup:         s.Pickup,
		dropoff:        s.Dropoff,
		pickupRadiusM:  s.PickupRadiusM,
		dropoffRadiusM: s.DropoffRadiusM,
		distanceM:      s.DistanceM,
		departureTime:  s.DepartureTime,
		dates:          append([]string(nil), s.Dates...),
		pricePerSeat:   s.PricePerSeat,
		totalSeats:     s.TotalSeats,
		availableSeats: s.AvailableSeats,
		status:         s.Status,
		version:        s.Version,
		createdAt:      s.CreatedAt,
		updatedAt:      s.UpdatedAt,
	}
}

// Snapshot returns a copy of the route's state.
func (r *FixedRoute) Snapshot() Snapshot {
	return Snapshot{
		ID:             r.id,
		DriverID:       r.driverID,
		VehicleID:      r.vehicleID,
		Name:           r.name,
		Description:    r.description,
		Pickup:         r.pickup,
		Dropoff:        r.dropoff,
		PickupRadiusM:  r.pickupRadiusM,
		DropoffRadiusM: r.dropoffRadiusM,
		DistanceM:      r.distanceM,
		DepartureTime:  r.departureTime,
		Dates:          append([]string(nil), r.dates...),
		PricePerSeat:   r.pricePerSeat,
		TotalSeats:     r.totalSeats,
		AvailableSeats: r.availableSeats,
		Status:         r.status,
		Version:        r.version,
		CreatedAt:      r.createdAt,
		UpdatedAt:      r.updatedAt,
	}
}

// --- Getters ---

func (r *FixedRoute) ID() uuid.UUID { return r.id }
func (r *FixedRoute) DriverID() uuid.UUID { return r.driverID }
func (r *FixedRoute) VehicleID() uuid.UUID { return r.vehicleID }
func (r *FixedRoute) Name() string { return r.name }
func (r *FixedRoute) Description() string { return r.description }
func (r *FixedRoute) Pickup() domain.Location { return r.pickup }
func (r *FixedRoute) Dropoff() domain.Location { return r.dropoff }
func (r *FixedRoute) PickupRadiusM() int { return r.pickupRadiusM }
func (r *FixedRoute) DropoffRadiusM() int { return r.dropoffRadiusM }
func (r *FixedRoute) DistanceM() float64 { return r.distanceM }
func (r *FixedRoute) DepartureTime() string { return r.departureTime }
func (r *FixedRoute) Dates() []string { return append([]string(nil), r.dates...) }
func (r *FixedRoute) PricePerSeat() int64 { return r.pricePerSeat }
func (r *FixedRoute) TotalSeats() int { return r.totalSeats }
func (r *FixedRoute) AvailableSeats() int { return r.availableSeats }
func (r *FixedRoute) Status() RouteStatus { return r.status }
func (r *FixedRoute) Version() int64 { return r.version }
func (r *FixedRoute) CreatedAt() time.Time { return r.createdAt }
func (r *FixedRoute) UpdatedAt() time.Time { return r.updatedAt }

// IsOwnedBy reports whether driverID owns the route.
func (r *FixedRoute) IsOwnedBy(driverID uuid.UUID) bool { return r.driverID == driverID }

// --- Seat Inventory ---

// IsAvailableOn is true iff the route runs on date and is active.
func (r *FixedRoute) IsAvailableOn(date string) bool {
	if r.status != StatusActive {
		return false
	}
	i := sort.SearchStrings(r.dates, date)
	return i < len(r.dates) && r.dates[i] == date
}

// HasSeats reports whether count seats can be reserved.
func (r *FixedRoute) HasSeats(count int) bool {
	return count > 0 && r.availableSeats >= count
}

// ReserveSeats takes count seats, never going below zero. Callers check HasSeats first.
func (r *FixedRoute) ReserveSeats(count int, now time.Time) {
	r.availableSeats -= count
	if r.availableSeats < 0 {
		r.availableSeats = 0
	}
	r.updatedAt = now
}

// ReleaseSeats returns count seats, never exceeding totalSeats.
func (r *FixedRoute) ReleaseSeats(count int, now time.Time) {
	r.availableSeats += count
	if r.availableSeats > r.totalSeats {
		r.availableSeats = r.totalSeats
	}
	r.updatedAt = now
}

// UpdateTotalSeats changes capacity and shifts available seats by the same delta, clamped at zero.
func (r *FixedRoute) UpdateTotalSeats(total int, now time.Time) error {
	if total <= 0 {
		return domain.NewValidationError("total seats must be positive")
	}
	if r.status.IsTerminal() {
		return domain.NewInvalidStateError(string(r.status), "update route")
	}
	delta := total - r.totalSeats
	r.totalSeats = total
	r.availableSeats += delta
	if r.availableSeats < 0 {
		r.availableSeats = 0
	}
	if r.availableSeats > r.totalSeats {
		r.availableSeats = r.totalSeats
	}
	r.updatedAt = now
	return nil
}

// --- Geometry ---

// PickupDistanceM is the distance in metres from p to the route's pickup point.
func (r *FixedRoute) PickupDistanceM(p domain.GeoPoint) float64 {
	return domain.HaversineMeters(r.pickup.Point, p)
}

// DropoffDistanceM is the distance in metres from p to the route's dropoff point.
func (r *FixedRoute) DropoffDistanceM(p domain.GeoPoint) float64 {
	return domain.HaversineMeters(r.dropoff.Point, p)
}

// --- Mutations ---

// UpdateParams holds optional changes. Nil fields are left untouched.
type UpdateParams struct {
	Name           *string
	Description    *string
	DepartureTime  *string
	Dates          []string
	PricePerSeat   *int64
	TotalSeats     *int
	PickupRadiusM  *int
	DropoffRadiusM *int
}

// Update applies the non-nil fields of p.
func (r *FixedRoute) Update(p UpdateParams, now time.Time) error {
	if r.status.IsTerminal() {
		return domain.NewInvalidStateError(string(r.status), "update route")
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return domain.NewValidationError("route name is required")
		}
		r.name = name
	}
	if p.Description != nil {
		r.description = *p.Description
	}
	if p.DepartureTime != nil {
		if err := validateDepartureTime(*p.DepartureTime); err != nil {
			return err
		}
		r.departureTime = *p.DepartureTime
	}
	if p.Dates != nil {
		dates, err := normalizeDates(p.Dates)
		if err != nil {
			return err
		}
		r.dates = dates
	}
	if p.PricePerSeat != nil {
		if *p.PricePerSeat < 0 {
			return domain.NewValidationError("price per seat cannot be negative")
		}
		r.pricePerSeat = *p.PricePerSeat
	}
	if p.PickupRadiusM != nil {
		if *p.PickupRadiusM <= 0 {
			return domain.NewValidationError("pickup radius must be positive")
		}
		r.pickupRadiusM = *p.PickupRadiusM
	}
	if p.DropoffRadiusM != nil {
		if *p.DropoffRadiusM <= 0 {
			return domain.NewValidationError("dropoff radius must be positive")
		}
		r.dropoffRadiusM = *p.DropoffRadiusM
	}
	if p.TotalSeats != nil {
		if err := r.UpdateTotalSeats(*p.TotalSeats, now); err != nil {
			return err
		}
	}
	r.updatedAt = now
	return nil
}

// ChangeStatus moves the route to target.
func (r *FixedRoute) ChangeStatus(target RouteStatus, now time.Time) error {
	if !r.status.CanTransitionTo(target) {
		return domain.NewInvalidStateError(string(r.status), "move route to "+string(target))
	}
	r.status = target
	r.updatedAt = now
	return nil
}

// Cancel soft-deletes the route. Cancelling a cancelled route is a no-op.
func (r *FixedRoute) Cancel(now time.Time) error {
	if r.status == StatusCancelled {
		return nil
	}
	return r.ChangeStatus(StatusCancelled, now)
}

// IncrementVersion bumps the optimistic locking version.
func (r *FixedRoute) IncrementVersion() {
	r.version++
}

func validateDepartureTime(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return domain.NewValidationError(fmt.Sprintf("departure time must be HH:MM, got %q", s))
	}
	return nil
}

func normalizeDates(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, domain.NewValidationError("at least one date is required")
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, d := range in {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", d))
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func radiusOrDefault(v int, field string) (int, error) {
	if v == 0 {
		return DefaultRadiusMeters, nil
	}
	if v < 0 {
		return 0, domain.NewValidationError(field + " radius cannot be negative")
	}
	return v, nil
}
