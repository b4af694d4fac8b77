// Package memory provides in-process implementations of the dispatch
// repositories. Transactions are serialized and applied atomically on commit.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ridemate/service-dispatch/internal/domain"
	"github.com/ridemate/service-dispatch/internal/domain/booking"
	"github.com/ridemate/service-dispatch/internal/domain/ride"
	"github.com/ridemate/service-dispatch/internal/domain/route"
	"github.com/ridemate/service-dispatch/internal/repository"
)

type tables struct {
	rides    map[uuid.UUID]ride.Snapshot
	routes   map[uuid.UUID]route.Snapshot
	bookings map[uuid.UUID]booking.Snapshot
}

func (t *tables) clone() *tables {
	return &tables{
		rides:    maps.Clone(t.rides),
		routes:   maps.Clone(t.routes),
		bookings: maps.Clone(t.bookings),
	}
}

// Store is an in-memory UnitOfWork.
type Store struct {
	mu   sync.RWMutex
	data *tables
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: &tables{
		rides:    make(map[uuid.UUID]ride.Snapshot),
		routes:   make(map[uuid.UUID]route.Snapshot),
		bookings: make(map[uuid.UUID]booking.Snapshot),
	}}
}

// Do runs fn against a private copy of the tables and publishes it only if fn succeeds.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(ctx, reposFor(work, nil)); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Repositories returns repositories that read and write the committed tables directly.
func (s *Store) Repositories() repository.Repositories {
	return reposFor(nil, s)
}

// view resolves the tables a repository operates on. Inside a transaction it
// is the private copy; outside it is the committed state under the store lock.
type view struct {
	tx    *tables
	store *Store
}

func (v view) read(fn func(t *tables)) {
	if v.tx != nil {
		fn(v.tx)
		return
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.data)
}

func (v view) write(fn func(t *tables) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	work := v.store.data.clone()
	if err := fn(work); err != nil {
		return err
	}
	v.store.data = work
	return nil
}

func reposFor(tx *tables, store *Store) repository.Repositories {
	v := view{tx: tx, store: store}
	return repository.Repositories{
		Rides:    &rideRepo{v: v},
		Routes:   &routeRepo{v: v},
		Bookings: &bookingRepo{v: v},
	}
}

// --- rides ---

type rideRepo struct{ v view }

func (r *rideRepo) FindByID(_ context.Context, id uuid.UUID) (*ride.Ride, error) {
	var (
		s  ride.Snapshot
		ok bool
	)
	r.v.read(func(t *tables) { s, ok = t.rides[id] })
	if !ok {
		return nil, domain.NewNotFoundError("Ride", id.String())
	}
	return ride.Reconstruct(cloneRide(s)), nil
}

func (r *rideRepo) FindByPassengerID(_ context.Context, passengerID uuid.UUID, page, limit int) ([]*ride.Ride, int64, error) {
	rides := r.filter(func(s ride.Snapshot) bool { return s.PassengerID == passengerID })
	sortNewestFirst(rides, func(s ride.Snapshot) time.Time { return s.CreatedAt })
	out, total := paginate(rides, page, limit)
	return toRides(out), total, nil
}

func (r *rideRepo) FindByDriverID(_ context.Context, driverID uuid.UUID, page, limit int) ([]*ride.Ride, int64, error) {
	rides := r.filter(func(s ride.Snapshot) bool { return s.DriverID != nil && *s.DriverID == driverID })
	sortNewestFirst(rides, func(s ride.Snapshot) time.Time { return s.CreatedAt })
	out, total := paginate(rides, page, limit)
	return toRides(out), total, nil
}

func (r *rideRepo) FindByStatus(_ context.Context, status ride.RideStatus, limit int) ([]*ride.Ride, error) {
	rides := r.filter(func(s ride.Snapshot) bool { return s.Status == status })
	sortOldestFirst(rides, func(s ride.Snapshot) time.Time { return s.CreatedAt })
	return toRides(truncate(rides, limit)), nil
}

func (r *rideRepo) FindUnassignedBefore(_ context.Context, before time.Time, limit int) ([]*ride.Ride, error) {
	rides := r.filter(func(s ride.Snapshot) bool {
		return (s.Status == ride.StatusPending || s.Status == ride.StatusWaiting) && s.CreatedAt.Before(before)
	})
	sortOldestFirst(rides, func(s ride.Snapshot) time.Time { return s.CreatedAt })
	return toRides(truncate(rides, limit)), nil
}

func (r *rideRepo) Save(_ context.Context, rd *ride.Ride) error {
	s := cloneRide(rd.Snapshot())
	return r.v.write(func(t *tables) error {
		if _, exists := t.rides[s.ID]; exists {
			return domain.NewConflictError("ride already exists")
		}
		t.rides[s.ID] = s
		return nil
	})
}

func (r *rideRepo) Update(_ context.Context, rd *ride.Ride) error {
	s := cloneRide(rd.Snapshot())
	return r.v.write(func(t *tables) error {
		cur, ok := t.rides[s.ID]
		if !ok || cur.Version != s.Version-1 {
			return domain.NewConflictError("ride was modified by another transaction")
		}
		t.rides[s.ID] = s
		return nil
	})
}

func (r *rideRepo) filter(keep func(ride.Snapshot) bool) []ride.Snapshot {
	var out []ride.Snapshot
	r.v.read(func(t *tables) {
		for _, s := range t.rides {
			if keep(s) {
				out = append(out, s)
			}
		}
	})
	return out
}

func toRides(in []ride.Snapshot) []*ride.Ride {
	out := make([]*ride.Ride, len(in))
	for i, s := range in {
		out[i] = ride.Reconstruct(cloneRide(s))
	}
	return out
}

func cloneRide(s ride.Snapshot) ride.Snapshot {
	s.Offered = append(s.Offered[:0:0], s.Offered...)
	return s
}

// --- routes ---

type routeRepo struct{ v view }

func (r *routeRepo) FindByID(_ context.Context, id uuid.UUID) (*route.FixedRoute, error) {
	var (
		s  route.Snapshot
		ok bool
	)
	r.v.read(func(t *tables) { s, ok = t.routes[id] })
	if !ok {
		return nil, domain.NewNotFoundError("Route", id.String())
	}
	return route.Reconstruct(cloneRoute(s)), nil
}

func (r *routeRepo) FindByDriverID(_ context.Context, driverID uuid.UUID) ([]*route.FixedRoute, error) {
	return r.find(func(s route.Snapshot) bool {
		return s.DriverID == driverID && s.Status != route.StatusCancelled
	}), nil
}

func (r *routeRepo) FindActive(_ context.Context) ([]*route.FixedRoute, error) {
	return r.find(func(s route.Snapshot) bool { return s.Status == route.StatusActive }), nil
}

func (r *routeRepo) Save(_ context.Context, rt *route.FixedRoute) error {
	s := cloneRoute(rt.Snapshot())
	return r.v.write(func(t *tables) error {
		if _, exists := t.routes[s.ID]; exists {
			return domain.NewConflictError("route already exists")
		}
		t.routes[s.ID] = s
		return nil
	})
}

func (r *routeRepo) Update(_ context.Context, rt *route.FixedRoute) error {
	s := cloneRoute(rt.Snapshot())
	return r.v.write(func(t *tables) error {
		cur, ok := t.routes[s.ID]
		if !ok || cur.Version != s.Version-1 {
			return domain.NewConflictError("route was modified by another transaction")
		}
		t.routes[s.ID] = s
		return nil
	})
}

func (r *routeRepo) find(keep func(route.Snapshot) bool) []*route.FixedRoute {
	var snaps []route.Snapshot
	r.v.read(func(t *tables) {
		for _, s := range t.routes {
			if keep(s) {
				snaps = append(snaps, s)
			}
		}
	})
	sortNewestFirst(snaps, func(s route.Snapshot) time.Time { return s.CreatedAt })
	out := make([]*route.FixedRoute, len(snaps))
	for i, s := range snaps {
		out[i] = route.Reconstruct(cloneRoute(s))
	}
	return out
}

func cloneRoute(s route.Snapshot) route.Snapshot {
	s.Dates = append(s.Dates[:0:0], s.Dates...)
	return s
}

// --- bookings ---

type bookingRepo struct{ v view }

func (r *bookingRepo) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	var (
		s  booking.Snapshot
		ok bool
	)
	r.v.read(func(t *tables) { s, ok = t.bookings[id] })
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return booking.Reconstruct(s), nil
}

func (r *bookingRepo) FindByRideID(_ context.Context, rideID uuid.UUID) (*booking.Booking, error) {
	found := r.filter(func(s booking.Snapshot) bool { return s.RideID != nil && *s.RideID == rideID })
	if len(found) == 0 {
		return nil, domain.NewNotFoundError("Booking for ride", rideID.String())
	}
	return booking.Reconstruct(found[0]), nil
}

func (r *bookingRepo) FindByPassengerID(_ context.Context, passengerID uuid.UUID, page, limit int) ([]*booking.Booking, int64, error) {
	found := r.filter(func(s booking.Snapshot) bool { return s.PassengerID == passengerID })
	sortNewestFirst(found, func(s booking.Snapshot) time.Time { return s.CreatedAt })
	out, total := paginate(found, page, limit)
	return toBookings(out), total, nil
}

func (r *bookingRepo) FindByDriverID(_ context.Context, driverID uuid.UUID, status *booking.BookingStatus, page, limit int) ([]*booking.Booking, int64, error) {
	found := r.filter(func(s booking.Snapshot) bool {
		return s.DriverID == driverID && (status == nil || s.Status == *status)
	})
	sortNewestFirst(found, func(s booking.Snapshot) time.Time { return s.CreatedAt })
	out, total := paginate(found, page, limit)
	return toBookings(out), total, nil
}

func (r *bookingRepo) FindByRouteID(_ context.Context, routeID uuid.UUID) ([]*booking.Booking, error) {
	found := r.filter(func(s booking.Snapshot) bool { return s.RouteID == routeID })
	sortOldestFirst(found, func(s booking.Snapshot) time.Time { return s.CreatedAt })
	return toBookings(found), nil
}

func (r *bookingRepo) FindPendingBefore(_ context.Context, before time.Time, limit int) ([]*booking.Booking, error) {
	found := r.filter(func(s booking.Snapshot) bool {
		return s.Status == booking.StatusPending && s.CreatedAt.Before(before)
	})
	sortOldestFirst(found, func(s booking.Snapshot) time.Time { return s.CreatedAt })
	return toBookings(truncate(found, limit)), nil
}

func (r *bookingRepo) ExistsActive(_ context.Context, routeID, passengerID uuid.UUID, date string) (bool, error) {
	found := r.filter(func(s booking.Snapshot) bool {
		return s.RouteID == routeID && s.PassengerID == passengerID && s.Date == date && !s.Status.IsTerminal()
	})
	return len(found) > 0, nil
}

func (r *bookingRepo) Save(_ context.Context, b *booking.Booking) error {
	s := b.Snapshot()
	return r.v.write(func(t *tables) error {
		if _, exists := t.bookings[s.ID]; exists {
			return domain.NewConflictError("booking already exists")
		}
		for _, other := range t.bookings {
			if other.RouteID == s.RouteID && other.PassengerID == s.PassengerID &&
				other.Date == s.Date && !other.Status.IsTerminal() {
				return domain.NewPreconditionError("you already have a booking for this route on this date")
			}
		}
		t.bookings[s.ID] = s
		return nil
	})
}

func (r *bookingRepo) Update(_ context.Context, b *booking.Booking) error {
	s := b.Snapshot()
	return r.v.write(func(t *tables) error {
		cur, ok := t.bookings[s.ID]
		if !ok || cur.Version != s.Version-1 {
			return domain.NewConflictError("booking was modified by another transaction")
		}
		t.bookings[s.ID] = s
		return nil
	})
}

func (r *bookingRepo) filter(keep func(booking.Snapshot) bool) []booking.Snapshot {
	var out []booking.Snapshot
	r.v.read(func(t *tables) {
		for _, s := range t.bookings {
			if keep(s) {
				out = append(out, s)
			}
		}
	})
	return out
}

func toBookings(in []booking.Snapshot) []*booking.Booking {
	out := make([]*booking.Booking, len(in))
	for i, s := range in {
		out[i] = booking.Reconstruct(s)
	}
	return out
}

// --- helpers ---

func sortNewestFirst[T any](s []T, at func(T) time.Time) {
	sort.SliceStable(s, func(i, j int) bool { return at(s[i]).After(at(s[j])) })
}

func sortOldestFirst[T any](s []T, at func(T) time.Time) {
	sort.SliceStable(s, func(i, j int) bool { return at(s[i]).Before(at(s[j])) })
}

func paginate[T any](s []T, page, limit int) ([]T, int64) {
	total := int64(len(s))
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if limit <= 0 || start >= len(s) {
		return nil, total
	}
	end := start + limit
	if end > len(s) {
		end = len(s)
	}
	return s[start:end], total
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
