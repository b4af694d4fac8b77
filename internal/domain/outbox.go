package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType tags a user notification so clients can route it.
type NotificationType string

const (
	NotificationMatchRequest   NotificationType = "MATCH_REQUEST"
	NotificationMatchAccepted  NotificationType = "MATCH_ACCEPTED"
	NotificationMatchCancelled NotificationType = "MATCH_CANCELLED"
	NotificationTripStarted    NotificationType = "TRIP_STARTED"
	NotificationRideCompleted  NotificationType = "RIDE_COMPLETED"
	NotificationNewRideRequest NotificationType = "NEW_RIDE_REQUEST"
)

// Notification is a one-way message to a single user.
type Notification struct {
	UserID      uuid.UUID        `json:"user_id"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Type        NotificationType `json:"type"`
	ReferenceID uuid.UUID        `json:"reference_id"`
}

// MatchEventType names a realtime ride event.
type MatchEventType string

const (
	MatchEventOffered   MatchEventType = "ride.offered"
	MatchEventAccepted  MatchEventType = "ride.accepted"
	MatchEventArrived   MatchEventType = "ride.driver_arrived"
	MatchEventStarted   MatchEventType = "ride.started"
	MatchEventCompleted MatchEventType = "ride.completed"
	MatchEventCancelled MatchEventType = "ride.cancelled"
)

// MatchEvent is fanned out to the devices listed in Recipients.
type MatchEvent struct {
	Type           MatchEventType `json:"type"`
	RideID         uuid.UUID      `json:"ride_id"`
	PassengerID    uuid.UUID      `json:"passenger_id"`
	DriverID       *uuid.UUID     `json:"driver_id,omitempty"`
	Status         string         `json:"status"`
	Recipients     []uuid.UUID    `json:"recipients"`
	Payload        any            `json:"payload,omitempty"`
	RatingEligible bool           `json:"rating_eligible,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// DriverLocation is a driver position broadcast.
type DriverLocation struct {
	DriverID   uuid.UUID  `json:"driver_id"`
	Point      GeoPoint   `json:"point"`
	Status     string     `json:"status"`
	RideID     *uuid.UUID `json:"ride_id,omitempty"`
	ReportedAt time.Time  `json:"reported_at"`
}

// Outbox collects side-channel messages produced by a transition. It is
// drained only after the transition has committed.
type Outbox struct {
	Notifications []Notification
	MatchEvents   []MatchEvent
	Locations     []DriverLocation
}

func (o *Outbox) Notify(n Notification) {
	o.Notifications = append(o.Notifications, n)
}

func (o *Outbox) PublishMatch(e MatchEvent) {
	o.MatchEvents = append(o.MatchEvents, e)
}

func (o *Outbox) PublishLocation(l DriverLocation) {
	o.Locations = append(o.Locations, l)
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	return len(o.Notifications) + len(o.MatchEvents) + len(o.Locations)
}
