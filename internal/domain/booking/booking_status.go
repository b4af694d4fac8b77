package booking

import "fmt"

// BookingStatus represents the current state of a route booking in its lifecycle.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusAccepted   BookingStatus = "accepted"
	StatusRejected   BookingStatus = "rejected"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusExpired    BookingStatus = "expired"
)

// Event drives a booking transition.
type Event string

const (
	EventAccept        Event = "accept"
	EventReject        Event = "reject"
	EventCancel        Event = "cancel"
	EventStart         Event = "start"
	EventComplete      Event = "complete"
	EventExpire        Event = "expire"
	EventRideCancelled Event = "ride_cancelled"
)

// transitions defines the state machine for booking status transitions.
var transitions = map[BookingStatus]map[Event]BookingStatus{
	StatusPending: {
		EventAccept: StatusAccepted,
		EventReject: StatusRejected,
		EventCancel: StatusCancelled,
		EventExpire: StatusExpired,
	},
	StatusAccepted: {
		EventStart:  StatusInProgress,
		EventCancel: StatusCancelled,
	},
	StatusInProgress: {
		EventComplete:      StatusCompleted,
		EventRideCancelled: StatusCancelled,
	},
	StatusRejected:  {},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

// Transition returns the status reached by applying ev to from.
func Transition(from BookingStatus, ev Event) (BookingStatus, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return "", newInvalidTransition(from, ev)
	}
	return next, nil
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := transitions[s]
	return exists
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// HoldsSeats reports whether a booking in this status has seats reserved on its route.
func (s BookingStatus) HoldsSeats() bool {
	return s == StatusAccepted || s == StatusInProgress
}

// String returns the string representation of the status.
func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus, returning an error if invalid.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}
