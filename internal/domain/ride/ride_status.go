package ride

import "fmt"

// RideStatus represents the current state of a ride in its lifecycle.
type RideStatus string

const (
	StatusPending       RideStatus = "pending"
	StatusWaiting       RideStatus = "waiting"
	StatusAccepted      RideStatus = "accepted"
	StatusDriverArrived RideStatus = "driver_arrived"
	StatusInProgress    RideStatus = "in_progress"
	StatusCompleted     RideStatus = "completed"
	StatusCancelled     RideStatus = "cancelled"
)

// Event drives a ride transition.
type Event string

const (
	EventCandidatesFound Event = "offer"
	EventAccept          Event = "accept"
	EventArrive          Event = "arrive"
	EventStart           Event = "start"
	EventComplete        Event = "complete"
	EventCancel          Event = "cancel"
	EventExpire          Event = "expire"
)

// transitions is the complete ride state machine.
var transitions = map[RideStatus]map[Event]RideStatus{
	StatusPending: {
		EventCandidatesFound: StatusWaiting,
		EventCancel:          StatusCancelled,
		EventExpire:          StatusCancelled,
	},
	StatusWaiting: {
		EventAccept: StatusAccepted,
		EventCancel: StatusCancelled,
		EventExpire: StatusCancelled,
	},
	StatusAccepted: {
		EventArrive: StatusDriverArrived,
		EventCancel: StatusCancelled,
	},
	StatusDriverArrived: {
		EventStart:  StatusInProgress,
		EventCancel: StatusCancelled,
	},
	StatusInProgress: {
		EventComplete: StatusCompleted,
		EventCancel:   StatusCancelled,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Transition returns the status reached by applying ev to from.
func Transition(from RideStatus, ev Event) (RideStatus, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return "", newInvalidTransition(from, ev)
	}
	return next, nil
}

// IsValid returns true if the status is a recognized ride status.
func (s RideStatus) IsValid() bool {
	_, exists := transitions[s]
	return exists
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s RideStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// HasDriver reports whether a driver is bound to the ride in this status.
func (s RideStatus) HasDriver() bool {
	switch s {
	case StatusAccepted, StatusDriverArrived, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func (s RideStatus) String() string {
	return string(s)
}

// ParseRideStatus converts a string to a RideStatus, returning an error if invalid.
func ParseRideStatus(s string) (RideStatus, error) {
	status := RideStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid ride status: %s", s)
	}
	return status, nil
}
