package route

import "fmt"

// RouteStatus represents the lifecycle state of a fixed route.
type RouteStatus string

const (
	StatusActive    RouteStatus = "active"
	StatusInactive  RouteStatus = "inactive"
	StatusCompleted RouteStatus = "completed"
	StatusCancelled RouteStatus = "cancelled"
)

var validTransitions = map[RouteStatus][]RouteStatus{
	StatusActive:    {StatusInactive, StatusCompleted, StatusCancelled},
	StatusInactive:  {StatusActive, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s RouteStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s RouteStatus) CanTransitionTo(target RouteStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s RouteStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s RouteStatus) String() string {
	return string(s)
}

// ParseRouteStatus converts a string to a RouteStatus, returning an error if invalid.
func ParseRouteStatus(s string) (RouteStatus, error) {
	status := RouteStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid route status: %s", s)
	}
	return status, nil
}
