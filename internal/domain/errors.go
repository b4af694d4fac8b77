package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DomainError so transports can map it to a response.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindInvalidState ErrorKind = "INVALID_STATE_TRANSITION"
	KindPrecondition ErrorKind = "PRECONDITION_VIOLATION"
	KindOwnership    ErrorKind = "OWNERSHIP_VIOLATION"
	KindValidation   ErrorKind = "VALIDATION_ERROR"
	KindConflict     ErrorKind = "CONFLICT"
)

// DomainError is the error type returned by aggregates and application services.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any DomainError of the same kind when the target carries no message,
// so errors.Is(err, ErrNotFound) works for every not-found error.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound     = &DomainError{Kind: KindNotFound}
	ErrInvalidState = &DomainError{Kind: KindInvalidState}
	ErrPrecondition = &DomainError{Kind: KindPrecondition}
	ErrOwnership    = &DomainError{Kind: KindOwnership}
	ErrValidation   = &DomainError{Kind: KindValidation}
	ErrConflict     = &DomainError{Kind: KindConflict}
)

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewInvalidStateError reports an event that is not allowed from the current state.
func NewInvalidStateError(from, event string) *DomainError {
	return &DomainError{Kind: KindInvalidState, Message: fmt.Sprintf("cannot %s from status %s", event, from)}
}

func NewPreconditionError(msg string) *DomainError {
	return &DomainError{Kind: KindPrecondition, Message: msg}
}

func NewOwnershipError(msg string) *DomainError {
	return &DomainError{Kind: KindOwnership, Message: msg}
}

func NewValidationError(msg string) *DomainError {
	return &DomainError{Kind: KindValidation, Message: msg}
}

func NewConflictError(msg string) *DomainError {
	return &DomainError{Kind: KindConflict, Message: msg}
}

// KindOf extracts the ErrorKind from err, if err wraps a DomainError.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
