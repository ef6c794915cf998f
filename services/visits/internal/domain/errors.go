package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
)

// NotFoundError reports a missing entity by id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ValidationError reports malformed input for a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidStateTransitionError is returned when a command is not legal for
// the visit's current state.
type InvalidStateTransitionError struct {
	VisitID string
	Command Command
	State   VisitState
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s visit %s in state %s", e.Command, e.VisitID, e.State)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

func NewInvalidTransition(visitID string, cmd Command, state VisitState) error {
	return &InvalidStateTransitionError{VisitID: visitID, Command: cmd, State: state}
}
