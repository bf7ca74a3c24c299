package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity ID cannot be found in the store.
var ErrNotFound = errors.New("entity not found")

// ErrAlreadyExists is returned when creating an entity whose ID is taken.
var ErrAlreadyExists = errors.New("entity already exists")

// ErrConcurrencyConflict is returned when the stored status changed between
// read and conditional write, or did not match the caller's expectation.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrInvalidTransition matches any *InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrGuardFailed matches any *GuardError via errors.Is.
var ErrGuardFailed = errors.New("guard failed")

// Reason is the structured cause of a denied transition.
type Reason string

const (
	ReasonMissingPrecondition  Reason = "missing_precondition"
	ReasonWrongActorRole       Reason = "wrong_actor_role"
	ReasonAlreadyInTargetState Reason = "already_in_target_state"
	ReasonTerminalState        Reason = "terminal_state"
)

// GuardError denies a transition for a structured Reason.
type GuardError struct {
	Reason  Reason
	Message string
}

// Deny builds a GuardError.
func Deny(reason Reason, format string, args ...any) *GuardError {
	return &GuardError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (e *GuardError) Error() string {
	if e.Message == "" {
		return "guard failed: " + string(e.Reason)
	}
	return fmt.Sprintf("guard failed (%s): %s", e.Reason, e.Message)
}

// Is makes errors.Is(err, ErrGuardFailed) true for every GuardError.
func (e *GuardError) Is(target error) bool {
	return target == ErrGuardFailed
}

// InvalidTransitionError reports that no rule exists for the requested edge.
type InvalidTransitionError struct {
	Kind Kind
	From State
	To   State

	// Reason is optional context (TerminalState, AlreadyInTargetState).
	Reason Reason
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition for %s: %s -> %s", e.Kind, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + string(e.Reason) + ")"
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidTransition) true for every InvalidTransitionError.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CascadeError records a failed follow-up write. The transition itself stays applied.
type CascadeError struct {
	Kind     Kind
	EntityID string
	From     State
	To       State
	Cause    error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("cascade %s %s (%s -> %s): %v", e.Kind, e.EntityID, e.From, e.To, e.Cause)
}

func (e *CascadeError) Unwrap() error {
	return e.Cause
}

// DispatchError records a notification that could not be delivered.
type DispatchError struct {
	Job   NotificationJob
	Cause error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %s via %s: %v", e.Job.SourceID, e.Job.RecipientID, e.Job.Channel, e.Cause)
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// ReasonOf extracts the structured reason carried by err, if any.
func ReasonOf(err error) Reason {
	var ge *GuardError
	if errors.As(err, &ge) {
		return ge.Reason
	}
	var ite *InvalidTransitionError
	if errors.As(err, &ite) {
		return ite.Reason
	}
	return ""
}
