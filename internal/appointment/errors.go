package appointment

import (
	"errors"
	"fmt"
)

// Domain errors surfaced to callers. Infrastructure failures are wrapped and
// never match any of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDate       = errors.New("invalid appointment date")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrActorNotPermitted = errors.New("actor not permitted")
	ErrInvalidInput      = errors.New("invalid input")
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrCitizenNotFound     = fmt.Errorf("citizen %w", ErrNotFound)
)

// Store-level conflicts. The service translates them into domain errors.
var (
	ErrSlotTaken      = errors.New("slot already held by a live appointment")
	ErrStatusConflict = errors.New("appointment status changed concurrently")
)

// TransitionError describes a rejected lifecycle event.
type TransitionError struct {
	From      AppointmentStatus
	Event     Event
	Role      Role
	Reason    string
	Forbidden bool
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s appointment in status %s", e.Event, e.From)
	if e.Role != "" {
		msg += " as " + string(e.Role)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is makes errors.Is match ErrInvalidTransition, or ErrActorNotPermitted
// when the role rather than the status was the problem.
func (e *TransitionError) Is(target error) bool {
	if e.Forbidden {
		return target == ErrActorNotPermitted
	}
	return target == ErrInvalidTransition
}
