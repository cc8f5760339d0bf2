package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
// Implementations must make Insert and Reschedule atomic with respect to
// slot occupancy: at most one live appointment per (service, date, slot).
type Repository interface {
	// Insert stores a new pending appointment. ErrSlotTaken if the slot is
	// already held, ErrCitizenNotFound if the citizen is unknown.
	Insert(ctx context.Context, appt *Appointment) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// HeldSlots lists the time slots of live appointments for a service day.
	HeldSlots(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]string, error)

	// Lifecycle writes. Each applies only while the appointment is still in
	// the expected status; otherwise ErrStatusConflict.
	Confirm(ctx context.Context, p ConfirmParams) (*Appointment, error)
	Cancel(ctx context.Context, p CancelParams) (*Appointment, error)
	Complete(ctx context.Context, p CompleteParams) (*Appointment, error)
	Reschedule(ctx context.Context, p RescheduleParams) (*Appointment, error)

	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error)
	ListByCitizen(ctx context.Context, citizenID uuid.UUID, limit, offset int) ([]Appointment, error)
	// ListByDay returns live appointments of a service day, queued ones
	// first in queue order, then the rest by time slot.
	ListByDay(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]Appointment, error)
}

type ConfirmParams struct {
	ID         uuid.UUID
	OfficerID  uuid.UUID
	At         time.Time
	AvgMinutes int
}

type CancelParams struct {
	ID         uuid.UUID
	From       AppointmentStatus
	Reason     string
	At         time.Time
	AvgMinutes int
}

type CompleteParams struct {
	ID        uuid.UUID
	OfficerID uuid.UUID
	At        time.Time
}

type RescheduleParams struct {
	ID          uuid.UUID
	From        AppointmentStatus
	NewDate     time.Time
	NewTimeSlot string
	Entry       RescheduleEntry
	At          time.Time
	AvgMinutes  int
}
