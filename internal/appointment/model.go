package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// Live reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Live() bool {
	return s != StatusCancelled
}

// Queued reports whether an appointment in this status carries a queue number.
func (s AppointmentStatus) Queued() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
	return st, nil
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ParsePriority maps "" to PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, s)
	}
	return p, nil
}

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleOfficer, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Actor is whoever triggers an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsStaff reports whether the actor acts on behalf of the department.
func (a Actor) IsStaff() bool {
	return a.Role == RoleOfficer || a.Role == RoleAdmin
}

// SystemActor is used by background sweeps.
var SystemActor = Actor{ID: uuid.Nil, Role: RoleSystem}

type RescheduleEntry struct {
	OldDate     time.Time
	OldTimeSlot string
	NewDate     time.Time
	NewTimeSlot string
	Reason      string
	ActorID     uuid.UUID
	ActorRole   Role
	At          time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	CitizenID          uuid.UUID
	ServiceID          uuid.UUID
	OfficerID          *uuid.UUID
	Date               time.Time // calendar day, midnight UTC
	TimeSlot           string    // "HH:MM"
	Status             AppointmentStatus
	Priority           Priority
	QueueNumber        *int
	EstimatedWait      *int // minutes
	Notes              string
	CancellationReason *string
	RescheduleHistory  []RescheduleEntry
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Clone returns a deep copy so stores never hand out shared state.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	c.OfficerID = cloneUUID(a.OfficerID)
	c.QueueNumber = cloneInt(a.QueueNumber)
	c.EstimatedWait = cloneInt(a.EstimatedWait)
	c.CancellationReason = cloneString(a.CancellationReason)
	c.ConfirmedAt = cloneTime(a.ConfirmedAt)
	c.CompletedAt = cloneTime(a.CompletedAt)
	c.CancelledAt = cloneTime(a.CancelledAt)
	c.RescheduleHistory = append([]RescheduleEntry(nil), a.RescheduleHistory...)
	return &c
}

// DateKey is the appointment day formatted as YYYY-MM-DD.
func (a *Appointment) DateKey() string {
	return FormatDate(a.Date)
}

const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD into midnight UTC of that calendar day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Day normalizes t to midnight UTC of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func cloneUUID(v *uuid.UUID) *uuid.UUID {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
