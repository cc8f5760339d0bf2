package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a lifecycle event.
type Type string

const (
	TypeReserved    Type = "appointment.reserved"
	TypeConfirmed   Type = "appointment.confirmed"
	TypeCancelled   Type = "appointment.cancelled"
	TypeRescheduled Type = "appointment.rescheduled"
	TypeCompleted   Type = "appointment.completed"
	TypeExpired     Type = "appointment.expired"
)

func (t Type) Valid() bool {
	switch t {
	case TypeReserved, TypeConfirmed, TypeCancelled, TypeRescheduled, TypeCompleted, TypeExpired:
		return true
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Event is what the lifecycle hands to the notification side. Attributes
// carry optional context such as the new slot or a cancellation reason.
type Event struct {
	ID            uuid.UUID         `json:"id"`
	Type          Type              `json:"event_type"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	CitizenID     uuid.UUID         `json:"citizen_id"`
	ServiceID     uuid.UUID         `json:"service_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

func New(t Type, appointmentID, citizenID, serviceID uuid.UUID, at time.Time, attrs map[string]string) Event {
	return Event{
		ID:            uuid.New(),
		Type:          t,
		AppointmentID: appointmentID,
		CitizenID:     citizenID,
		ServiceID:     serviceID,
		Timestamp:     at.UTC(),
		Attributes:    attrs,
	}
}

// Sink receives lifecycle events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// Fanout publishes to every sink and joins the failures.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t in publish order.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
