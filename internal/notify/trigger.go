package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/citizen-appointments/internal/events"
)

// Notification is the citizen-facing message queued for delivery. Delivery
// channels and templating live outside this service.
type Notification struct {
	ID            uuid.UUID         `json:"id"`
	EventID       uuid.UUID         `json:"event_id"`
	EventType     events.Type       `json:"event_type"`
	CitizenID     uuid.UUID         `json:"citizen_id"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	Data          map[string]string `json:"data,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Enqueuer hands a notification to the delivery pipeline.
type Enqueuer interface {
	Enqueue(ctx context.Context, n Notification) error
}

// Trigger turns lifecycle events into notifications.
type Trigger struct {
	enqueuer Enqueuer
	logger   zerolog.Logger
	now      func() time.Time
}

func NewTrigger(enq Enqueuer, logger zerolog.Logger) *Trigger {
	if enq == nil {
		enq = NewLogEnqueuer(logger)
	}
	return &Trigger{
		enqueuer: enq,
		logger:   logger.With().Str("component", "notify").Logger(),
		now:      time.Now,
	}
}

// Handle builds the notification for ev and enqueues it. It has the shape of
// events.Handler so a stream consumer can drive it directly.
func (t *Trigger) Handle(ctx context.Context, ev events.Event) error {
	n, err := Build(ev, t.now())
	if err != nil {
		t.logger.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("skipping event")
		return nil
	}
	if err := t.enqueuer.Enqueue(ctx, n); err != nil {
		return fmt.Errorf("enqueue notification for %s: %w", ev.Type, err)
	}
	t.logger.Debug().
		Str("event_type", string(ev.Type)).
		Str("appointment_id", ev.AppointmentID.String()).
		Msg("notification enqueued")
	return nil
}

// Build renders the notification for one event.
func Build(ev events.Event, now time.Time) (Notification, error) {
	a := ev.Attributes
	when := strings.TrimSpace(a["date"] + " " + a["time_slot"])

	var subject, body string
	switch ev.Type {
	case events.TypeReserved:
		subject = "Appointment request received"
		body = fmt.Sprintf("Your appointment request for %s has been received and is awaiting confirmation.", when)
	case events.TypeConfirmed:
		subject = "Appointment confirmed"
		body = fmt.Sprintf("Your appointment on %s is confirmed.", when)
		if q := a["queue_number"]; q != "" {
			body += fmt.Sprintf(" Your queue number is %s", q)
			if w := a["estimated_wait_minutes"]; w != "" {
				body += fmt.Sprintf(" with an estimated wait of %s minutes", w)
			}
			body += "."
		}
	case events.TypeCancelled:
		subject = "Appointment cancelled"
		body = fmt.Sprintf("Your appointment on %s has been cancelled.", when)
		if r := a["reason"]; r != "" {
			body += " Reason: " + r
		}
	case events.TypeRescheduled:
		subject = "Appointment rescheduled"
		old := strings.TrimSpace(a["old_date"] + " " + a["old_time_slot"])
		body = fmt.Sprintf("Your appointment has moved from %s to %s and is awaiting confirmation.", old, when)
	case events.TypeCompleted:
		subject = "Appointment completed"
		body = fmt.Sprintf("Your appointment on %s is complete. Thank you for your visit.", when)
	case events.TypeExpired:
		subject = "Appointment request expired"
		body = fmt.Sprintf("Your appointment request for %s expired because it was not confirmed in time.", when)
	default:
		return Notification{}, fmt.Errorf("no notification for event type %q", ev.Type)
	}

	return Notification{
		ID:            uuid.New(),
		EventID:       ev.ID,
		EventType:     ev.Type,
		CitizenID:     ev.CitizenID,
		AppointmentID: ev.AppointmentID,
		Subject:       subject,
		Body:          body,
		Data:          a,
		CreatedAt:     now.UTC(),
	}, nil
}
