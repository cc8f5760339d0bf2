package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/citizen-appointments/internal/catalog"
	"github.com/hackgods/citizen-appointments/internal/config"
	"github.com/hackgods/citizen-appointments/internal/events"
	"github.com/hackgods/citizen-appointments/internal/observability"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	expiryBatch      = 200
)

type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	alloc    *Allocator
	sink     events.Sink
	metrics  *observability.Metrics
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	loc      *time.Location
	horizon  int
	staleTTL time.Duration
}

type Option func(*Service)

// WithClock replaces time.Now. Tests pin the calendar with it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, cat *catalog.Catalog, sink events.Sink, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		catalog:  cat,
		sink:     sink,
		logger:   zerolog.Nop(),
		tracer:   otel.Tracer("github.com/hackgods/citizen-appointments/internal/appointment"),
		now:      time.Now,
		loc:      cfg.Location,
		horizon:  cfg.BookingHorizon,
		staleTTL: cfg.StalePendingTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = events.Discard{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	s.logger = s.logger.With().Str("component", "appointment").Logger()
	s.alloc = NewAllocator(cat, repo, s.loc, s.horizon, s.now)
	return s
}

// Allocator exposes the slot allocator the service books through.
func (s *Service) Allocator() *Allocator {
	return s.alloc
}

// ListAvailableSlots returns the free slots of a service day.
func (s *Service) ListAvailableSlots(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.ListAvailableSlots", trace.WithAttributes(
		attribute.String("service.id", serviceID.String()),
		attribute.String("appointment.date", FormatDate(date)),
	))
	defer span.End()

	slots, err := s.alloc.ListAvailableSlots(ctx, serviceID, date)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("slots.available", len(slots)))
	return slots, nil
}

// ReserveSlot books a slot for a citizen. Citizens book for themselves;
// officers and admins book on behalf of the citizen named in the request.
func (s *Service) ReserveSlot(ctx context.Context, req ReserveRequest, actor Actor) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.ReserveSlot", trace.WithAttributes(
		attribute.String("service.id", req.ServiceID.String()),
		attribute.String("appointment.date", FormatDate(req.Date)),
		attribute.String("appointment.time_slot", req.TimeSlot),
		attribute.String("actor.role", string(actor.Role)),
	))
	defer span.End()

	appt, err := s.reserve(ctx, req, actor)
	s.metrics.ObserveReservation(outcome(err))
	if err != nil {
		recordError(span, err)
		s.logger.Debug().Err(err).
			Str("service_id", req.ServiceID.String()).
			Str("date", FormatDate(req.Date)).
			Str("time_slot", req.TimeSlot).
			Msg("reservation rejected")
		return nil, err
	}

	span.SetAttributes(attribute.String("appointment.id", appt.ID.String()))
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("service_id", appt.ServiceID.String()).
		Str("date", appt.DateKey()).
		Str("time_slot", appt.TimeSlot).
		Msg("slot reserved")
	s.emit(ctx, events.TypeReserved, appt, map[string]string{
		"date":      appt.DateKey(),
		"time_slot": appt.TimeSlot,
	})
	return appt, nil
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest, actor Actor) (*Appointment, error) {
	switch {
	case actor.Role == RoleCitizen:
		if req.CitizenID != uuid.Nil && req.CitizenID != actor.ID {
			return nil, fmt.Errorf("%w: citizens book only for themselves", ErrActorNotPermitted)
		}
		req.CitizenID = actor.ID
	case actor.IsStaff():
		if req.CitizenID == uuid.Nil {
			return nil, fmt.Errorf("%w: citizen id is required for assisted booking", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: role %q cannot book", ErrActorNotPermitted, actor.Role)
	}
	return s.alloc.ReserveSlot(ctx, req)
}

// Confirm moves a pending appointment to confirmed and assigns its queue
// number in the same store operation.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	ctx, span := s.startTransition(ctx, EventConfirm, id, actor)
	defer span.End()

	updated, err := s.confirm(ctx, id, actor)
	return s.finish(ctx, span, EventConfirm, updated, err)
}

func (s *Service) confirm(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}
	if _, err := Authorize(appt, EventConfirm, actor); err != nil {
		return nil, err
	}
	avg, err := s.avgMinutes(ctx, appt.ServiceID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Confirm(ctx, ConfirmParams{
		ID:         appt.ID,
		OfficerID:  actor.ID,
		At:         s.now(),
		AvgMinutes: avg,
	})
	if err != nil {
		return nil, s.writeError(appt, EventConfirm, actor, err)
	}
	return updated, nil
}

// Cancel releases the slot. Cancelling a confirmed appointment renumbers
// the rest of that day's queue.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor) (*Appointment, error) {
	ctx, span := s.startTransition(ctx, EventCancel, id, actor)
	defer span.End()

	updated, err := s.cancel(ctx, id, reason, actor, EventCancel)
	return s.finish(ctx, span, EventCancel, updated, err)
}

func (s *Service) cancel(ctx context.Context, id uuid.UUID, reason string, actor Actor, ev Event) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}
	if _, err := Authorize(appt, ev, actor); err != nil {
		return nil, err
	}
	// only a queued appointment renumbers its day
	avg := 0
	if appt.Status.Queued() {
		if avg, err = s.avgMinutes(ctx, appt.ServiceID); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.Cancel(ctx, CancelParams{
		ID:         appt.ID,
		From:       appt.Status,
		Reason:     reason,
		At:         s.now(),
		AvgMinutes: avg,
	})
	if err != nil {
		return nil, s.writeError(appt, ev, actor, err)
	}
	return updated, nil
}

// Complete closes a confirmed appointment whose day has arrived.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	ctx, span := s.startTransition(ctx, EventComplete, id, actor)
	defer span.End()

	updated, err := s.complete(ctx, id, actor)
	return s.finish(ctx, span, EventComplete, updated, err)
}

func (s *Service) complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}
	if _, err := Authorize(appt, EventComplete, actor); err != nil {
		return nil, err
	}
	if appt.Date.After(s.alloc.Today()) {
		return nil, &TransitionError{From: appt.Status, Event: EventComplete, Role: actor.Role, Reason: "appointment date is in the future"}
	}

	updated, err := s.repo.Complete(ctx, CompleteParams{
		ID:        appt.ID,
		OfficerID: actor.ID,
		At:        s.now(),
	})
	if err != nil {
		return nil, s.writeError(appt, EventComplete, actor, err)
	}
	return updated, nil
}

// RescheduleRequest names the new slot for an existing appointment.
type RescheduleRequest struct {
	Date     time.Time
	TimeSlot string
	Reason   string
}

// Reschedule moves an appointment to a new slot of the same service. The
// new slot is claimed before the old one is released; on failure the
// appointment is left untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest, actor Actor) (*Appointment, error) {
	ctx, span := s.startTransition(ctx, EventReschedule, id, actor)
	defer span.End()
	span.SetAttributes(
		attribute.String("appointment.new_date", FormatDate(req.Date)),
		attribute.String("appointment.new_time_slot", req.TimeSlot),
	)

	updated, err := s.reschedule(ctx, id, req, actor)
	return s.finish(ctx, span, EventReschedule, updated, err)
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest, actor Actor) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}
	if _, err := Authorize(appt, EventReschedule, actor); err != nil {
		return nil, err
	}
	if _, err := catalog.ParseClock(req.TimeSlot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	date := Day(req.Date, nil)
	if err := s.alloc.CheckDate(date, req.TimeSlot); err != nil {
		return nil, err
	}
	svc, err := s.alloc.service(ctx, appt.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := s.alloc.checkFree(ctx, svc, date, req.TimeSlot); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.repo.Reschedule(ctx, RescheduleParams{
		ID:          appt.ID,
		From:        appt.Status,
		NewDate:     date,
		NewTimeSlot: req.TimeSlot,
		Entry: RescheduleEntry{
			OldDate:     appt.Date,
			OldTimeSlot: appt.TimeSlot,
			NewDate:     date,
			NewTimeSlot: req.TimeSlot,
			Reason:      req.Reason,
			ActorID:     actor.ID,
			ActorRole:   actor.Role,
			At:          now,
		},
		At:         now,
		AvgMinutes: svc.AverageMinutes(),
	})
	if err != nil {
		return nil, s.writeError(appt, EventReschedule, actor, err)
	}
	return updated, nil
}

// ExpireStalePending cancels pending appointments nobody confirmed within
// the configured TTL and returns how many were expired.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "appointment.ExpireStalePending")
	defer span.End()

	cutoff := s.now().Add(-s.staleTTL)
	candidates, err := s.repo.ListStalePending(ctx, cutoff, expiryBatch)
	if err != nil {
		recordError(span, err)
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	reason := "not confirmed within " + s.staleTTL.String()
	for _, appt := range candidates {
		updated, err := s.cancel(ctx, appt.ID, reason, SystemActor, EventExpire)
		s.metrics.ObserveTransition(string(EventExpire), outcome(err))
		if err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				s.logger.Debug().Str("appointment_id", appt.ID.String()).Msg("appointment moved on before expiry")
				continue
			}
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to expire appointment")
			continue
		}
		expired++
		s.emit(ctx, events.TypeExpired, updated, map[string]string{"reason": reason})
	}

	span.SetAttributes(attribute.Int("appointments.expired", expired))
	return expired, nil
}

// GetAppointment returns one appointment if actor may see it.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.loadError(err)
	}
	if !CanView(appt, actor) {
		return nil, fmt.Errorf("%w: appointment belongs to another citizen", ErrActorNotPermitted)
	}
	return appt, nil
}

// ListCitizenAppointments pages through a citizen's appointments, newest
// day first.
func (s *Service) ListCitizenAppointments(ctx context.Context, citizenID uuid.UUID, limit, offset int, actor Actor) ([]Appointment, error) {
	if actor.Role == RoleCitizen && actor.ID != citizenID {
		return nil, fmt.Errorf("%w: citizens list only their own appointments", ErrActorNotPermitted)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	list, err := s.repo.ListByCitizen(ctx, citizenID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list citizen appointments: %w", err)
	}
	return list, nil
}

// DayQueue is the officer view of one service day.
func (s *Service) DayQueue(ctx context.Context, serviceID uuid.UUID, date time.Time, actor Actor) ([]Appointment, error) {
	if !actor.IsStaff() {
		return nil, fmt.Errorf("%w: only officers see the queue", ErrActorNotPermitted)
	}
	if _, err := s.catalog.Definition(ctx, serviceID); err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	list, err := s.repo.ListByDay(ctx, serviceID, Day(date, nil))
	if err != nil {
		return nil, fmt.Errorf("list day queue: %w", err)
	}
	return list, nil
}

func (s *Service) startTransition(ctx context.Context, ev Event, id uuid.UUID, actor Actor) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "appointment."+string(ev), trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
		attribute.String("actor.role", string(actor.Role)),
	))
}

var transitionEvents = map[Event]events.Type{
	EventConfirm:    events.TypeConfirmed,
	EventCancel:     events.TypeCancelled,
	EventReschedule: events.TypeRescheduled,
	EventComplete:   events.TypeCompleted,
}

func (s *Service) finish(ctx context.Context, span trace.Span, ev Event, appt *Appointment, err error) (*Appointment, error) {
	s.metrics.ObserveTransition(string(ev), outcome(err))
	if err != nil {
		recordError(span, err)
		s.logger.Debug().Err(err).Str("event", string(ev)).Msg("transition rejected")
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("event", string(ev)).
		Str("status", string(appt.Status)).
		Msg("appointment transitioned")
	s.emit(ctx, transitionEvents[ev], appt, transitionAttributes(ev, appt))
	return appt, nil
}

func transitionAttributes(ev Event, appt *Appointment) map[string]string {
	attrs := map[string]string{
		"date":      appt.DateKey(),
		"time_slot": appt.TimeSlot,
	}
	switch ev {
	case EventConfirm:
		if appt.QueueNumber != nil {
			attrs["queue_number"] = strconv.Itoa(*appt.QueueNumber)
		}
		if appt.EstimatedWait != nil {
			attrs["estimated_wait_minutes"] = strconv.Itoa(*appt.EstimatedWait)
		}
	case EventCancel:
		if appt.CancellationReason != nil {
			attrs["reason"] = *appt.CancellationReason
		}
	case EventReschedule:
		if n := len(appt.RescheduleHistory); n > 0 {
			last := appt.RescheduleHistory[n-1]
			attrs["old_date"] = FormatDate(last.OldDate)
			attrs["old_time_slot"] = last.OldTimeSlot
			attrs["reason"] = last.Reason
		}
	}
	return attrs
}

// emit hands an event to the sink. Delivery problems never fail the
// operation that already committed.
func (s *Service) emit(ctx context.Context, t events.Type, appt *Appointment, attrs map[string]string) {
	ev := events.New(t, appt.ID, appt.CitizenID, appt.ServiceID, s.now(), attrs)
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", string(t)).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to publish lifecycle event")
	}
}

func (s *Service) avgMinutes(ctx context.Context, serviceID uuid.UUID) (int, error) {
	svc, err := s.catalog.Definition(ctx, serviceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return 0, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return 0, err
	}
	return svc.AverageMinutes(), nil
}

func (s *Service) loadError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("load appointment: %w", err)
}

// writeError maps store conflicts onto the domain taxonomy.
func (s *Service) writeError(appt *Appointment, ev Event, actor Actor, err error) error {
	switch {
	case errors.Is(err, ErrStatusConflict):
		return &TransitionError{From: appt.Status, Event: ev, Role: actor.Role, Reason: "appointment changed concurrently"}
	case errors.Is(err, ErrSlotTaken):
		return fmt.Errorf("%w: slot was taken concurrently", ErrSlotUnavailable)
	case errors.Is(err, ErrNotFound):
		return err
	}
	return fmt.Errorf("%s appointment: %w", ev, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrActorNotPermitted):
		return "forbidden"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "error"
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
