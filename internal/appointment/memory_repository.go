package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type slotKey struct {
	service uuid.UUID
	date    string
	slot    string
}

func keyOf(a *Appointment) slotKey {
	return slotKey{service: a.ServiceID, date: a.DateKey(), slot: a.TimeSlot}
}

// MemoryRepository is a process-local Repository. A single mutex serializes
// writers, which gives the same slot and queue guarantees as the Postgres
// store inside one process.
type MemoryRepository struct {
	mu       sync.Mutex
	appts    map[uuid.UUID]*Appointment
	held     map[slotKey]uuid.UUID
	citizens map[uuid.UUID]struct{}
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appts: make(map[uuid.UUID]*Appointment),
		held:  make(map[slotKey]uuid.UUID),
	}
}

// RestrictCitizens makes Insert reject citizens outside ids, mirroring the
// foreign key of the SQL schema.
func (r *MemoryRepository) RestrictCitizens(ids ...uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.citizens = make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		r.citizens[id] = struct{}{}
	}
}

func (r *MemoryRepository) Insert(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.citizens != nil {
		if _, ok := r.citizens[appt.CitizenID]; !ok {
			return nil, ErrCitizenNotFound
		}
	}
	k := keyOf(appt)
	if _, taken := r.held[k]; taken {
		return nil, ErrSlotTaken
	}

	stored := appt.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	r.appts[stored.ID] = stored
	r.held[k] = stored.ID
	return stored.Clone(), nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) HeldSlots(_ context.Context, serviceID uuid.UUID, date time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := FormatDate(date)
	var out []string
	for k := range r.held {
		if k.service == serviceID && k.date == day {
			out = append(out, k.slot)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) Confirm(_ context.Context, p ConfirmParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.expect(p.ID, StatusPending)
	if err != nil {
		return nil, err
	}
	if r.held[keyOf(a)] != a.ID {
		return nil, ErrStatusConflict
	}
	officer := p.OfficerID
	at := p.At
	a.Status = StatusConfirmed
	a.OfficerID = &officer
	a.ConfirmedAt = &at
	a.UpdatedAt = at
	r.rerank(a.ServiceID, a.DateKey(), p.AvgMinutes, at)
	return a.Clone(), nil
}

func (r *MemoryRepository) Cancel(_ context.Context, p CancelParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.expect(p.ID, p.From)
	if err != nil {
		return nil, err
	}
	wasQueued := a.Status.Queued()
	reason := p.Reason
	at := p.At
	delete(r.held, keyOf(a))
	a.Status = StatusCancelled
	a.CancellationReason = &reason
	a.CancelledAt = &at
	a.UpdatedAt = at
	a.QueueNumber, a.EstimatedWait = nil, nil
	if wasQueued {
		r.rerank(a.ServiceID, a.DateKey(), p.AvgMinutes, at)
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) Complete(_ context.Context, p CompleteParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.expect(p.ID, StatusConfirmed)
	if err != nil {
		return nil, err
	}
	officer := p.OfficerID
	at := p.At
	a.Status = StatusCompleted
	a.OfficerID = &officer
	a.CompletedAt = &at
	a.UpdatedAt = at
	return a.Clone(), nil
}

func (r *MemoryRepository) Reschedule(_ context.Context, p RescheduleParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, err := r.expect(p.ID, p.From)
	if err != nil {
		return nil, err
	}
	oldKey := keyOf(a)
	newKey := slotKey{service: a.ServiceID, date: FormatDate(p.NewDate), slot: p.NewTimeSlot}
	if holder, taken := r.held[newKey]; taken && holder != a.ID {
		return nil, ErrSlotTaken
	}

	wasQueued := a.Status.Queued()
	delete(r.held, oldKey)
	r.held[newKey] = a.ID

	a.Date = p.NewDate
	a.TimeSlot = p.NewTimeSlot
	a.Status = StatusPending
	a.QueueNumber, a.EstimatedWait = nil, nil
	a.ConfirmedAt = nil
	a.UpdatedAt = p.At
	a.RescheduleHistory = append(a.RescheduleHistory, p.Entry)
	if wasQueued {
		r.rerank(a.ServiceID, oldKey.date, p.AvgMinutes, p.At)
	}
	return a.Clone(), nil
}

func (r *MemoryRepository) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusPending && a.CreatedAt.Before(createdBefore) {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListByCitizen(_ context.Context, citizenID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appts {
		if a.CitizenID == citizenID {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].TimeSlot > out[j].TimeSlot
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListByDay(_ context.Context, serviceID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	day := FormatDate(date)
	var out []Appointment
	for _, a := range r.appts {
		if a.ServiceID == serviceID && a.DateKey() == day && a.Status.Live() {
			out = append(out, *a.Clone())
		}
	}
	sortDay(out)
	return out, nil
}

// sortDay orders a day listing: numbered entries by queue number, then the
// rest by time slot.
func sortDay(day []Appointment) {
	sort.Slice(day, func(i, j int) bool {
		qi, qj := day[i].QueueNumber, day[j].QueueNumber
		switch {
		case qi != nil && qj != nil:
			return *qi < *qj
		case qi != nil:
			return true
		case qj != nil:
			return false
		}
		return day[i].TimeSlot < day[j].TimeSlot
	})
}

func (r *MemoryRepository) expect(id uuid.UUID, from AppointmentStatus) (*Appointment, error) {
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusConflict
	}
	return a, nil
}

// rerank must be called with r.mu held.
func (r *MemoryRepository) rerank(serviceID uuid.UUID, day string, avgMinutes int, at time.Time) {
	var members []*Appointment
	for _, a := range r.appts {
		if a.ServiceID == serviceID && a.DateKey() == day {
			members = append(members, a)
		}
	}
	for _, a := range rankDay(members, avgMinutes) {
		if a.UpdatedAt.Before(at) {
			a.UpdatedAt = at
		}
	}
}
