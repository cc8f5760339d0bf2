package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/citizen-appointments/internal/catalog"
)

// ReserveRequest is a booking request for one slot.
type ReserveRequest struct {
	CitizenID uuid.UUID
	ServiceID uuid.UUID
	Date      time.Time
	TimeSlot  string
	Priority  Priority
	Notes     string
}

// Allocator lists free slots and reserves them. The store's uniqueness
// guarantee is the arbiter between concurrent reservations; the allocator
// never locks in process.
type Allocator struct {
	catalog     *catalog.Catalog
	repo        Repository
	loc         *time.Location
	horizonDays int
	now         func() time.Time
}

func NewAllocator(cat *catalog.Catalog, repo Repository, loc *time.Location, horizonDays int, now func() time.Time) *Allocator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Allocator{catalog: cat, repo: repo, loc: loc, horizonDays: horizonDays, now: now}
}

// Today is the current calendar day in the configured zone.
func (a *Allocator) Today() time.Time {
	return Day(a.now(), a.loc)
}

// ListAvailableSlots returns the catalog's slots for date minus the ones
// held by live appointments, ascending.
func (a *Allocator) ListAvailableSlots(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]string, error) {
	svc, err := a.service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	_, free, err := a.slots(ctx, svc, date)
	return free, err
}

// ReserveSlot creates a pending appointment for a free slot. A slot taken
// between listing and insert fails with ErrSlotUnavailable.
func (a *Allocator) ReserveSlot(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	if req.CitizenID == uuid.Nil {
		return nil, fmt.Errorf("%w: citizen id is required", ErrInvalidInput)
	}
	if _, err := catalog.ParseClock(req.TimeSlot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, req.Priority)
	}
	date := Day(req.Date, nil)
	if err := a.CheckDate(date, req.TimeSlot); err != nil {
		return nil, err
	}

	svc, err := a.service(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}
	if err := a.checkFree(ctx, svc, date, req.TimeSlot); err != nil {
		return nil, err
	}

	now := a.now()
	created, err := a.repo.Insert(ctx, &Appointment{
		ID:        uuid.New(),
		CitizenID: req.CitizenID,
		ServiceID: svc.ID,
		Date:      date,
		TimeSlot:  req.TimeSlot,
		Status:    StatusPending,
		Priority:  req.Priority,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, fmt.Errorf("%w: %s %s was taken concurrently", ErrSlotUnavailable, FormatDate(date), req.TimeSlot)
		}
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reserve slot: %w", err)
	}
	return created, nil
}

// CheckDate rejects past days, days beyond the booking horizon and slots
// of today that have already started.
func (a *Allocator) CheckDate(date time.Time, slot string) error {
	now := a.now()
	today := Day(now, a.loc)

	if date.Before(today) {
		return fmt.Errorf("%w: %s is in the past", ErrInvalidDate, FormatDate(date))
	}
	if a.horizonDays > 0 && date.After(today.AddDate(0, 0, a.horizonDays)) {
		return fmt.Errorf("%w: %s is beyond the %d day booking horizon", ErrInvalidDate, FormatDate(date), a.horizonDays)
	}
	if date.Equal(today) {
		offset, err := catalog.ParseClock(slot)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		y, m, d := date.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, a.loc).Add(offset)
		if !start.After(now) {
			return fmt.Errorf("%w: slot %s today has already started", ErrInvalidDate, slot)
		}
	}
	return nil
}

func (a *Allocator) service(ctx context.Context, id uuid.UUID) (*catalog.ServiceDefinition, error) {
	svc, err := a.catalog.Service(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	return svc, nil
}

func (a *Allocator) slots(ctx context.Context, svc *catalog.ServiceDefinition, date time.Time) (all, free []string, err error) {
	windows, err := catalog.WindowsOn(svc, date)
	if err != nil {
		return nil, nil, err
	}
	all = catalog.AllSlots(windows)
	if len(all) == 0 {
		return all, []string{}, nil
	}

	held, err := a.repo.HeldSlots(ctx, svc.ID, date)
	if err != nil {
		return nil, nil, fmt.Errorf("load held slots: %w", err)
	}
	taken := make(map[string]struct{}, len(held))
	for _, s := range held {
		taken[s] = struct{}{}
	}
	free = make([]string, 0, len(all))
	for _, s := range all {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return all, free, nil
}

func (a *Allocator) checkFree(ctx context.Context, svc *catalog.ServiceDefinition, date time.Time, slot string) error {
	windows, err := catalog.WindowsOn(svc, date)
	if err != nil {
		return err
	}
	if _, ok := catalog.WindowFor(windows, slot); !ok {
		return fmt.Errorf("%w: %s is not offered on %s", ErrSlotUnavailable, slot, FormatDate(date))
	}

	_, free, err := a.slots(ctx, svc, date)
	if err != nil {
		return err
	}
	for _, s := range free {
		if s == slot {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s is already held", ErrSlotUnavailable, FormatDate(date), slot)
}
