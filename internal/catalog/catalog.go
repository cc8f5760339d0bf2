package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Store is the service catalog persistence the slot catalog reads from.
type Store interface {
	GetService(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error)
	ListActiveServices(ctx context.Context) ([]ServiceDefinition, error)
}

type Catalog struct {
	store Store
}

func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Service returns an active service definition. Unknown and inactive
// services both fail with ErrServiceNotFound.
func (c *Catalog) Service(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	svc, err := c.store.GetService(ctx, id)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	if !svc.Active {
		return nil, fmt.Errorf("%w: %s is inactive", ErrServiceNotFound, id)
	}
	return svc, nil
}

// Definition returns a service regardless of its active flag. Lifecycle
// operations on existing bookings use it.
func (c *Catalog) Definition(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	svc, err := c.store.GetService(ctx, id)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}
	return svc, nil
}

func (c *Catalog) ListServices(ctx context.Context) ([]ServiceDefinition, error) {
	services, err := c.store.ListActiveServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// WindowsForService returns the service's windows for the weekday of date,
// ordered by start time. A closed day yields an empty slice.
func (c *Catalog) WindowsForService(ctx context.Context, id uuid.UUID, date time.Time) ([]SlotWindow, error) {
	svc, err := c.Service(ctx, id)
	if err != nil {
		return nil, err
	}
	return WindowsOn(svc, date)
}

// WindowsOn resolves a definition's weekly availability for one date.
func WindowsOn(svc *ServiceDefinition, date time.Time) ([]SlotWindow, error) {
	out := make([]SlotWindow, 0, len(svc.Windows))
	for _, w := range svc.Windows {
		if w.Weekday != date.Weekday() {
			continue
		}
		sw, err := svc.slotWindow(w)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.ID, err)
		}
		out = append(out, sw)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start == out[j].Start {
			return out[i].End < out[j].End
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// AllSlots flattens windows into ascending, de-duplicated slot start times.
func AllSlots(windows []SlotWindow) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range windows {
		for _, s := range w.Slots() {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// WindowFor returns the first window that offers slot.
func WindowFor(windows []SlotWindow, slot string) (SlotWindow, bool) {
	for _, w := range windows {
		if w.Contains(slot) {
			return w, true
		}
	}
	return SlotWindow{}, false
}
