package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrInvalidClock    = errors.New("invalid clock time")
	ErrInvalidWindow   = errors.New("invalid availability window")
)

type Category string

const (
	CategoryCivilRegistration Category = "civil_registration"
	CategoryIdentity          Category = "identity"
	CategoryPermits           Category = "permits"
	CategoryTaxation          Category = "taxation"
	CategoryWelfare           Category = "welfare"
	CategoryOther             Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryCivilRegistration, CategoryIdentity, CategoryPermits,
		CategoryTaxation, CategoryWelfare, CategoryOther:
		return true
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown service category %q", s)
	}
	return c, nil
}

// AvailabilityWindow is one recurring weekly opening of a service.
// Start and End are "HH:MM" wall-clock times; SlotMinutes of 0 falls back
// to the service's default slot duration.
type AvailabilityWindow struct {
	Weekday     time.Weekday
	Start       string
	End         string
	SlotMinutes int
}

type ServiceDefinition struct {
	ID                    uuid.UUID
	Name                  string
	Department            string
	Category              Category
	FeeCents              int64
	RequiredDocuments     []string
	SlotMinutes           int
	AverageServiceMinutes int
	Windows               []AvailabilityWindow
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Validate checks the definition is bookable: known category, positive
// durations and well-formed windows.
func (s *ServiceDefinition) Validate() error {
	if s.Name == "" {
		return errors.New("service name is required")
	}
	if !s.Category.Valid() {
		return fmt.Errorf("unknown service category %q", s.Category)
	}
	if s.SlotMinutes <= 0 {
		return errors.New("slot duration must be positive")
	}
	if s.AverageServiceMinutes < 0 {
		return errors.New("average service duration cannot be negative")
	}
	for i, w := range s.Windows {
		if _, err := s.slotWindow(w); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return nil
}

// AverageMinutes is the per-appointment duration used for wait estimates.
func (s *ServiceDefinition) AverageMinutes() int {
	if s.AverageServiceMinutes > 0 {
		return s.AverageServiceMinutes
	}
	return s.SlotMinutes
}

func (s *ServiceDefinition) slotWindow(w AvailabilityWindow) (SlotWindow, error) {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return SlotWindow{}, fmt.Errorf("%w: weekday %d", ErrInvalidWindow, w.Weekday)
	}
	start, err := ParseClock(w.Start)
	if err != nil {
		return SlotWindow{}, err
	}
	end, err := ParseClock(w.End)
	if err != nil {
		return SlotWindow{}, err
	}
	if end <= start {
		return SlotWindow{}, fmt.Errorf("%w: %s-%s ends before it starts", ErrInvalidWindow, w.Start, w.End)
	}
	minutes := w.SlotMinutes
	if minutes <= 0 {
		minutes = s.SlotMinutes
	}
	if minutes <= 0 {
		return SlotWindow{}, fmt.Errorf("%w: no slot duration", ErrInvalidWindow)
	}
	return SlotWindow{
		Start:        start,
		End:          end,
		SlotDuration: time.Duration(minutes) * time.Minute,
	}, nil
}

// SlotWindow is a window resolved for one concrete date. It is derived,
// never persisted.
type SlotWindow struct {
	Start        time.Duration // offset from midnight
	End          time.Duration
	SlotDuration time.Duration
}

func (w SlotWindow) StartClock() string { return FormatClock(w.Start) }
func (w SlotWindow) EndClock() string   { return FormatClock(w.End) }

// Slots enumerates slot start times that fit entirely inside the window.
func (w SlotWindow) Slots() []string {
	if w.SlotDuration <= 0 {
		return nil
	}
	var out []string
	for t := w.Start; t+w.SlotDuration <= w.End; t += w.SlotDuration {
		out = append(out, FormatClock(t))
	}
	return out
}

// Contains reports whether slot is one of the window's slot starts.
func (w SlotWindow) Contains(slot string) bool {
	t, err := ParseClock(slot)
	if err != nil || w.SlotDuration <= 0 {
		return false
	}
	if t < w.Start || t+w.SlotDuration > w.End {
		return false
	}
	return (t-w.Start)%w.SlotDuration == 0
}

// ParseClock parses a zero-padded 24h "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func FormatClock(d time.Duration) string {
	mins := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}
