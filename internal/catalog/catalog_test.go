package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func birthCertificate() ServiceDefinition {
	return ServiceDefinition{
		ID:                uuid.New(),
		Name:              "Birth certificate",
		Department:        "Civil Registry",
		Category:          CategoryCivilRegistration,
		FeeCents:          1500,
		RequiredDocuments: []string{"hospital discharge summary", "parent ID"},
		SlotMinutes:       30,
		Windows: []AvailabilityWindow{
			{Weekday: time.Monday, Start: "09:00", End: "12:00"},
			{Weekday: time.Tuesday, Start: "14:00", End: "16:00", SlotMinutes: 20},
			{Weekday: time.Tuesday, Start: "09:00", End: "10:00"},
		},
		Active: true,
	}
}

// 2024-07-22 is a Monday.
var monday = time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC)

func TestWindowsForServiceMonday(t *testing.T) {
	svc := birthCertificate()
	c := New(NewMemoryStore(svc))

	windows, err := c.WindowsForService(context.Background(), svc.ID, monday)
	require.NoError(t, err)
	require.Len(t, windows, 1)

	assert.Equal(t, "09:00", windows[0].StartClock())
	assert.Equal(t, "12:00", windows[0].EndClock())
	assert.Equal(t, 30*time.Minute, windows[0].SlotDuration)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, AllSlots(windows))
}

func TestWindowsForServiceOrdersWindowsAndUsesOverrides(t *testing.T) {
	svc := birthCertificate()
	c := New(NewMemoryStore(svc))

	windows, err := c.WindowsForService(context.Background(), svc.ID, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, windows, 2)

	assert.Equal(t, "09:00", windows[0].StartClock())
	assert.Equal(t, "14:00", windows[1].StartClock())
	assert.Equal(t, 20*time.Minute, windows[1].SlotDuration)
	assert.Equal(t,
		[]string{"09:00", "09:30", "14:00", "14:20", "14:40", "15:00", "15:20", "15:40"},
		AllSlots(windows))
}

func TestWindowsForServiceClosedDay(t *testing.T) {
	svc := birthCertificate()
	c := New(NewMemoryStore(svc))

	sunday := monday.AddDate(0, 0, -1)
	windows, err := c.WindowsForService(context.Background(), svc.ID, sunday)
	require.NoError(t, err)
	assert.Empty(t, windows)
	assert.Empty(t, AllSlots(windows))
}

func TestWindowsForServiceUnknownOrInactive(t *testing.T) {
	inactive := birthCertificate()
	inactive.Active = false
	c := New(NewMemoryStore(inactive))

	_, err := c.WindowsForService(context.Background(), uuid.New(), monday)
	assert.ErrorIs(t, err, ErrServiceNotFound)

	_, err = c.WindowsForService(context.Background(), inactive.ID, monday)
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

type failingStore struct{}

func (failingStore) GetService(context.Context, uuid.UUID) (*ServiceDefinition, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) ListActiveServices(context.Context) ([]ServiceDefinition, error) {
	return nil, errors.New("connection reset")
}

func TestServiceWrapsStoreFailures(t *testing.T) {
	c := New(failingStore{})

	_, err := c.Service(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceNotFound)
	assert.Contains(t, err.Error(), "load service")
}

func TestListServicesSkipsInactive(t *testing.T) {
	active := birthCertificate()
	inactive := birthCertificate()
	inactive.Name = "Archived"
	inactive.Active = false
	c := New(NewMemoryStore(active, inactive))

	services, err := c.ListServices(context.Background())
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, active.ID, services[0].ID)
}

func TestSlotWindowContains(t *testing.T) {
	w := SlotWindow{Start: 9 * time.Hour, End: 12 * time.Hour, SlotDuration: 30 * time.Minute}

	assert.True(t, w.Contains("09:00"))
	assert.True(t, w.Contains("11:30"))
	assert.False(t, w.Contains("12:00"))
	assert.False(t, w.Contains("09:15"))
	assert.False(t, w.Contains("08:30"))
	assert.False(t, w.Contains("9:00"))
}

func TestWindowFor(t *testing.T) {
	morning := SlotWindow{Start: 9 * time.Hour, End: 11 * time.Hour, SlotDuration: time.Hour}
	afternoon := SlotWindow{Start: 14 * time.Hour, End: 15 * time.Hour, SlotDuration: 30 * time.Minute}
	windows := []SlotWindow{morning, afternoon}

	w, ok := WindowFor(windows, "14:30")
	require.True(t, ok)
	assert.Equal(t, afternoon, w)

	w, ok = WindowFor(windows, "10:00")
	require.True(t, ok)
	assert.Equal(t, morning, w)

	_, ok = WindowFor(windows, "09:30")
	assert.False(t, ok)
	_, ok = WindowFor(nil, "09:00")
	assert.False(t, ok)
}

func TestSlotWindowDropsTrailingPartialSlot(t *testing.T) {
	w := SlotWindow{Start: 9 * time.Hour, End: 10*time.Hour + 45*time.Minute, SlotDuration: 30 * time.Minute}
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, w.Slots())
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("13:45")
	require.NoError(t, err)
	assert.Equal(t, 13*time.Hour+45*time.Minute, d)
	assert.Equal(t, "13:45", FormatClock(d))

	for _, bad := range []string{"", "9:00", "24:00", "12:60", "ab:cd", "12-30"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestValidate(t *testing.T) {
	svc := birthCertificate()
	require.NoError(t, svc.Validate())

	bad := birthCertificate()
	bad.Category = "parking"
	assert.Error(t, bad.Validate())

	bad = birthCertificate()
	bad.SlotMinutes = 0
	assert.Error(t, bad.Validate())

	bad = birthCertificate()
	bad.Windows = []AvailabilityWindow{{Weekday: time.Monday, Start: "12:00", End: "09:00"}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidWindow)
}

func TestAverageMinutesFallsBackToSlotDuration(t *testing.T) {
	svc := birthCertificate()
	assert.Equal(t, 30, svc.AverageMinutes())

	svc.AverageServiceMinutes = 12
	assert.Equal(t, 12, svc.AverageMinutes())
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("permits")
	require.NoError(t, err)
	assert.Equal(t, CategoryPermits, c)

	_, err = ParseCategory("Permits")
	assert.Error(t, err)
}
