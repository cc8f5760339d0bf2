package catalog

import (
	"time"

	"github.com/google/uuid"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// Default service ids are fixed so seeded databases, the memory backend
// and the load simulator agree on them.
var (
	BirthCertificateID = uuid.MustParse("6b1f3c1e-0d6a-4f51-9a43-0f3b8b7f2a01")
	NationalIDCardID   = uuid.MustParse("6b1f3c1e-0d6a-4f51-9a43-0f3b8b7f2a02")
	BuildingPermitID   = uuid.MustParse("6b1f3c1e-0d6a-4f51-9a43-0f3b8b7f2a03")
	TaxClearanceID     = uuid.MustParse("6b1f3c1e-0d6a-4f51-9a43-0f3b8b7f2a04")
)

// DefaultServices is the starter catalog: office-hour windows on weekdays,
// with a longer lunch break for the permit desk.
func DefaultServices() []ServiceDefinition {
	return []ServiceDefinition{
		{
			ID:                BirthCertificateID,
			Name:              "Birth certificate",
			Department:        "Civil Registry",
			Category:          CategoryCivilRegistration,
			FeeCents:          1500,
			RequiredDocuments: []string{"hospital birth record", "parent identity document"},
			SlotMinutes:       30,
			Windows:           everyWeekday("09:00", "12:00", 0),
			Active:            true,
		},
		{
			ID:                    NationalIDCardID,
			Name:                  "National identity card",
			Department:            "Identity Office",
			Category:              CategoryIdentity,
			FeeCents:              2500,
			RequiredDocuments:     []string{"birth certificate", "proof of address", "passport photo"},
			SlotMinutes:           20,
			AverageServiceMinutes: 15,
			Windows:               append(everyWeekday("08:00", "12:00", 0), everyWeekday("13:00", "16:00", 0)...),
			Active:                true,
		},
		{
			ID:                    BuildingPermitID,
			Name:                  "Building permit consultation",
			Department:            "Urban Planning",
			Category:              CategoryPermits,
			FeeCents:              10000,
			RequiredDocuments:     []string{"site plan", "land title", "architect drawings"},
			SlotMinutes:           60,
			AverageServiceMinutes: 45,
			Windows: []AvailabilityWindow{
				{Weekday: time.Tuesday, Start: "09:00", End: "12:00"},
				{Weekday: time.Thursday, Start: "09:00", End: "12:00"},
				{Weekday: time.Thursday, Start: "14:00", End: "16:00", SlotMinutes: 30},
			},
			Active: true,
		},
		{
			ID:                TaxClearanceID,
			Name:              "Tax clearance certificate",
			Department:        "Revenue Service",
			Category:          CategoryTaxation,
			RequiredDocuments: []string{"taxpayer number", "latest assessment notice"},
			SlotMinutes:       15,
			Windows:           everyWeekday("10:00", "15:00", 0),
			Active:            true,
		},
	}
}

func everyWeekday(start, end string, slotMinutes int) []AvailabilityWindow {
	out := make([]AvailabilityWindow, 0, len(weekdays))
	for _, d := range weekdays {
		out = append(out, AvailabilityWindow{Weekday: d, Start: start, End: end, SlotMinutes: slotMinutes})
	}
	return out
}
