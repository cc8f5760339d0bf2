package appointment

import (
	"sort"
	"time"
)

// EstimateWait returns the expected wait in minutes for a queue position.
func EstimateWait(queueNumber, avgMinutes int) int {
	if queueNumber < 1 || avgMinutes < 0 {
		return 0
	}
	return (queueNumber - 1) * avgMinutes
}

// rankDay numbers the confirmed and completed appointments of one
// (service, date) from 1 by time slot, breaking ties by confirmation time
// then id. Other statuses lose any number they carried. The slice is
// modified in place; appointments whose number or wait changed are returned.
func rankDay(day []*Appointment, avgMinutes int) []*Appointment {
	queued := make([]*Appointment, 0, len(day))
	var changed []*Appointment
	for _, a := range day {
		if a.Status.Queued() {
			queued = append(queued, a)
			continue
		}
		if a.QueueNumber != nil || a.EstimatedWait != nil {
			a.QueueNumber, a.EstimatedWait = nil, nil
			changed = append(changed, a)
		}
	}

	sort.SliceStable(queued, func(i, j int) bool {
		return queueLess(queued[i], queued[j])
	})

	for i, a := range queued {
		n := i + 1
		wait := EstimateWait(n, avgMinutes)
		if a.QueueNumber != nil && *a.QueueNumber == n && a.EstimatedWait != nil && *a.EstimatedWait == wait {
			continue
		}
		a.QueueNumber = &n
		a.EstimatedWait = &wait
		changed = append(changed, a)
	}
	return changed
}

func queueLess(a, b *Appointment) bool {
	if a.TimeSlot != b.TimeSlot {
		return a.TimeSlot < b.TimeSlot
	}
	at, bt := confirmedAt(a), confirmedAt(b)
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return a.ID.String() < b.ID.String()
}

func confirmedAt(a *Appointment) time.Time {
	if a.ConfirmedAt != nil {
		return *a.ConfirmedAt
	}
	return a.UpdatedAt
}
