package appointment

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCoversEveryStatusAndEvent(t *testing.T) {
	statuses := []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusRescheduled}
	evs := []Event{EventConfirm, EventCancel, EventReschedule, EventComplete, EventExpire}

	allowed := map[AppointmentStatus]map[Event]AppointmentStatus{
		StatusPending: {
			EventConfirm:    StatusConfirmed,
			EventCancel:     StatusCancelled,
			EventReschedule: StatusPending,
			EventExpire:     StatusCancelled,
		},
		StatusConfirmed: {
			EventCancel:     StatusCancelled,
			EventReschedule: StatusPending,
			EventComplete:   StatusCompleted,
		},
	}
	roleFor := map[Event]Role{
		EventConfirm:    RoleOfficer,
		EventCancel:     RoleCitizen,
		EventReschedule: RoleCitizen,
		EventComplete:   RoleAdmin,
		EventExpire:     RoleSystem,
	}

	for _, from := range statuses {
		for _, ev := range evs {
			to, err := Next(from, ev, roleFor[ev])
			want, ok := allowed[from][ev]
			if ok {
				require.NoError(t, err, "%s + %s", from, ev)
				assert.Equal(t, want, to, "%s + %s", from, ev)
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s + %s", from, ev)
			assert.NotErrorIs(t, err, ErrActorNotPermitted, "%s + %s", from, ev)
		}
	}
}

func TestNextRejectsRoles(t *testing.T) {
	cases := []struct {
		from AppointmentStatus
		ev   Event
		role Role
	}{
		{StatusPending, EventConfirm, RoleCitizen},
		{StatusPending, EventConfirm, RoleSystem},
		{StatusConfirmed, EventComplete, RoleCitizen},
		{StatusPending, EventExpire, RoleOfficer},
		{StatusPending, EventCancel, RoleSystem},
	}
	for _, tc := range cases {
		_, err := Next(tc.from, tc.ev, tc.role)
		assert.ErrorIs(t, err, ErrActorNotPermitted, "%s %s as %s", tc.from, tc.ev, tc.role)
		assert.NotErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestAuthorizeOwnership(t *testing.T) {
	owner := uuid.New()
	appt := &Appointment{ID: uuid.New(), CitizenID: owner, Status: StatusConfirmed}

	to, err := Authorize(appt, EventCancel, Actor{ID: owner, Role: RoleCitizen})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, to)

	_, err = Authorize(appt, EventReschedule, Actor{ID: uuid.New(), Role: RoleCitizen})
	require.ErrorIs(t, err, ErrActorNotPermitted)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "appointment belongs to another citizen", te.Reason)

	_, err = Authorize(appt, EventCancel, Actor{ID: uuid.New(), Role: RoleOfficer})
	assert.NoError(t, err)
}

func TestCanView(t *testing.T) {
	owner := uuid.New()
	appt := &Appointment{CitizenID: owner}

	assert.True(t, CanView(appt, Actor{ID: owner, Role: RoleCitizen}))
	assert.False(t, CanView(appt, Actor{ID: uuid.New(), Role: RoleCitizen}))
	assert.True(t, CanView(appt, Actor{ID: uuid.New(), Role: RoleOfficer}))
	assert.False(t, CanView(appt, Actor{ID: uuid.New(), Role: "visitor"}))
}

func TestTransitionErrorMessage(t *testing.T) {
	err := &TransitionError{From: StatusCompleted, Event: EventCancel, Role: RoleOfficer}
	assert.Equal(t, "cannot cancel appointment in status completed as officer", err.Error())
}
