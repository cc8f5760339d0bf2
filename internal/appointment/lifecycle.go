package appointment

// Event is a lifecycle trigger applied to an appointment.
type Event string

const (
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventReschedule Event = "reschedule"
	EventComplete   Event = "complete"
	EventExpire     Event = "expire"
)

type transition struct {
	to    AppointmentStatus
	roles []Role
}

var (
	staff    = []Role{RoleOfficer, RoleAdmin}
	everyone = []Role{RoleCitizen, RoleOfficer, RoleAdmin}
)

// transitions is the complete lifecycle table. Any (status, event) pair
// missing here is rejected. Completed and cancelled are terminal;
// rescheduled is a legacy status nothing moves into or out of.
var transitions = map[AppointmentStatus]map[Event]transition{
	StatusPending: {
		EventConfirm:    {to: StatusConfirmed, roles: staff},
		EventCancel:     {to: StatusCancelled, roles: everyone},
		EventReschedule: {to: StatusPending, roles: everyone},
		EventExpire:     {to: StatusCancelled, roles: []Role{RoleSystem}},
	},
	StatusConfirmed: {
		EventCancel:     {to: StatusCancelled, roles: everyone},
		EventReschedule: {to: StatusPending, roles: everyone},
		EventComplete:   {to: StatusCompleted, roles: staff},
	},
}

// Next returns the status reached by applying ev to an appointment in
// status from on behalf of role.
func Next(from AppointmentStatus, ev Event, role Role) (AppointmentStatus, error) {
	t, ok := transitions[from][ev]
	if !ok {
		return "", &TransitionError{From: from, Event: ev, Role: role}
	}
	for _, r := range t.roles {
		if r == role {
			return t.to, nil
		}
	}
	return "", &TransitionError{From: from, Event: ev, Role: role, Reason: "role may not trigger this event", Forbidden: true}
}

// Authorize combines the table with ownership: citizens only act on their
// own appointments.
func Authorize(appt *Appointment, ev Event, actor Actor) (AppointmentStatus, error) {
	to, err := Next(appt.Status, ev, actor.Role)
	if err != nil {
		return "", err
	}
	if actor.Role == RoleCitizen && appt.CitizenID != actor.ID {
		return "", &TransitionError{From: appt.Status, Event: ev, Role: actor.Role, Reason: "appointment belongs to another citizen", Forbidden: true}
	}
	return to, nil
}

// CanView reports whether actor may read appt.
func CanView(appt *Appointment, actor Actor) bool {
	if actor.Role == RoleCitizen {
		return appt.CitizenID == actor.ID
	}
	return actor.Role.Valid()
}
