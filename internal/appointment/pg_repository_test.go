package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{
	"id", "citizen_id", "service_id", "officer_id", "appointment_date", "time_slot",
	"status", "priority", "queue_number", "estimated_wait_minutes", "notes", "cancellation_reason",
	"confirmed_at", "completed_at", "cancelled_at", "created_at", "updated_at",
}

var historyCols = []string{
	"appointment_id", "old_date", "old_time_slot", "new_date", "new_time_slot",
	"reason", "actor_id", "actor_role", "created_at",
}

func pendingRow(a *Appointment) *pgxmock.Rows {
	return pgxmock.NewRows(apptCols).AddRow(
		a.ID, a.CitizenID, a.ServiceID, (*uuid.UUID)(nil), a.Date, a.TimeSlot,
		"pending", "normal", (*int)(nil), (*int)(nil), a.Notes, (*string)(nil),
		(*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), a.CreatedAt, a.UpdatedAt,
	)
}

func newPgAppointment() *Appointment {
	now := time.Date(2024, 7, 20, 10, 0, 0, 0, time.UTC)
	return &Appointment{
		ID:        uuid.New(),
		CitizenID: uuid.New(),
		ServiceID: uuid.New(),
		Date:      time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC),
		TimeSlot:  "09:00",
		Status:    StatusPending,
		Priority:  PriorityNormal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

const (
	dayReadSQL = `SELECT service_id, appointment_date\s+FROM appointments\s+WHERE id = \$1\s*$`
	rowLockSQL = `FROM appointments\s+WHERE id = \$1\s+FOR UPDATE`
)

func dayRow(serviceID uuid.UUID, day time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"service_id", "appointment_date"}).AddRow(serviceID, day)
}

// expectQueueDayLock expects the day read and queue_days lock that precede
// the appointment row lock.
func expectQueueDayLock(mock pgxmock.PgxPoolIface, a *Appointment) {
	mock.ExpectQuery(dayReadSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date))
	mock.ExpectExec("INSERT INTO queue_days").
		WithArgs(a.ServiceID, a.Date).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("FROM queue_days").
		WithArgs(a.ServiceID, a.Date).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestPgRepositoryInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRepository(mock)
	a := newPgAppointment()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(a.ID, a.CitizenID, a.ServiceID, a.Date, "09:00", "pending", "normal", "", a.CreatedAt).
		WillReturnRows(pendingRow(a))

	created, err := repo.Insert(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, a.ID, created.ID)
	assert.Equal(t, StatusPending, created.Status)
	assert.Nil(t, created.QueueNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryInsertMapsConstraintViolations(t *testing.T) {
	cases := map[string]struct {
		pgErr *pgconn.PgError
		want  error
	}{
		"live slot": {
			pgErr: &pgconn.PgError{Code: "23505", ConstraintName: liveSlotConstraint},
			want:  ErrSlotTaken,
		},
		"unknown citizen": {
			pgErr: &pgconn.PgError{Code: "23503", ConstraintName: citizenFKConstraint},
			want:  ErrCitizenNotFound,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectQuery("INSERT INTO appointments").WillReturnError(tc.pgErr)

			_, err = NewPgRepository(mock).Insert(context.Background(), newPgAppointment())
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPgRepositoryInsertWrapsOtherErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"})

	_, err = NewPgRepository(mock).Insert(context.Background(), newPgAppointment())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotTaken)
	assert.Contains(t, err.Error(), "insert appointment")
}

func TestPgRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("FROM appointments").WithArgs(id).WillReturnRows(pgxmock.NewRows(apptCols))

	_, err = NewPgRepository(mock).Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryGetAttachesHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	old := a.Date.AddDate(0, 0, -1)
	actor := uuid.New()
	mock.ExpectQuery("FROM appointments").WithArgs(a.ID).WillReturnRows(pendingRow(a))
	mock.ExpectQuery("FROM appointment_reschedules").
		WithArgs([]uuid.UUID{a.ID}).
		WillReturnRows(pgxmock.NewRows(historyCols).
			AddRow(a.ID, old, "11:00", a.Date, "09:00", "work", actor, "citizen", a.UpdatedAt))

	got, err := NewPgRepository(mock).Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, got.RescheduleHistory, 1)
	assert.Equal(t, "11:00", got.RescheduleHistory[0].OldTimeSlot)
	assert.Equal(t, RoleCitizen, got.RescheduleHistory[0].ActorRole)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryHeldSlots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := uuid.New()
	day := time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT time_slot").
		WithArgs(svc, day).
		WillReturnRows(pgxmock.NewRows([]string{"time_slot"}).AddRow("09:00").AddRow("10:30"))

	held, err := NewPgRepository(mock).HeldSlots(context.Background(), svc, day)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:30"}, held)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryConfirmRenumbersInsideTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	officer := uuid.New()
	at := a.CreatedAt.Add(time.Hour)
	n, wait := 1, 0

	mock.ExpectBegin()
	expectQueueDayLock(mock, a)
	mock.ExpectQuery(rowLockSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date))
	mock.ExpectExec("SET status = 'confirmed'").
		WithArgs(a.ID, officer, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("WITH ranked").
		WithArgs(a.ServiceID, a.Date, 15, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM appointments").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			a.ID, a.CitizenID, a.ServiceID, &officer, a.Date, a.TimeSlot,
			"confirmed", "normal", &n, &wait, "", (*string)(nil),
			&at, (*time.Time)(nil), (*time.Time)(nil), a.CreatedAt, at,
		))
	mock.ExpectQuery("FROM appointment_reschedules").
		WithArgs([]uuid.UUID{a.ID}).
		WillReturnRows(pgxmock.NewRows(historyCols))
	mock.ExpectCommit()

	got, err := NewPgRepository(mock).Confirm(context.Background(), ConfirmParams{
		ID:         a.ID,
		OfficerID:  officer,
		At:         at,
		AvgMinutes: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	require.NotNil(t, got.QueueNumber)
	assert.Equal(t, 1, *got.QueueNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryConfirmStatusConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	mock.ExpectBegin()
	expectQueueDayLock(mock, a)
	mock.ExpectQuery(rowLockSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date))
	mock.ExpectExec("SET status = 'confirmed'").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err = NewPgRepository(mock).Confirm(context.Background(), ConfirmParams{ID: a.ID, OfficerID: uuid.New(), At: a.CreatedAt})
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryConfirmUnknownAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(dayReadSQL).WithArgs(id).WillReturnRows(pgxmock.NewRows([]string{"service_id", "appointment_date"}))

	_, err = NewPgRepository(mock).Confirm(context.Background(), ConfirmParams{ID: id})
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryCancelPendingSkipsRenumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	at := a.CreatedAt.Add(time.Hour)
	reason := "moved away"
	mock.ExpectBegin()
	mock.ExpectQuery(rowLockSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date))
	mock.ExpectExec("SET status = 'cancelled'").
		WithArgs(a.ID, reason, at, "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM appointments").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			a.ID, a.CitizenID, a.ServiceID, (*uuid.UUID)(nil), a.Date, a.TimeSlot,
			"cancelled", "normal", (*int)(nil), (*int)(nil), "", &reason,
			(*time.Time)(nil), (*time.Time)(nil), &at, a.CreatedAt, at,
		))
	mock.ExpectQuery("FROM appointment_reschedules").WillReturnRows(pgxmock.NewRows(historyCols))
	mock.ExpectCommit()

	got, err := NewPgRepository(mock).Cancel(context.Background(), CancelParams{
		ID:     a.ID,
		From:   StatusPending,
		Reason: reason,
		At:     at,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, reason, *got.CancellationReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryCancelConfirmedLocksQueueDayBeforeRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	at := a.CreatedAt.Add(time.Hour)
	reason := "sick"
	mock.ExpectBegin()
	expectQueueDayLock(mock, a)
	mock.ExpectQuery(rowLockSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date))
	mock.ExpectExec("SET status = 'cancelled'").
		WithArgs(a.ID, reason, at, "confirmed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("WITH ranked").
		WithArgs(a.ServiceID, a.Date, 20, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectQuery("FROM appointments").
		WithArgs(a.ID).
		WillReturnRows(pgxmock.NewRows(apptCols).AddRow(
			a.ID, a.CitizenID, a.ServiceID, (*uuid.UUID)(nil), a.Date, a.TimeSlot,
			"cancelled", "normal", (*int)(nil), (*int)(nil), "", &reason,
			(*time.Time)(nil), (*time.Time)(nil), &at, a.CreatedAt, at,
		))
	mock.ExpectQuery("FROM appointment_reschedules").WillReturnRows(pgxmock.NewRows(historyCols))
	mock.ExpectCommit()

	got, err := NewPgRepository(mock).Cancel(context.Background(), CancelParams{
		ID:         a.ID,
		From:       StatusConfirmed,
		Reason:     reason,
		At:         at,
		AvgMinutes: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryRowMovedAfterDayLock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	mock.ExpectBegin()
	expectQueueDayLock(mock, a)
	mock.ExpectQuery(rowLockSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date.AddDate(0, 0, 1)))
	mock.ExpectRollback()

	_, err = NewPgRepository(mock).Cancel(context.Background(), CancelParams{
		ID:   a.ID,
		From: StatusConfirmed,
		At:   a.CreatedAt,
	})
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryRescheduleOntoHeldSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := newPgAppointment()
	mock.ExpectBegin()
	mock.ExpectQuery(rowLockSQL).WithArgs(a.ID).WillReturnRows(dayRow(a.ServiceID, a.Date))
	mock.ExpectExec("SET appointment_date").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: liveSlotConstraint})

	_, err = NewPgRepository(mock).Reschedule(context.Background(), RescheduleParams{
		ID:          a.ID,
		From:        StatusPending,
		NewDate:     a.Date.AddDate(0, 0, 1),
		NewTimeSlot: "10:00",
		At:          a.CreatedAt,
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryCompleteConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SET status = 'completed'").WillReturnRows(pgxmock.NewRows(apptCols))

	_, err = NewPgRepository(mock).Complete(context.Background(), CompleteParams{ID: id, OfficerID: uuid.New(), At: time.Now()})
	assert.ErrorIs(t, err, ErrStatusConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryListStalePendingWrapsFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("status = 'pending'").WillReturnError(errors.New("connection reset"))

	_, err = NewPgRepository(mock).ListStalePending(context.Background(), time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query stale pending")
}
