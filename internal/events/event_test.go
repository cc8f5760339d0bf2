package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ err error }

func (f failingSink) Publish(context.Context, Event) error { return f.err }

func sampleEvent(t Type) Event {
	return New(t, uuid.New(), uuid.New(), uuid.New(),
		time.Date(2024, 7, 22, 8, 0, 0, 0, time.UTC),
		map[string]string{"time_slot": "09:00"})
}

func TestFanoutPublishesToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("stream down")
	f := Fanout{failingSink{err: boom}, nil, rec}

	err := f.Publish(context.Background(), sampleEvent(TypeConfirmed))
	require.ErrorIs(t, err, boom)
	assert.Len(t, rec.Events(), 1)
}

func TestFanoutNoErrors(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, Fanout{Discard{}, rec}.Publish(context.Background(), sampleEvent(TypeReserved)))
	assert.Len(t, rec.OfType(TypeReserved), 1)
	assert.Empty(t, rec.OfType(TypeCancelled))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("appointment.rescheduled")
	require.NoError(t, err)
	assert.Equal(t, TypeRescheduled, typ)

	_, err = ParseType("appointment.deleted")
	assert.Error(t, err)
}

func TestPgEventLogInsertsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ev := sampleEvent(TypeCancelled)
	mock.ExpectExec("INSERT INTO event_logs").
		WithArgs(ev.ID, "appointment.cancelled", ev.AppointmentID, pgxmock.AnyArg(), ev.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewPgEventLog(mock).Publish(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgEventLogWrapsFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO event_logs").WillReturnError(errors.New("connection reset"))

	err = NewPgEventLog(mock).Publish(context.Background(), sampleEvent(TypeReserved))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert event log")
}
