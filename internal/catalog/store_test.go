package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serviceCols = []string{
	"id", "name", "department", "category", "fee_cents", "required_documents",
	"slot_minutes", "avg_service_minutes", "active", "created_at", "updated_at",
}

func TestPgStoreGetService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, name").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(serviceCols).AddRow(
			id, "Passport renewal", "Immigration", "identity", int64(6000),
			[]string{"old passport"}, 15, 20, true, now, now,
		))
	mock.ExpectQuery("FROM service_windows").
		WithArgs([]uuid.UUID{id}).
		WillReturnRows(pgxmock.NewRows([]string{"service_id", "weekday", "start_time", "end_time", "slot_minutes"}).
			AddRow(id, 1, "09:00", "12:00", 0).
			AddRow(id, 3, "13:00", "15:00", 30))

	svc, err := store.GetService(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, CategoryIdentity, svc.Category)
	assert.Equal(t, 20, svc.AverageMinutes())
	require.Len(t, svc.Windows, 2)
	assert.Equal(t, time.Monday, svc.Windows[0].Weekday)
	assert.Equal(t, time.Wednesday, svc.Windows[1].Weekday)
	assert.Equal(t, 30, svc.Windows[1].SlotMinutes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreGetServiceNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(serviceCols))

	_, err = store.GetService(context.Background(), id)
	assert.ErrorIs(t, err, ErrServiceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreSaveServiceReplacesWindows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	svc := &ServiceDefinition{
		Name:        "Business permit",
		Department:  "Trade",
		Category:    CategoryPermits,
		SlotMinutes: 30,
		Windows: []AvailabilityWindow{
			{Weekday: time.Thursday, Start: "10:00", End: "12:00"},
		},
		Active: true,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO services").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM service_windows").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO service_windows").
		WithArgs(pgxmock.AnyArg(), int(time.Thursday), "10:00", "12:00", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveService(context.Background(), svc))
	assert.NotEqual(t, uuid.Nil, svc.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgStoreSaveServiceRejectsInvalid(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgStore(mock)
	err = store.SaveService(context.Background(), &ServiceDefinition{Name: "x", Category: "nope", SlotMinutes: 10})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
