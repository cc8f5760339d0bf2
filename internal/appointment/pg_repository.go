package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	liveSlotConstraint    = "appointments_live_slot_uniq"
	citizenFKConstraint   = "appointments_citizen_id_fkey"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxConn is the part of pgxpool.Pool the repository needs; pgxmock
// implements it in tests.
type pgxConn interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool pgxConn
}

func NewPgRepository(pool pgxConn) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, citizen_id, service_id, officer_id, appointment_date, time_slot,
	status, priority, queue_number, estimated_wait_minutes, notes, cancellation_reason,
	confirmed_at, completed_at, cancelled_at, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, priority string

	err := row.Scan(
		&a.ID,
		&a.CitizenID,
		&a.ServiceID,
		&a.OfficerID,
		&a.Date,
		&a.TimeSlot,
		&status,
		&priority,
		&a.QueueNumber,
		&a.EstimatedWait,
		&a.Notes,
		&a.CancellationReason,
		&a.ConfirmedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = AppointmentStatus(status)
	a.Priority = Priority(priority)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapWriteError turns constraint violations into repository errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == liveSlotConstraint:
			return ErrSlotTaken
		case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == citizenFKConstraint:
			return ErrCitizenNotFound
		}
	}
	return err
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, citizen_id, service_id, appointment_date, time_slot,
			status, priority, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+appointmentColumns,
		id, appt.CitizenID, appt.ServiceID, appt.Date, appt.TimeSlot,
		string(appt.Status), string(appt.Priority), appt.Notes, appt.CreatedAt)

	created, err := scanAppointment(row)
	if err != nil {
		if mapped := mapWriteError(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	a, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}
	if err := r.attachHistory(ctx, r.pool, []*Appointment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PgRepository) HeldSlots(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE service_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
		ORDER BY time_slot
	`, serviceID, date)
	if err != nil {
		return nil, fmt.Errorf("query held slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan held slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

// Confirm flips a pending appointment to confirmed and renumbers the day's
// queue while holding the queue_days row lock, so concurrent confirmations
// for one service day serialize.
func (r *PgRepository) Confirm(ctx context.Context, p ConfirmParams) (*Appointment, error) {
	return r.inTx(ctx, p.ID, true, func(tx pgx.Tx, serviceID uuid.UUID, day time.Time) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = 'confirmed',
			    officer_id = $2,
			    confirmed_at = $3,
			    updated_at = $3
			WHERE id = $1
			  AND status = 'pending'
		`, p.ID, p.OfficerID, p.At)
		if err != nil {
			return fmt.Errorf("confirm appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStatusConflict
		}
		return renumberDay(ctx, tx, serviceID, day, p.AvgMinutes, p.At)
	})
}

func (r *PgRepository) Cancel(ctx context.Context, p CancelParams) (*Appointment, error) {
	return r.inTx(ctx, p.ID, p.From.Queued(), func(tx pgx.Tx, serviceID uuid.UUID, day time.Time) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET status = 'cancelled',
			    cancellation_reason = $2,
			    cancelled_at = $3,
			    queue_number = NULL,
			    estimated_wait_minutes = NULL,
			    updated_at = $3
			WHERE id = $1
			  AND status = $4
		`, p.ID, p.Reason, p.At, string(p.From))
		if err != nil {
			return fmt.Errorf("cancel appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStatusConflict
		}
		if p.From.Queued() {
			return renumberDay(ctx, tx, serviceID, day, p.AvgMinutes, p.At)
		}
		return nil
	})
}

func (r *PgRepository) Complete(ctx context.Context, p CompleteParams) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    officer_id = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'confirmed'
		RETURNING `+appointmentColumns,
		p.ID, p.OfficerID, p.At)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusConflict
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	if err := r.attachHistory(ctx, r.pool, []*Appointment{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// Reschedule moves the appointment in place. The partial unique index on
// live slots rejects a move onto a held slot.
func (r *PgRepository) Reschedule(ctx context.Context, p RescheduleParams) (*Appointment, error) {
	return r.inTx(ctx, p.ID, p.From.Queued(), func(tx pgx.Tx, serviceID uuid.UUID, day time.Time) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET appointment_date = $2,
			    time_slot = $3,
			    status = 'pending',
			    queue_number = NULL,
			    estimated_wait_minutes = NULL,
			    confirmed_at = NULL,
			    updated_at = $4
			WHERE id = $1
			  AND status = $5
		`, p.ID, p.NewDate, p.NewTimeSlot, p.At, string(p.From))
		if err != nil {
			if mapped := mapWriteError(err); mapped != err {
				return mapped
			}
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStatusConflict
		}

		e := p.Entry
		_, err = tx.Exec(ctx, `
			INSERT INTO appointment_reschedules (appointment_id, old_date, old_time_slot,
				new_date, new_time_slot, reason, actor_id, actor_role, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, p.ID, e.OldDate, e.OldTimeSlot, e.NewDate, e.NewTimeSlot, e.Reason, e.ActorID, string(e.ActorRole), e.At)
		if err != nil {
			return fmt.Errorf("record reschedule: %w", err)
		}

		if p.From.Queued() {
			return renumberDay(ctx, tx, serviceID, day, p.AvgMinutes, p.At)
		}
		return nil
	})
}

func (r *PgRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending'
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("query stale pending: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByCitizen(ctx context.Context, citizenID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE citizen_id = $1
		ORDER BY appointment_date DESC, time_slot DESC
		LIMIT $2 OFFSET $3
	`, citizenID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query citizen appointments: %w", err)
	}
	result, err := collectAppointments(rows)
	if err != nil {
		return nil, err
	}
	return result, r.attachHistory(ctx, r.pool, pointers(result))
}

func (r *PgRepository) ListByDay(ctx context.Context, serviceID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE service_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
		ORDER BY queue_number NULLS LAST, time_slot
	`, serviceID, date)
	if err != nil {
		return nil, fmt.Errorf("query day appointments: %w", err)
	}
	return collectAppointments(rows)
}

// inTx locks the appointment row, runs fn, then reloads the appointment
// inside the same transaction before committing. With queueDay set the
// queue_days row is locked before the appointment row: renumbering updates
// other appointments of the day, so every writer that renumbers must take
// the day lock first.
func (r *PgRepository) inTx(ctx context.Context, id uuid.UUID, queueDay bool, fn func(tx pgx.Tx, serviceID uuid.UUID, day time.Time) error) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var serviceID uuid.UUID
	var day time.Time
	if queueDay {
		err = tx.QueryRow(ctx, `
			SELECT service_id, appointment_date
			FROM appointments
			WHERE id = $1
		`, id).Scan(&serviceID, &day)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAppointmentNotFound
			}
			return nil, fmt.Errorf("read appointment day: %w", err)
		}
		if err := lockQueueDay(ctx, tx, serviceID, day); err != nil {
			return nil, err
		}
	}

	var lockedService uuid.UUID
	var lockedDay time.Time
	err = tx.QueryRow(ctx, `
		SELECT service_id, appointment_date
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&lockedService, &lockedDay)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("lock appointment: %w", err)
	}
	if queueDay && (lockedService != serviceID || !lockedDay.Equal(day)) {
		// moved to another day between the two reads
		return nil, ErrStatusConflict
	}
	serviceID, day = lockedService, lockedDay

	if err := fn(tx, serviceID, day); err != nil {
		return nil, err
	}

	a, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, fmt.Errorf("reload appointment: %w", err)
	}
	if err := r.attachHistory(ctx, tx, []*Appointment{a}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return a, nil
}

func lockQueueDay(ctx context.Context, tx pgx.Tx, serviceID uuid.UUID, day time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO queue_days (service_id, day)
		VALUES ($1, $2)
		ON CONFLICT (service_id, day) DO NOTHING
	`, serviceID, day)
	if err != nil {
		return fmt.Errorf("ensure queue day: %w", err)
	}
	_, err = tx.Exec(ctx, `
		SELECT 1
		FROM queue_days
		WHERE service_id = $1 AND day = $2
		FOR UPDATE
	`, serviceID, day)
	if err != nil {
		return fmt.Errorf("lock queue day: %w", err)
	}
	return nil
}

// renumberDay assigns 1..n to the day's confirmed and completed
// appointments by time slot, confirmation time and id.
func renumberDay(ctx context.Context, tx pgx.Tx, serviceID uuid.UUID, day time.Time, avgMinutes int, at time.Time) error {
	_, err := tx.Exec(ctx, `
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY time_slot, confirmed_at, id) AS n
			FROM appointments
			WHERE service_id = $1
			  AND appointment_date = $2
			  AND status IN ('confirmed', 'completed')
		)
		UPDATE appointments a
		SET queue_number = r.n,
		    estimated_wait_minutes = (r.n - 1) * $3,
		    updated_at = $4
		FROM ranked r
		WHERE a.id = r.id
		  AND (a.queue_number IS DISTINCT FROM r.n
		       OR a.estimated_wait_minutes IS DISTINCT FROM (r.n - 1) * $3)
	`, serviceID, day, avgMinutes, at)
	if err != nil {
		return fmt.Errorf("renumber queue: %w", err)
	}
	return nil
}

func (r *PgRepository) attachHistory(ctx context.Context, q querier, appts []*Appointment) error {
	if len(appts) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(appts))
	byID := make(map[uuid.UUID]*Appointment, len(appts))
	for i, a := range appts {
		ids[i] = a.ID
		byID[a.ID] = a
	}

	rows, err := q.Query(ctx, `
		SELECT appointment_id, old_date, old_time_slot, new_date, new_time_slot,
		       reason, actor_id, actor_role, created_at
		FROM appointment_reschedules
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, created_at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("query reschedule history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var apptID uuid.UUID
		var e RescheduleEntry
		var role string
		if err := rows.Scan(&apptID, &e.OldDate, &e.OldTimeSlot, &e.NewDate, &e.NewTimeSlot,
			&e.Reason, &e.ActorID, &role, &e.At); err != nil {
			return fmt.Errorf("scan reschedule history: %w", err)
		}
		e.ActorRole = Role(role)
		if a, ok := byID[apptID]; ok {
			a.RescheduleHistory = append(a.RescheduleHistory, e)
		}
	}
	return rows.Err()
}

func pointers(list []Appointment) []*Appointment {
	out := make([]*Appointment, len(list))
	for i := range list {
		out[i] = &list[i]
	}
	return out
}
