package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgEventLog appends events to the event_logs audit table.
type PgEventLog struct {
	pool execer
}

func NewPgEventLog(pool execer) *PgEventLog {
	return &PgEventLog{pool: pool}
}

func (l *PgEventLog) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(map[string]any{
		"citizen_id": ev.CitizenID,
		"service_id": ev.ServiceID,
		"attributes": ev.Attributes,
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO event_logs (id, event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ev.ID, string(ev.Type), ev.AppointmentID, payload, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
