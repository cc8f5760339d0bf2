package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxConn is the subset of pgxpool.Pool the store uses, so pgxmock can
// stand in for it.
type pgxConn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgStore struct {
	pool pgxConn
}

func NewPgStore(pool pgxConn) *PgStore {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PgStore{pool: pool}
}

const serviceColumns = `id, name, department, category, fee_cents, required_documents,
	slot_minutes, avg_service_minutes, active, created_at, updated_at`

func scanService(row pgx.Row) (*ServiceDefinition, error) {
	var s ServiceDefinition
	var category string

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Department,
		&category,
		&s.FeeCents,
		&s.RequiredDocuments,
		&s.SlotMinutes,
		&s.AverageServiceMinutes,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	s.Category = Category(category)
	return &s, nil
}

func (r *PgStore) GetService(ctx context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = $1
	`, id)
	svc, err := scanService(row)
	if err != nil {
		return nil, err
	}

	windows, err := r.windows(ctx, []uuid.UUID{svc.ID})
	if err != nil {
		return nil, err
	}
	svc.Windows = windows[svc.ID]
	return svc, nil
}

func (r *PgStore) ListActiveServices(ctx context.Context) ([]ServiceDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE active
		ORDER BY department, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ServiceDefinition
	var ids []uuid.UUID
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return result, nil
	}

	windows, err := r.windows(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Windows = windows[result[i].ID]
	}
	return result, nil
}

func (r *PgStore) windows(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]AvailabilityWindow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT service_id, weekday, start_time, end_time, slot_minutes
		FROM service_windows
		WHERE service_id = ANY($1)
		ORDER BY service_id, weekday, start_time
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load service windows: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]AvailabilityWindow)
	for rows.Next() {
		var serviceID uuid.UUID
		var weekday int
		var w AvailabilityWindow
		if err := rows.Scan(&serviceID, &weekday, &w.Start, &w.End, &w.SlotMinutes); err != nil {
			return nil, fmt.Errorf("scan service window: %w", err)
		}
		w.Weekday = time.Weekday(weekday)
		out[serviceID] = append(out[serviceID], w)
	}
	return out, rows.Err()
}

// SaveService upserts a definition and replaces its windows in one transaction.
func (r *PgStore) SaveService(ctx context.Context, svc *ServiceDefinition) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save service: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO services (id, name, department, category, fee_cents, required_documents,
			slot_minutes, avg_service_minutes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			department = EXCLUDED.department,
			category = EXCLUDED.category,
			fee_cents = EXCLUDED.fee_cents,
			required_documents = EXCLUDED.required_documents,
			slot_minutes = EXCLUDED.slot_minutes,
			avg_service_minutes = EXCLUDED.avg_service_minutes,
			active = EXCLUDED.active,
			updated_at = now()
	`, svc.ID, svc.Name, svc.Department, string(svc.Category), svc.FeeCents, svc.RequiredDocuments,
		svc.SlotMinutes, svc.AverageServiceMinutes, svc.Active)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM service_windows WHERE service_id = $1`, svc.ID); err != nil {
		return fmt.Errorf("clear service windows: %w", err)
	}
	for _, w := range svc.Windows {
		_, err := tx.Exec(ctx, `
			INSERT INTO service_windows (service_id, weekday, start_time, end_time, slot_minutes)
			VALUES ($1, $2, $3, $4, $5)
		`, svc.ID, int(w.Weekday), w.Start, w.End, w.SlotMinutes)
		if err != nil {
			return fmt.Errorf("insert service window: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save service: %w", err)
	}
	return nil
}

// MemoryStore keeps definitions in process. Used by tests and the memory backend.
type MemoryStore struct {
	mu       sync.RWMutex
	services map[uuid.UUID]ServiceDefinition
}

func NewMemoryStore(services ...ServiceDefinition) *MemoryStore {
	s := &MemoryStore{services: make(map[uuid.UUID]ServiceDefinition)}
	for _, svc := range services {
		s.services[svc.ID] = cloneService(svc)
	}
	return s
}

func (s *MemoryStore) SaveService(_ context.Context, svc *ServiceDefinition) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	now := time.Now()
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = cloneService(*svc)
	return nil
}

func (s *MemoryStore) GetService(_ context.Context, id uuid.UUID) (*ServiceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	out := cloneService(svc)
	return &out, nil
}

func (s *MemoryStore) ListActiveServices(_ context.Context) ([]ServiceDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ServiceDefinition
	for _, svc := range s.services {
		if svc.Active {
			out = append(out, cloneService(svc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Department == out[j].Department {
			return out[i].Name < out[j].Name
		}
		return out[i].Department < out[j].Department
	})
	return out, nil
}

func cloneService(svc ServiceDefinition) ServiceDefinition {
	svc.RequiredDocuments = append([]string(nil), svc.RequiredDocuments...)
	svc.Windows = append([]AvailabilityWindow(nil), svc.Windows...)
	return svc
}
