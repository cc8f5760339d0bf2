package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/auth"
	"github.com/hackgods/citizen-appointments/internal/catalog"
	"github.com/hackgods/citizen-appointments/internal/db"
	"github.com/hackgods/citizen-appointments/internal/logging"
)

const batchSize = 500

func main() {
	logger := logging.Init("seed", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	citizens := getInt("SEED_CITIZENS", 5000)
	officers := getInt("SEED_OFFICERS", 40)

	if err := seedServices(context.Background(), pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed services")
	}
	officerID, err := seedOfficers(context.Background(), pool, officers, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed officers")
	}
	citizenID, err := seedCitizens(context.Background(), pool, citizens, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed citizens")
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		printToken(logger, secret, appointment.Actor{ID: officerID, Role: appointment.RoleOfficer})
		printToken(logger, secret, appointment.Actor{ID: citizenID, Role: appointment.RoleCitizen})
	}

	logger.Info().Msg("seed complete")
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	store := catalog.NewPgStore(pool)
	for _, svc := range catalog.DefaultServices() {
		svc := svc
		if err := store.SaveService(ctx, &svc); err != nil {
			return fmt.Errorf("save %s: %w", svc.Name, err)
		}
		logger.Info().
			Str("service_id", svc.ID.String()).
			Str("name", svc.Name).
			Int("windows", len(svc.Windows)).
			Msg("service seeded")
	}
	return nil
}

func seedOfficers(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) (uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding officers")

	var departments []string
	for _, svc := range catalog.DefaultServices() {
		departments = append(departments, svc.Department)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var first uuid.UUID
	for i := 0; i < count; i++ {
		id := uuid.New()
		role := "officer"
		if i == 0 {
			role = "admin"
			first = id
		}
		dept := departments[gofakeit.Number(0, len(departments)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO officers (id, full_name, email, department, role, created_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (email) DO NOTHING
		`, id, gofakeit.Name(), gofakeit.Email(), dept, role)
		if err != nil {
			return uuid.Nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}

	logger.Info().Msg("officers seeded")
	return first, nil
}

func seedCitizens(ctx context.Context, pool *pgxpool.Pool, count int, logger zerolog.Logger) (uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding citizens")

	var first uuid.UUID
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return uuid.Nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			if i == 0 {
				first = id
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO citizens (id, full_name, email, phone, national_id, created_at)
				VALUES ($1, $2, $3, $4, $5, now())
				ON CONFLICT DO NOTHING
			`, id, gofakeit.Name(), gofakeit.Email(), gofakeit.Phone(), gofakeit.SSN())
			if err != nil {
				_ = tx.Rollback(ctx)
				return uuid.Nil, err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return uuid.Nil, err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("citizens progress")
	}

	logger.Info().Msg("citizens seeded")
	return first, nil
}

// printToken logs a long-lived token for manual API calls.
func printToken(logger zerolog.Logger, secret string, actor appointment.Actor) {
	token, err := auth.IssueToken(actor, secret, 24*time.Hour)
	if err != nil {
		logger.Error().Err(err).Msg("issue token")
		return
	}
	logger.Info().
		Str("role", string(actor.Role)).
		Str("actor_id", actor.ID.String()).
		Str("token", token).
		Msg("sample token")
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
