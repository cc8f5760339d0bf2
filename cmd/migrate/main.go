package main

import (
	"database/sql"
	"errors"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/citizen-appointments/internal/logging"
	appmigrations "github.com/hackgods/citizen-appointments/migrations"
)

// Usage: migrate [up|down|force <version>]
func main() {
	logger := logging.Init("migrate", os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("ping db")
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("db driver")
	}

	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		logger.Fatal().Err(err).Msg("source driver")
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Fatal().Err(err).Msg("create migrator")
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "force":
		if len(os.Args) < 3 {
			logger.Fatal().Msg("force needs a version")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid version")
		}
		if err := m.Force(version); err != nil {
			logger.Fatal().Err(err).Msg("force version")
		}
		logger.Info().Int("version", version).Msg("forced migration version")
		return
	case "down":
		err = m.Down()
	case "up":
		err = m.Up()
	default:
		logger.Fatal().Str("command", cmd).Msg("unknown command, want up, down or force")
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal().Err(err).Msg("read migration version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations complete")
}
