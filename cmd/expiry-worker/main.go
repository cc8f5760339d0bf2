package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/bootstrap"
	"github.com/hackgods/citizen-appointments/internal/config"
	"github.com/hackgods/citizen-appointments/internal/events"
	"github.com/hackgods/citizen-appointments/internal/logging"
	"github.com/hackgods/citizen-appointments/internal/observability"
	redisclient "github.com/hackgods/citizen-appointments/internal/redis"
)

const (
	jobName      = "expire-stale-pending"
	streamMaxLen = 100_000
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Init("expiry-worker", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.ExpirySchedule).
		Dur("stale_pending_ttl", cfg.StalePendingTTL).
		Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(rootCtx, "expiry-worker", cfg.Version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup error")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	storeCtx, cancelStore := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := bootstrap.OpenStore(storeCtx, cfg, logger)
	cancelStore()
	if err != nil {
		logger.Fatal().Err(err).Msg("store connection error")
	}
	defer store.Close()

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()

	sinks := events.Fanout{events.NewRedisStreamSink(rdb, cfg.EventStream, streamMaxLen)}
	if store.Pool != nil {
		sinks = append(sinks, events.NewPgEventLog(store.Pool))
	}

	svc := appointment.NewService(store.Repo, store.Catalog, sinks, cfg, appointment.WithLogger(logger))
	locker := redisclient.NewRedisJobLocker(rdb, cfg.LockTTL)

	sweep := func() { runOnce(rootCtx, svc, locker, logger) }

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	if _, err := c.AddFunc(cfg.ExpirySchedule, sweep); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.ExpirySchedule).Msg("invalid expiry schedule")
	}

	// Run once at startup
	sweep()

	c.Start()
	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping expiry worker")

	select {
	case <-c.Stop().Done():
	case <-time.After(cfg.ShutdownTimeout):
		logger.Warn().Msg("running sweep did not finish before shutdown timeout")
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, locker redisclient.Locker, logger zerolog.Logger) {
	start := time.Now()
	var expired int

	err := locker.WithLock(ctx, jobName, func(ctx context.Context) error {
		n, err := svc.ExpireStalePending(ctx)
		expired = n
		return err
	})
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		logger.Debug().Msg("another replica holds the expiry lock, skipping")
	case err != nil:
		logger.Error().Err(err).Int("expired", expired).Msg("expiry run error")
	default:
		logger.Info().Int("expired", expired).Dur("took", time.Since(start)).Msg("expiry run complete")
	}
}

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
