package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/citizen-appointments/internal/api"
	"github.com/hackgods/citizen-appointments/internal/appointment"
	"github.com/hackgods/citizen-appointments/internal/bootstrap"
	"github.com/hackgods/citizen-appointments/internal/config"
	"github.com/hackgods/citizen-appointments/internal/events"
	"github.com/hackgods/citizen-appointments/internal/logging"
	"github.com/hackgods/citizen-appointments/internal/observability"
	redisclient "github.com/hackgods/citizen-appointments/internal/redis"
)

const streamMaxLen = 100_000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Init("api-server", cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store_backend", cfg.StoreBackend).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(rootCtx, "api-server", cfg.Version, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup error")
	}

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
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	sinks := events.Fanout{events.NewRedisStreamSink(rdb, cfg.EventStream, streamMaxLen)}
	if store.Pool != nil {
		sinks = append(sinks, events.NewPgEventLog(store.Pool))
	}

	metrics := observability.NewMetrics(nil)
	svc := appointment.NewService(store.Repo, store.Catalog, sinks, cfg,
		appointment.WithLogger(logger),
		appointment.WithMetrics(metrics))

	deps := make([]api.Dependency, 0, len(store.Checks)+1)
	for _, c := range store.Checks {
		deps = append(deps, api.Dependency{Name: c.Name, Critical: true, Ping: c.Ping})
	}
	deps = append(deps, api.Dependency{
		Name: "redis",
		Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	router := api.NewRouter(api.RouterConfig{
		Service:      svc,
		Catalog:      store.Catalog,
		Metrics:      metrics,
		Logger:       logger,
		JWTSecret:    cfg.JWTSecret,
		Dependencies: deps,
		Env:          cfg.Env,
		Version:      cfg.Version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown error")
	}

	logger.Info().Msg("api-server stopped")
}
