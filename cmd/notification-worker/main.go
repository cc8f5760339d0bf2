package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/hackgods/citizen-appointments/internal/awsclient"
	"github.com/hackgods/citizen-appointments/internal/config"
	"github.com/hackgods/citizen-appointments/internal/events"
	"github.com/hackgods/citizen-appointments/internal/logging"
	"github.com/hackgods/citizen-appointments/internal/notify"
	redisclient "github.com/hackgods/citizen-appointments/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Init("notification-worker", cfg.Env, cfg.LogLevel)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()

	var enqueuer notify.Enqueuer
	if cfg.NotifyQueueURL == "" {
		logger.Warn().Msg("NOTIFICATION_QUEUE_URL not set, notifications are only logged")
		enqueuer = notify.NewLogEnqueuer(logger)
	} else {
		awsCfg, err := awsclient.LoadConfig(rootCtx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("aws config error")
		}
		enqueuer = notify.NewSQSEnqueuer(awsclient.NewSQS(awsCfg), cfg.NotifyQueueURL)
	}
	trigger := notify.NewTrigger(enqueuer, logger)

	consumerName, err := os.Hostname()
	if err != nil || consumerName == "" {
		consumerName = "notification-worker"
	}
	consumer := events.NewStreamConsumer(rdb, cfg.EventStream, cfg.EventGroup, consumerName, logger)

	logger.Info().
		Str("stream", cfg.EventStream).
		Str("group", cfg.EventGroup).
		Str("consumer", consumerName).
		Msg("notification-worker consuming")

	if err := consumer.Run(rootCtx, trigger.Handle); err != nil {
		logger.Fatal().Err(err).Msg("stream consumer stopped")
	}
	logger.Info().Msg("notification-worker stopped")
}
