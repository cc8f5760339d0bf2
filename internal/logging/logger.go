package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger for a process and returns it.
func Init(service, env, level string) zerolog.Logger {
	return initWithWriter(os.Stdout, service, env, level)
}

func initWithWriter(out io.Writer, service, env, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var logger zerolog.Logger
	if env == "dev" || env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}).With().
			Timestamp().
			Str("service", service).
			Logger()
	} else {
		logger = zerolog.New(out).
			With().
			Timestamp().
			Caller().
			Str("service", service).
			Logger()
	}

	logger = logger.Level(parseLevel(level))
	log.Logger = logger
	return logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
