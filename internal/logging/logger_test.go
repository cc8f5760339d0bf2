package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestProductionLoggerWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger := initWithWriter(&buf, "api-server", "prod", "info")

	logger.Debug().Msg("hidden")
	logger.Info().Str("appointment_id", "a-1").Msg("appointment reserved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "api-server", entry["service"])
	assert.Equal(t, "appointment reserved", entry["message"])
	assert.Equal(t, "a-1", entry["appointment_id"])
}

func TestDevLoggerUsesConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := initWithWriter(&buf, "seed", "dev", "debug")

	logger.Debug().Msg("seeding services")

	assert.Contains(t, buf.String(), "seeding services")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}
