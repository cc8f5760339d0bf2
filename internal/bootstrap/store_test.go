package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/citizen-appointments/internal/catalog"
	"github.com/hackgods/citizen-appointments/internal/config"
)

func TestOpenMemoryStore(t *testing.T) {
	s, err := OpenStore(context.Background(), config.Config{StoreBackend: config.BackendMemory}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Pool)
	assert.Empty(t, s.Checks)
	services, err := s.Catalog.ListServices(context.Background())
	require.NoError(t, err)
	assert.Len(t, services, len(catalog.DefaultServices()))

	held, err := s.Repo.HeldSlots(context.Background(), catalog.BirthCertificateID, time.Date(2024, 7, 22, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	_, err := OpenStore(context.Background(), config.Config{StoreBackend: "cassandra"}, zerolog.Nop())
	assert.ErrorContains(t, err, "cassandra")
}
