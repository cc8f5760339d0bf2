package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveReservation("reserved")
	m.ObserveReservation("reserved")
	m.ObserveReservation("slot_unavailable")
	m.ObserveTransition("confirm", "ok")
	m.ObserveHTTP("POST", "/appointments", 201, 0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservations.WithLabelValues("reserved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("confirm", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 3)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveReservation("reserved")
	m.ObserveTransition("cancel", "invalid_transition")
	m.ObserveHTTP("GET", "/health/live", 200, 0.001)
}

func TestSetupTracingWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "api-server", "test", "")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
