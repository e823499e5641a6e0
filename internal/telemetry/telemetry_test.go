package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_WithNoopProvider(t *testing.T) {
	m, err := New(noop.NewMeterProvider())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.Simulation(context.Background(), "baseline", 3)
		m.RouteFailure(context.Background(), "rate_limited")
		m.Collection(context.Background(), "traffic", true)
	})
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Simulation(context.Background(), "baseline", 1)
		m.RouteFailure(context.Background(), "status")
		m.Collection(context.Background(), "noise", false)
	})
	assert.NotPanics(t, func() {
		(&Metrics{}).Simulation(context.Background(), "cumulative", 1)
	})
}
