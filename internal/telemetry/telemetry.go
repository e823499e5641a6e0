// Package telemetry exposes the OpenTelemetry instruments used by the twin.
// Without an installed SDK the global meter provider is a no-op.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/bikehood/twin"

// Metrics holds the service counters
type Metrics struct {
	simulations   metric.Int64Counter
	impacts       metric.Int64Counter
	routeFailures metric.Int64Counter
	collections   metric.Int64Counter
}

// New creates counters on the given provider, or the global one when nil
func New(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	simulations, err := meter.Int64Counter("twin.simulations",
		metric.WithDescription("Simulation passes run"))
	if err != nil {
		return nil, err
	}
	impacts, err := meter.Int64Counter("twin.impacts_applied",
		metric.WithDescription("Marker impacts applied to roads and sensors"))
	if err != nil {
		return nil, err
	}
	routeFailures, err := meter.Int64Counter("twin.route_failures",
		metric.WithDescription("Route geometry requests that failed"))
	if err != nil {
		return nil, err
	}
	collections, err := meter.Int64Counter("twin.collections",
		metric.WithDescription("Collector snapshots saved"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		simulations:   simulations,
		impacts:       impacts,
		routeFailures: routeFailures,
		collections:   collections,
	}, nil
}

// Noop returns metrics bound to the global provider, ignoring errors
func Noop() *Metrics {
	m, err := New(nil)
	if err != nil {
		return &Metrics{}
	}
	return m
}

// Simulation records one simulate pass and how many impacts it applied
func (m *Metrics) Simulation(ctx context.Context, mode string, applied int) {
	if m == nil || m.simulations == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.simulations.Add(ctx, 1, attrs)
	m.impacts.Add(ctx, int64(applied), attrs)
}

// RouteFailure records a failed routing request
func (m *Metrics) RouteFailure(ctx context.Context, reason string) {
	if m == nil || m.routeFailures == nil {
		return
	}
	m.routeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Collection records a collector snapshot of the given kind
func (m *Metrics) Collection(ctx context.Context, kind string, mock bool) {
	if m == nil || m.collections == nil {
		return
	}
	m.collections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("mock", mock),
	))
}
