package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the server's counters. All methods are safe on the
// no-op provider, so callers never guard on Enabled().
type Metrics struct {
	httpRequests    metric.Int64Counter
	eventsPublished metric.Int64Counter
	eventsDropped   metric.Int64Counter
	backups         metric.Int64Counter
}

// NewMetrics registers the server counters on the global meter.
func NewMetrics() (*Metrics, error) {
	meter := Meter("")
	m := &Metrics{}
	var err error
	if m.httpRequests, err = meter.Int64Counter("kanban.http.requests",
		metric.WithDescription("HTTP requests served, by method, route, and status")); err != nil {
		return nil, err
	}
	if m.eventsPublished, err = meter.Int64Counter("kanban.events.published",
		metric.WithDescription("Events published to the hub, by type")); err != nil {
		return nil, err
	}
	if m.eventsDropped, err = meter.Int64Counter("kanban.events.dropped",
		metric.WithDescription("Events dropped from slow subscriber queues")); err != nil {
		return nil, err
	}
	if m.backups, err = meter.Int64Counter("kanban.backups",
		metric.WithDescription("Backup runs, by type and outcome")); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(ctx context.Context, method, route string, status int) {
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

// EventPublished records one hub publish.
func (m *Metrics) EventPublished(ctx context.Context, eventType string) {
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
	))
}

// EventDropped records an event discarded from a full subscriber queue.
func (m *Metrics) EventDropped(ctx context.Context) {
	m.eventsDropped.Add(ctx, 1)
}

// BackupRun records one backup attempt.
func (m *Metrics) BackupRun(ctx context.Context, backupType string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.backups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", backupType),
		attribute.String("outcome", outcome),
	))
}
