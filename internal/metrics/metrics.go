// Package metrics records image pipeline counters through OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "vignette"

// Metrics holds the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	uploads            metric.Int64Counter
	lookups            metric.Int64Counter
	generations        metric.Int64Counter
	generationDuration metric.Float64Histogram
	collapsed          metric.Int64Counter
	fallbacks          metric.Int64Counter
	deletes            metric.Int64Counter
	gcReclaimed        metric.Int64Counter
}

// New creates instruments on the global meter provider.
func New() (*Metrics, error) {
	return NewWithMeter(otel.GetMeterProvider().Meter(instrumentationName))
}

// NewWithMeter creates instruments on meter.
func NewWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.uploads, err = meter.Int64Counter("vignette.uploads.total",
		metric.WithDescription("Original images accepted or rejected"),
		metric.WithUnit("{upload}")); err != nil {
		return nil, err
	}
	if m.lookups, err = meter.Int64Counter("vignette.derivative.lookups.total",
		metric.WithDescription("Derivative lookups by result"),
		metric.WithUnit("{lookup}")); err != nil {
		return nil, err
	}
	if m.generations, err = meter.Int64Counter("vignette.derivative.generations.total",
		metric.WithDescription("Derivative generations by outcome"),
		metric.WithUnit("{generation}")); err != nil {
		return nil, err
	}
	if m.generationDuration, err = meter.Float64Histogram("vignette.derivative.generation.duration",
		metric.WithDescription("Time spent producing one derivative"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10)); err != nil {
		return nil, err
	}
	if m.collapsed, err = meter.Int64Counter("vignette.derivative.collapsed.total",
		metric.WithDescription("Requests that joined an in-flight generation"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter("vignette.derivative.fallbacks.total",
		metric.WithDescription("Requests served a fallback instead of a derivative"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.deletes, err = meter.Int64Counter("vignette.images.deleted.total",
		metric.WithDescription("Image records deleted"),
		metric.WithUnit("{image}")); err != nil {
		return nil, err
	}
	if m.gcReclaimed, err = meter.Int64Counter("vignette.gc.reclaimed.bytes",
		metric.WithDescription("Bytes reclaimed by garbage collection"),
		metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Upload(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Lookup records a derivative lookup result: hit, miss or stale.
func (m *Metrics) Lookup(ctx context.Context, preset, result string) {
	if m == nil {
		return
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("preset", preset),
		attribute.String("result", result),
	))
}

func (m *Metrics) Generation(ctx context.Context, preset, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("preset", preset),
		attribute.String("outcome", outcome),
	)
	m.generations.Add(ctx, 1, attrs)
	m.generationDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) Collapsed(ctx context.Context, preset string) {
	if m == nil {
		return
	}
	m.collapsed.Add(ctx, 1, metric.WithAttributes(attribute.String("preset", preset)))
}

// Fallback records a placeholder or original served in place of a derivative.
func (m *Metrics) Fallback(ctx context.Context, preset, kind string) {
	if m == nil {
		return
	}
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("preset", preset),
		attribute.String("kind", kind),
	))
}

func (m *Metrics) Deleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.deletes.Add(ctx, 1)
}

func (m *Metrics) Reclaimed(ctx context.Context, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.gcReclaimed.Add(ctx, bytes)
}
