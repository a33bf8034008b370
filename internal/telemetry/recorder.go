package telemetry

import (
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/exp/slog"
)

// A Recorder records traces, metrics and log records for a particular
// subsystem.
type Recorder struct {
	Name   string
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	attrs attribute.Set
}

// New returns a recorder for the subsystem with the given name.
//
// Any of the providers and the logger may be nil, in which case the
// corresponding telemetry is discarded.
func New(
	name string,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	logger *slog.Logger,
	attrs ...Attr,
) *Recorder {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}

	if logger == nil {
		logger = slog.New(
			slog.NewTextHandler(io.Discard, nil),
		)
	}

	return &Recorder{
		Name:   name,
		Tracer: tp.Tracer(name),
		Meter:  mp.Meter(name),
		Logger: logger.With(asSlogAttrs(attrs)...),
		attrs:  attribute.NewSet(asKeyValues(attrs)...),
	}
}
