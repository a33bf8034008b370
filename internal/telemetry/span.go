package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slog"
)

// Span represents a single named and timed operation of a workflow.
type Span struct {
	recorder *Recorder
	ctx      context.Context
	span     trace.Span
	logger   *slog.Logger
}

// StartSpan starts a new span.
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, *Span) {
	ctx, span := r.Tracer.Start(
		ctx,
		name,
		trace.WithAttributes(r.attrs.ToSlice()...),
		trace.WithAttributes(asKeyValues(attrs)...),
	)

	logger := r.Logger.With(
		slog.String("span_name", name),
	)
	logger = logger.With(asSlogAttrs(attrs)...)

	if sctx := span.SpanContext(); sctx.HasSpanID() {
		logger = logger.With(
			slog.String("span_id", sctx.SpanID().String()),
		)
	}

	return ctx, &Span{
		r,
		ctx,
		span,
		logger,
	}
}

// End completes the span.
func (s *Span) End() {
	s.span.End()
}

// SetAttributes sets attributes on the span.
func (s *Span) SetAttributes(attrs ...Attr) {
	s.span.SetAttributes(asKeyValues(attrs)...)
}

// Debug logs a debug-level message and adds it to the span as an event.
func (s *Span) Debug(message string, attrs ...Attr) {
	s.span.AddEvent(
		message,
		trace.WithAttributes(asKeyValues(attrs)...),
	)
	s.logger.DebugContext(s.ctx, message, asSlogAttrs(attrs)...)
}

// Info logs an informational message and adds it to the span as an event.
func (s *Span) Info(message string, attrs ...Attr) {
	s.span.AddEvent(
		message,
		trace.WithAttributes(asKeyValues(attrs)...),
	)
	s.logger.InfoContext(s.ctx, message, asSlogAttrs(attrs)...)
}

// Warn logs a warning message and adds it to the span as an event.
func (s *Span) Warn(message string, attrs ...Attr) {
	s.span.AddEvent(
		message,
		trace.WithAttributes(asKeyValues(attrs)...),
	)
	s.logger.WarnContext(s.ctx, message, asSlogAttrs(attrs)...)
}

// Error logs an error message and marks the span as failed.
func (s *Span) Error(message string, err error, attrs ...Attr) {
	s.span.RecordError(
		err,
		trace.WithAttributes(asKeyValues(attrs)...),
	)
	s.span.SetStatus(codes.Error, err.Error())

	sattrs := append(
		asSlogAttrs(attrs),
		slog.String("error", err.Error()),
	)
	s.logger.ErrorContext(s.ctx, message, sattrs...)
}
