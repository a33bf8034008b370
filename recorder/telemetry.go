package recorder

import (
	"context"
	"errors"

	"github.com/dogmatiq/recorderkit/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/slog"
)

// WithTelemetry returns a [Store] that instruments the recorders of next
// with OpenTelemetry spans and metrics, and with structured logging.
//
// Any of the providers and the logger may be nil, in which case the
// corresponding telemetry is discarded.
func WithTelemetry(
	next Store,
	tracerProvider trace.TracerProvider,
	meterProvider metric.MeterProvider,
	logger *slog.Logger,
) Store {
	return &telemetryStore{
		next,
		tracerProvider,
		meterProvider,
		logger,
	}
}

type telemetryStore struct {
	next           Store
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	logger         *slog.Logger
}

func (s *telemetryStore) Open(ctx context.Context, application string) (ProcessRecorder, error) {
	r := telemetry.New(
		"github.com/dogmatiq/recorderkit/recorder",
		s.tracerProvider,
		s.meterProvider,
		s.logger,
		telemetry.Type("store", s.next),
		telemetry.String("application", application),
	)

	ctx, span := r.StartSpan(ctx, "recorder.open")
	defer span.End()

	next, err := s.next.Open(ctx, application)
	if err != nil {
		span.Error("could not open recorder", err)
		return nil, err
	}

	rec := &telemetryRecorder{
		next:      next,
		telemetry: r,
		openCount: r.UpDownCounter(
			"open_recorders",
			"{recorder}",
			"The number of recorders that are currently open.",
		),
		conflictCount: r.Counter(
			"conflicts",
			"{conflict}",
			"The number of inserts that have been rejected by an integrity constraint.",
		),
		eventIO: r.Counter(
			"event.io",
			"{event}",
			"The number of events that have been read and written.",
		),
		dataIO: r.Counter(
			"io",
			"By",
			"The cumulative size of the event payloads that have been read and written.",
		),
		eventSize: r.Histogram(
			"event.size",
			"By",
			"The sizes of the event payloads that have been read and written.",
		),
	}

	rec.openCount(ctx, 1)
	span.Debug("opened recorder")

	return rec, nil
}

type telemetryRecorder struct {
	next      ProcessRecorder
	telemetry *telemetry.Recorder
	closed    bool

	openCount     telemetry.Instrument[int64]
	conflictCount telemetry.Instrument[int64]
	eventIO       telemetry.Instrument[int64]
	dataIO        telemetry.Instrument[int64]
	eventSize     telemetry.Instrument[int64]
}

func (r *telemetryRecorder) InsertEvents(ctx context.Context, events []StoredEvent) error {
	ctx, span := r.telemetry.StartSpan(
		ctx,
		"recorder.insert_events",
		telemetry.Int("event_count", len(events)),
	)
	defer span.End()

	r.recordEventIO(ctx, telemetry.WriteDirection, events)

	if err := r.next.InsertEvents(ctx, events); err != nil {
		r.fail(ctx, span, "unable to insert events", err)
		return err
	}

	span.Debug("events inserted")

	return nil
}

func (r *telemetryRecorder) SelectEvents(
	ctx context.Context,
	originatorID uuid.UUID,
	opts SelectOptions,
) ([]StoredEvent, error) {
	ctx, span := r.telemetry.StartSpan(
		ctx,
		"recorder.select_events",
		telemetry.UUID("originator_id", originatorID),
		telemetry.Int("after", opts.After),
		telemetry.Int("until", opts.Until),
		telemetry.Bool("desc", opts.Desc),
		telemetry.Int("limit", opts.Limit),
	)
	defer span.End()

	events, err := r.next.SelectEvents(ctx, originatorID, opts)
	if err != nil {
		span.Error("unable to select events", err)
		return nil, err
	}

	r.recordEventIO(ctx, telemetry.ReadDirection, events)

	span.SetAttributes(
		telemetry.Int("event_count", len(events)),
	)
	span.Debug("events selected")

	return events, nil
}

func (r *telemetryRecorder) SelectNotifications(
	ctx context.Context,
	start int64,
	limit int,
) ([]Notification, error) {
	ctx, span := r.telemetry.StartSpan(
		ctx,
		"recorder.select_notifications",
		telemetry.Int("start", start),
		telemetry.Int("limit", limit),
	)
	defer span.End()

	notifs, err := r.next.SelectNotifications(ctx, start, limit)
	if err != nil {
		span.Error("unable to select notifications", err)
		return nil, err
	}

	for _, n := range notifs {
		size := int64(len(n.State))
		r.dataIO(ctx, size, telemetry.ReadDirection)
		r.eventIO(ctx, 1, telemetry.ReadDirection)
		r.eventSize(ctx, size, telemetry.ReadDirection)
	}

	span.SetAttributes(
		telemetry.Int("notification_count", len(notifs)),
	)
	span.Debug("notifications selected")

	return notifs, nil
}

func (r *telemetryRecorder) MaxNotificationID(ctx context.Context) (int64, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "recorder.max_notification_id")
	defer span.End()

	id, err := r.next.MaxNotificationID(ctx)
	if err != nil {
		span.Error("unable to fetch the maximum notification ID", err)
		return 0, err
	}

	span.SetAttributes(
		telemetry.Int("notification_id", id),
	)
	span.Debug("fetched the maximum notification ID")

	return id, nil
}

func (r *telemetryRecorder) InsertEventsWithTracking(
	ctx context.Context,
	events []StoredEvent,
	t Tracking,
) error {
	ctx, span := r.telemetry.StartSpan(
		ctx,
		"recorder.insert_events_with_tracking",
		telemetry.Int("event_count", len(events)),
		telemetry.String("upstream_application", t.ApplicationName),
		telemetry.Int("notification_id", t.NotificationID),
	)
	defer span.End()

	r.recordEventIO(ctx, telemetry.WriteDirection, events)

	if err := r.next.InsertEventsWithTracking(ctx, events, t); err != nil {
		r.fail(ctx, span, "unable to insert tracked events", err)
		return err
	}

	span.Debug("tracked events inserted")

	return nil
}

func (r *telemetryRecorder) MaxTrackingID(
	ctx context.Context,
	upstreamApplication string,
) (int64, error) {
	ctx, span := r.telemetry.StartSpan(
		ctx,
		"recorder.max_tracking_id",
		telemetry.String("upstream_application", upstreamApplication),
	)
	defer span.End()

	id, err := r.next.MaxTrackingID(ctx, upstreamApplication)
	if err != nil {
		span.Error("unable to fetch the maximum tracking ID", err)
		return 0, err
	}

	span.SetAttributes(
		telemetry.Int("notification_id", id),
	)
	span.Debug("fetched the maximum tracking ID")

	return id, nil
}

func (r *telemetryRecorder) Close() error {
	ctx, span := r.telemetry.StartSpan(context.Background(), "recorder.close")
	defer span.End()

	if r.closed {
		span.Warn("recorder is already closed")
		return nil
	}

	if err := r.next.Close(); err != nil {
		span.Error("could not close recorder", err)
		return err
	}

	r.closed = true
	r.openCount(ctx, -1)

	span.Debug("closed recorder")

	return nil
}

func (r *telemetryRecorder) recordEventIO(
	ctx context.Context,
	direction telemetry.Attr,
	events []StoredEvent,
) {
	for _, ev := range events {
		size := int64(len(ev.State))
		r.dataIO(ctx, size, direction)
		r.eventIO(ctx, 1, direction)
		r.eventSize(ctx, size, direction)
	}
}

func (r *telemetryRecorder) fail(
	ctx context.Context,
	span *telemetry.Span,
	message string,
	err error,
) {
	span.Error(message, err)

	if errors.Is(err, ErrIntegrity) {
		span.SetAttributes(
			telemetry.Bool("conflict", true),
		)
		r.conflictCount(ctx, 1)
	}
}
