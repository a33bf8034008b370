package recorder

import (
	"context"

	"github.com/google/uuid"
)

// InitialVersion is the originator version of the first event in every
// aggregate's stream.
const InitialVersion int64 = 1

// A StoredEvent is a single serialized domain event within an aggregate's
// stream.
type StoredEvent struct {
	// OriginatorID is the identity of the aggregate that produced the event.
	OriginatorID uuid.UUID

	// OriginatorVersion is the position of the event within the aggregate's
	// stream. The first event is always at [InitialVersion]; each subsequent
	// event increments the version by exactly 1.
	OriginatorVersion int64

	// Topic describes the type of the event. It is opaque to the store.
	Topic string

	// State is the serialized representation of the event. It is opaque to
	// the store and is returned byte-for-byte as it was inserted.
	State []byte
}

// A Notification is a [StoredEvent] annotated with its position in an
// application's notification log.
type Notification struct {
	// ID is the store-assigned position of the event within the
	// application's notification log. IDs increase strictly in commit order
	// and are never reused, but they are not necessarily contiguous.
	ID int64

	StoredEvent
}

// A Tracking records the position of an upstream notification that has been
// processed by a downstream application.
type Tracking struct {
	// ApplicationName is the name of the upstream application.
	ApplicationName string

	// NotificationID is the position of the processed notification within
	// the upstream application's notification log.
	NotificationID int64
}

// SelectOptions controls the result of [AggregateRecorder.SelectEvents].
//
// The zero value selects the aggregate's entire stream in ascending version
// order.
type SelectOptions struct {
	// After, if non-zero, excludes events with versions less than or equal
	// to it.
	After int64

	// Until, if non-zero, excludes events with versions greater than it.
	Until int64

	// Desc orders the result by descending version.
	Desc bool

	// Limit, if non-zero, caps the number of events returned. It is applied
	// after ordering.
	Limit int
}

// An AggregateRecorder is an append-only store of the events produced by the
// aggregates of a single application.
type AggregateRecorder interface {
	// InsertEvents atomically appends a batch of events, which may span
	// multiple aggregates.
	//
	// For each aggregate in the batch the events must form a consecutive
	// ascending run of versions beginning immediately after the aggregate's
	// current maximum version, or at [InitialVersion] for a new aggregate.
	// If any event in the batch duplicates a stored version, or would leave
	// a gap in the stream, nothing is inserted and an error matching
	// [ErrIntegrity] is returned.
	//
	// An empty batch succeeds without effect.
	InsertEvents(ctx context.Context, events []StoredEvent) error

	// SelectEvents returns the events of a single aggregate, ordered by
	// version.
	SelectEvents(ctx context.Context, originatorID uuid.UUID, opts SelectOptions) ([]StoredEvent, error)

	// Close closes the recorder.
	Close() error
}

// An ApplicationRecorder is an [AggregateRecorder] that additionally exposes
// the application's events as a single totally-ordered notification log.
type ApplicationRecorder interface {
	AggregateRecorder

	// SelectNotifications returns up to limit committed notifications with
	// IDs greater than or equal to start, in ascending ID order.
	//
	// Polling with start set to one greater than the last ID seen observes
	// every notification exactly once: once a notification has been
	// returned, no notification with a lower ID will ever appear.
	SelectNotifications(ctx context.Context, start int64, limit int) ([]Notification, error)

	// MaxNotificationID returns the highest committed notification ID, or
	// zero if the application has no notifications.
	MaxNotificationID(ctx context.Context) (int64, error)
}

// A ProcessRecorder is an [ApplicationRecorder] for applications that are
// driven by an upstream application's notification log. It records how far
// along each upstream log the application has progressed, atomically with
// the events that the progress produces.
type ProcessRecorder interface {
	ApplicationRecorder

	// InsertEventsWithTracking atomically appends a batch of events and
	// records the upstream notification that caused them, in the same
	// transaction. The batch may be empty; the tracking record is inserted
	// regardless.
	//
	// The same (upstream application, notification ID) pair cannot be
	// recorded twice. A second attempt inserts nothing, not even the
	// events, and fails with an error matching [ErrIntegrity], making
	// redelivery of an upstream notification harmless.
	InsertEventsWithTracking(ctx context.Context, events []StoredEvent, t Tracking) error

	// MaxTrackingID returns the highest notification ID recorded against
	// the named upstream application, or zero if none has been recorded.
	MaxTrackingID(ctx context.Context, upstreamApplication string) (int64, error)
}
