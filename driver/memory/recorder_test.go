package memory_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/dogmatiq/recorderkit/driver/memory"
	"github.com/dogmatiq/recorderkit/internal/test"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"pgregory.net/rapid"
)

func TestRecorderStore(t *testing.T) {
	recorder.RunTests(
		t,
		func(t *testing.T) recorder.Store {
			return &RecorderStore{}
		},
	)
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		rec := NewRecorder()

		const upstream = "<upstream>"

		streams := map[uuid.UUID][]recorder.StoredEvent{}
		var log []recorder.Notification
		tracked := map[int64]struct{}{}
		var maxTracked int64

		newBatch := func(t *rapid.T, id uuid.UUID, first int64) []recorder.StoredEvent {
			n := rapid.
				IntRange(1, 3).
				Draw(t, "batch size")

			var events []recorder.StoredEvent
			for v := first; v < first+int64(n); v++ {
				events = append(
					events,
					recorder.StoredEvent{
						OriginatorID:      id,
						OriginatorVersion: v,
						Topic:             fmt.Sprintf("<topic-%d>", v),
						State:             []byte(fmt.Sprintf("<state-%d>", v)),
					},
				)
			}

			return events
		}

		record := func(events []recorder.StoredEvent) {
			for _, ev := range events {
				streams[ev.OriginatorID] = append(streams[ev.OriginatorID], ev)
				log = append(
					log,
					recorder.Notification{
						ID:          int64(len(log)) + 1,
						StoredEvent: ev,
					},
				)
			}
		}

		existing := func(t *rapid.T) (uuid.UUID, bool) {
			if len(streams) == 0 {
				return uuid.UUID{}, false
			}

			// Map iteration order is not stable, but draws must be
			// reproducible for rapid to shrink failures.
			ids := maps.Keys(streams)
			slices.SortFunc(ids, func(a, b uuid.UUID) int {
				return bytes.Compare(a[:], b[:])
			})

			return rapid.
				SampledFrom(ids).
				Draw(t, "originator"), true
		}

		t.Repeat(
			map[string]func(*rapid.T){
				"start a new aggregate": func(t *rapid.T) {
					id := uuid.New()
					events := newBatch(t, id, recorder.InitialVersion)

					if err := rec.InsertEvents(ctx, events); err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					record(events)
				},
				"extend an existing aggregate": func(t *rapid.T) {
					id, ok := existing(t)
					if !ok {
						t.Skip("no aggregates")
					}

					next := int64(len(streams[id])) + recorder.InitialVersion
					events := newBatch(t, id, next)

					if err := rec.InsertEvents(ctx, events); err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					record(events)
				},
				"rewrite an existing version": func(t *rapid.T) {
					id, ok := existing(t)
					if !ok {
						t.Skip("no aggregates")
					}

					v := rapid.
						Int64Range(
							recorder.InitialVersion,
							int64(len(streams[id])),
						).
						Draw(t, "version")

					err := rec.InsertEvents(ctx, newBatch(t, id, v))
					if !errors.Is(err, recorder.ErrIntegrity) {
						t.Fatalf("unexpected error: %v", err)
					}
				},
				"leave a version gap": func(t *rapid.T) {
					id, ok := existing(t)
					if !ok {
						t.Skip("no aggregates")
					}

					next := int64(len(streams[id])) + recorder.InitialVersion
					gap := rapid.
						Int64Range(1, 3).
						Draw(t, "gap")

					err := rec.InsertEvents(ctx, newBatch(t, id, next+gap))
					if !errors.Is(err, recorder.ErrIntegrity) {
						t.Fatalf("unexpected error: %v", err)
					}
				},
				"track a notification": func(t *rapid.T) {
					id := rapid.
						Int64Range(1, 20).
						Draw(t, "notification")

					err := rec.InsertEventsWithTracking(
						ctx,
						nil,
						recorder.Tracking{
							ApplicationName: upstream,
							NotificationID:  id,
						},
					)

					if _, ok := tracked[id]; ok {
						if !errors.Is(err, recorder.ErrIntegrity) {
							t.Fatalf("unexpected error: %v", err)
						}
						return
					}

					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					tracked[id] = struct{}{}
					if id > maxTracked {
						maxTracked = id
					}
				},
				"read a stream": func(t *rapid.T) {
					id, ok := existing(t)
					if !ok {
						id = uuid.New()
					}

					events, err := rec.SelectEvents(ctx, id, recorder.SelectOptions{})
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					test.Expect(
						t,
						"unexpected events",
						events,
						streams[id],
					)
				},
				"read the notification log": func(t *rapid.T) {
					notifications, err := rec.SelectNotifications(
						ctx,
						1,
						len(log)+1,
					)
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					test.Expect(
						t,
						"unexpected notifications",
						notifications,
						log,
					)
				},
				"read the maximum notification ID": func(t *rapid.T) {
					id, err := rec.MaxNotificationID(ctx)
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					if want := int64(len(log)); id != want {
						t.Fatalf(
							"unexpected maximum notification ID: got %d, want %d",
							id,
							want,
						)
					}
				},
				"read the maximum tracking ID": func(t *rapid.T) {
					id, err := rec.MaxTrackingID(ctx, upstream)
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}

					if id != maxTracked {
						t.Fatalf(
							"unexpected maximum tracking ID: got %d, want %d",
							id,
							maxTracked,
						)
					}
				},
			},
		)
	})
}
