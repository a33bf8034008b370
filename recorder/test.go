package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dogmatiq/recorderkit/internal/test"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunTests runs tests that confirm a store implementation behaves correctly.
func RunTests(
	t *testing.T,
	newStore func(t *testing.T) Store,
) {
	newRecorder := func(t *testing.T) ProcessRecorder {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		store := newStore(t)

		rec, err := store.Open(ctx, uuid.NewString())
		if err != nil {
			t.Fatal(err)
		}

		t.Cleanup(func() {
			if err := rec.Close(); err != nil {
				t.Fatal(err)
			}
		})

		return rec
	}

	t.Run("type Store", func(t *testing.T) {
		t.Run("func Open()", func(t *testing.T) {
			t.Run("it rejects an empty application name", func(t *testing.T) {
				t.Parallel()

				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()

				store := newStore(t)

				if _, err := store.Open(ctx, ""); !errors.Is(err, ErrProgramming) {
					t.Fatalf("expected an error matching ErrProgramming, got %v", err)
				}
			})

			t.Run("it isolates applications that share a backend", func(t *testing.T) {
				t.Parallel()

				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()

				store := newStore(t)

				up := openApplication(ctx, t, store)
				down := openApplication(ctx, t, store)

				originator := uuid.New()

				if err := up.InsertEvents(ctx, newEvents(originator, 1, 2)); err != nil {
					t.Fatal(err)
				}

				events, err := down.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 0 {
					t.Fatalf("expected no events to cross applications, got %d", len(events))
				}

				id, err := down.MaxNotificationID(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if id != 0 {
					t.Fatalf("expected no notifications to cross applications, got ID %d", id)
				}

				// The same originator and versions insert cleanly under the
				// second application, so uniqueness is scoped per
				// application as well.
				if err := down.InsertEvents(ctx, newEvents(originator, 1, 2)); err != nil {
					t.Fatal(err)
				}
			})

			t.Run("it allows an application to be opened multiple times", func(t *testing.T) {
				t.Parallel()

				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()

				store := newStore(t)
				app := uuid.NewString()

				r1, err := store.Open(ctx, app)
				if err != nil {
					t.Fatal(err)
				}
				defer r1.Close()

				r2, err := store.Open(ctx, app)
				if err != nil {
					t.Fatal(err)
				}
				defer r2.Close()

				originator := uuid.New()
				expect := newEvents(originator, 1, 2, 3)

				if err := r1.InsertEvents(ctx, expect); err != nil {
					t.Fatal(err)
				}

				actual, err := r2.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"recorders opened separately did not observe the same stream",
					actual,
					expect,
				)
			})

			t.Run("it enforces optimistic concurrency across recorders", func(t *testing.T) {
				t.Parallel()

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				store := newStore(t)
				app := uuid.NewString()

				r1, err := store.Open(ctx, app)
				if err != nil {
					t.Fatal(err)
				}
				defer r1.Close()

				r2, err := store.Open(ctx, app)
				if err != nil {
					t.Fatal(err)
				}
				defer r2.Close()

				originator := uuid.New()

				var wins atomic.Int32
				g, gctx := errgroup.WithContext(ctx)

				for _, rec := range []ProcessRecorder{r1, r2} {
					rec := rec

					g.Go(func() error {
						err := rec.InsertEvents(gctx, newEvents(originator, 1))
						if err == nil {
							wins.Add(1)
							return nil
						}
						if errors.Is(err, ErrIntegrity) {
							return nil
						}
						return err
					})
				}

				if err := g.Wait(); err != nil {
					t.Fatal(err)
				}

				if n := wins.Load(); n != 1 {
					t.Fatalf("expected exactly one append to win, got %d", n)
				}

				events, err := r1.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 1 {
					t.Fatalf("unexpected number of events, want 1, got %d", len(events))
				}
			})
		})
	})

	RunAggregateRecorderTests(
		t,
		func(t *testing.T) AggregateRecorder {
			return newRecorder(t)
		},
	)

	t.Run("type ApplicationRecorder", func(t *testing.T) {
		t.Run("func SelectNotifications()", func(t *testing.T) {
			t.Run("it returns an empty result when the log is empty", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				notifs, err := rec.SelectNotifications(ctx, 1, 10)
				if err != nil {
					t.Fatal(err)
				}
				if len(notifs) != 0 {
					t.Fatalf("expected an empty log, got %d notifications", len(notifs))
				}
			})

			t.Run("it assigns strictly increasing IDs in insert order", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				a := uuid.New()
				b := uuid.New()

				var expect []StoredEvent
				for _, batch := range [][]StoredEvent{
					newEvents(a, 1, 2),
					newEvents(b, 1),
					newEvents(a, 3),
				} {
					if err := rec.InsertEvents(ctx, batch); err != nil {
						t.Fatal(err)
					}
					expect = append(expect, batch...)
				}

				notifs, err := rec.SelectNotifications(ctx, 1, len(expect)+1)
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"notifications did not preserve insert order",
					storedEventsOf(notifs),
					expect,
				)

				requireAscendingIDs(t, notifs)
			})

			t.Run("it includes the notification with the start ID", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				if err := rec.InsertEvents(ctx, newEvents(originator, 1, 2, 3)); err != nil {
					t.Fatal(err)
				}

				all, err := rec.SelectNotifications(ctx, 1, 10)
				if err != nil {
					t.Fatal(err)
				}
				if len(all) != 3 {
					t.Fatalf("unexpected number of notifications, want 3, got %d", len(all))
				}

				tail, err := rec.SelectNotifications(ctx, all[1].ID, 10)
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the notification with the start ID was not included",
					tail,
					all[1:],
				)
			})

			t.Run("it limits the result", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				if err := rec.InsertEvents(ctx, newEvents(originator, 1, 2, 3)); err != nil {
					t.Fatal(err)
				}

				notifs, err := rec.SelectNotifications(ctx, 1, 2)
				if err != nil {
					t.Fatal(err)
				}
				if len(notifs) != 2 {
					t.Fatalf("unexpected number of notifications, want 2, got %d", len(notifs))
				}

				notifs, err = rec.SelectNotifications(ctx, 1, 0)
				if err != nil {
					t.Fatal(err)
				}
				if len(notifs) != 0 {
					t.Fatalf("expected an empty result for a non-positive limit, got %d", len(notifs))
				}
			})

			t.Run("it pages without gaps or repeats", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				var expect []StoredEvent
				for _, originator := range []uuid.UUID{uuid.New(), uuid.New()} {
					batch := newEvents(originator, 1, 2, 3)
					if err := rec.InsertEvents(ctx, batch); err != nil {
						t.Fatal(err)
					}
					expect = append(expect, batch...)
				}

				var pages []Notification
				start := int64(1)
				for {
					page, err := rec.SelectNotifications(ctx, start, 2)
					if err != nil {
						t.Fatal(err)
					}
					if len(page) == 0 {
						break
					}

					pages = append(pages, page...)
					start = page[len(page)-1].ID + 1
				}

				test.Expect(
					t,
					"paging did not reproduce the full log",
					storedEventsOf(pages),
					expect,
				)

				requireAscendingIDs(t, pages)
			})

			t.Run("it never yields notifications out of order while writers append", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				const (
					writers = 3
					batches = 5
				)

				g, gctx := errgroup.WithContext(ctx)

				for w := 0; w < writers; w++ {
					g.Go(func() error {
						originator := uuid.New()
						for v := int64(1); v <= batches; v++ {
							if err := rec.InsertEvents(gctx, newEvents(originator, v)); err != nil {
								return err
							}
						}
						return nil
					})
				}

				var observed []Notification
				g.Go(func() error {
					start := int64(1)
					for len(observed) < writers*batches {
						if err := gctx.Err(); err != nil {
							return err
						}

						page, err := rec.SelectNotifications(gctx, start, 3)
						if err != nil {
							return err
						}
						if len(page) == 0 {
							continue
						}

						observed = append(observed, page...)
						start = page[len(page)-1].ID + 1
					}
					return nil
				})

				if err := g.Wait(); err != nil {
					t.Fatal(err)
				}

				requireAscendingIDs(t, observed)

				// Replaying the log from the start yields exactly the
				// notifications the poller observed.
				replay, err := rec.SelectNotifications(ctx, 1, writers*batches+1)
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the polled log did not match a full replay",
					observed,
					replay,
				)
			})
		})

		t.Run("func MaxNotificationID()", func(t *testing.T) {
			t.Run("it returns zero when the log is empty", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				id, err := rec.MaxNotificationID(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if id != 0 {
					t.Fatalf("unexpected ID, want 0, got %d", id)
				}
			})

			t.Run("it returns the ID of the most recent notification", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				if err := rec.InsertEvents(ctx, newEvents(originator, 1, 2, 3)); err != nil {
					t.Fatal(err)
				}

				notifs, err := rec.SelectNotifications(ctx, 1, 10)
				if err != nil {
					t.Fatal(err)
				}

				id, err := rec.MaxNotificationID(ctx)
				if err != nil {
					t.Fatal(err)
				}

				if want := notifs[len(notifs)-1].ID; id != want {
					t.Fatalf("unexpected ID, want %d, got %d", want, id)
				}
			})
		})
	})

	t.Run("type ProcessRecorder", func(t *testing.T) {
		t.Run("func InsertEventsWithTracking()", func(t *testing.T) {
			t.Run("it records tracking atomically with the events", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				expect := newEvents(originator, 1, 2)

				err := rec.InsertEventsWithTracking(
					ctx,
					expect,
					Tracking{ApplicationName: "<upstream>", NotificationID: 1},
				)
				if err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"tracked events were not stored",
					actual,
					expect,
				)

				id, err := rec.MaxTrackingID(ctx, "<upstream>")
				if err != nil {
					t.Fatal(err)
				}
				if id != 1 {
					t.Fatalf("unexpected tracking ID, want 1, got %d", id)
				}
			})

			t.Run("it accepts an empty batch", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				err := rec.InsertEventsWithTracking(
					ctx,
					nil,
					Tracking{ApplicationName: "<upstream>", NotificationID: 5},
				)
				if err != nil {
					t.Fatal(err)
				}

				id, err := rec.MaxTrackingID(ctx, "<upstream>")
				if err != nil {
					t.Fatal(err)
				}
				if id != 5 {
					t.Fatalf("unexpected tracking ID, want 5, got %d", id)
				}

				max, err := rec.MaxNotificationID(ctx)
				if err != nil {
					t.Fatal(err)
				}
				if max != 0 {
					t.Fatalf("expected no notifications, got ID %d", max)
				}
			})

			t.Run("it rejects a duplicate tracking record", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				tr := Tracking{ApplicationName: "<upstream>", NotificationID: 1}

				a := uuid.New()
				if err := rec.InsertEventsWithTracking(ctx, newEvents(a, 1), tr); err != nil {
					t.Fatal(err)
				}

				// Redelivery: the same upstream notification arrives again
				// and produces different events.
				b := uuid.New()
				err := rec.InsertEventsWithTracking(ctx, newEvents(b, 1), tr)
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				events, err := rec.SelectEvents(ctx, b, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 0 {
					t.Fatalf("expected the redelivered events to be discarded, got %d", len(events))
				}
			})

			t.Run("it records no tracking when the events are rejected", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				if err := rec.InsertEvents(ctx, newEvents(originator, 1)); err != nil {
					t.Fatal(err)
				}

				err := rec.InsertEventsWithTracking(
					ctx,
					newEvents(originator, 1), // conflicts
					Tracking{ApplicationName: "<upstream>", NotificationID: 9},
				)
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				id, err := rec.MaxTrackingID(ctx, "<upstream>")
				if err != nil {
					t.Fatal(err)
				}
				if id != 0 {
					t.Fatalf("expected no tracking to be recorded, got ID %d", id)
				}
			})

			t.Run("it tracks each upstream application independently", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				for _, upstream := range []string{"<upstream-a>", "<upstream-b>"} {
					err := rec.InsertEventsWithTracking(
						ctx,
						nil,
						Tracking{ApplicationName: upstream, NotificationID: 3},
					)
					if err != nil {
						t.Fatal(err)
					}
				}

				for _, upstream := range []string{"<upstream-a>", "<upstream-b>"} {
					id, err := rec.MaxTrackingID(ctx, upstream)
					if err != nil {
						t.Fatal(err)
					}
					if id != 3 {
						t.Fatalf("unexpected tracking ID for %s, want 3, got %d", upstream, id)
					}
				}
			})
		})

		t.Run("func MaxTrackingID()", func(t *testing.T) {
			t.Run("it returns zero when nothing has been tracked", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				id, err := rec.MaxTrackingID(ctx, "<upstream>")
				if err != nil {
					t.Fatal(err)
				}
				if id != 0 {
					t.Fatalf("unexpected tracking ID, want 0, got %d", id)
				}
			})

			t.Run("it returns the highest recorded notification ID", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				// Tracking IDs need not be contiguous; a consumer may skip
				// notifications that require no action.
				for _, id := range []int64{1, 2, 5} {
					err := rec.InsertEventsWithTracking(
						ctx,
						nil,
						Tracking{ApplicationName: "<upstream>", NotificationID: id},
					)
					if err != nil {
						t.Fatal(err)
					}
				}

				id, err := rec.MaxTrackingID(ctx, "<upstream>")
				if err != nil {
					t.Fatal(err)
				}
				if id != 5 {
					t.Fatalf("unexpected tracking ID, want 5, got %d", id)
				}
			})
		})
	})
}

// RunAggregateRecorderTests runs the subset of [RunTests] that exercises the
// [AggregateRecorder] interface only. It is intended for stores that cannot
// provide the wider capability sets.
func RunAggregateRecorderTests(
	t *testing.T,
	newRecorder func(t *testing.T) AggregateRecorder,
) {
	t.Run("type AggregateRecorder", func(t *testing.T) {
		t.Run("func InsertEvents()", func(t *testing.T) {
			t.Run("it accepts an empty batch", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				if err := rec.InsertEvents(ctx, nil); err != nil {
					t.Fatal(err)
				}
			})

			t.Run("it starts each aggregate at the initial version", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				expect := newEvents(originator, 1)

				if err := rec.InsertEvents(ctx, expect); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the first event did not round-trip",
					actual,
					expect,
				)
			})

			t.Run("it appends consecutive batches", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()

				if err := rec.InsertEvents(ctx, newEvents(originator, 1, 2)); err != nil {
					t.Fatal(err)
				}
				if err := rec.InsertEvents(ctx, newEvents(originator, 3, 4)); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"consecutive batches did not form a single stream",
					actual,
					newEvents(originator, 1, 2, 3, 4),
				)
			})

			t.Run("it appends a batch that spans multiple aggregates", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				a := uuid.New()
				b := uuid.New()

				batch := []StoredEvent{
					newEvents(a, 1)[0],
					newEvents(b, 1)[0],
					newEvents(a, 2)[0],
				}

				if err := rec.InsertEvents(ctx, batch); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, a, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				test.Expect(
					t,
					"the first aggregate's events did not round-trip",
					actual,
					newEvents(a, 1, 2),
				)

				actual, err = rec.SelectEvents(ctx, b, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				test.Expect(
					t,
					"the second aggregate's events did not round-trip",
					actual,
					newEvents(b, 1),
				)
			})

			t.Run("it stores payloads byte-for-byte", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				expect := []StoredEvent{
					{
						OriginatorID:      originator,
						OriginatorVersion: 1,
						Topic:             "<binary>",
						State:             []byte{0x00, 0xff, 0x10, 0x80, 0x7f},
					},
					{
						OriginatorID:      originator,
						OriginatorVersion: 2,
						Topic:             "<empty>",
						State:             nil,
					},
				}

				if err := rec.InsertEvents(ctx, expect); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"payloads were not returned byte-for-byte",
					actual,
					expect,
				)
			})

			t.Run("it rejects an insert below the initial version", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()

				err := rec.InsertEvents(ctx, []StoredEvent{{
					OriginatorID:      originator,
					OriginatorVersion: 0,
					Topic:             "<topic>",
				}})
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}
			})

			t.Run("it rejects a new aggregate that does not start at the initial version", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()

				err := rec.InsertEvents(ctx, newEvents(originator, 2, 3))
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				events, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 0 {
					t.Fatalf("expected nothing to be inserted, got %d events", len(events))
				}
			})

			t.Run("it rejects a duplicate version", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				expect := newEvents(originator, 1, 2)

				if err := rec.InsertEvents(ctx, expect); err != nil {
					t.Fatal(err)
				}

				err := rec.InsertEvents(ctx, newEvents(originator, 2))
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the stream changed after a rejected insert",
					actual,
					expect,
				)
			})

			t.Run("it rejects a version that would leave a gap", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()

				if err := rec.InsertEvents(ctx, newEvents(originator, 1)); err != nil {
					t.Fatal(err)
				}

				err := rec.InsertEvents(ctx, newEvents(originator, 3))
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the stream changed after a rejected insert",
					actual,
					newEvents(originator, 1),
				)
			})

			t.Run("it rejects a batch with non-consecutive versions", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()

				batch := []StoredEvent{
					newEvents(originator, 1)[0],
					newEvents(originator, 3)[0],
				}

				err := rec.InsertEvents(ctx, batch)
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				events, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 0 {
					t.Fatalf("expected nothing to be inserted, got %d events", len(events))
				}
			})

			t.Run("it inserts nothing when any event in the batch conflicts", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				a := uuid.New()
				b := uuid.New()

				if err := rec.InsertEvents(ctx, newEvents(b, 1)); err != nil {
					t.Fatal(err)
				}

				batch := []StoredEvent{
					newEvents(a, 1)[0],
					newEvents(b, 1)[0], // conflicts
				}

				err := rec.InsertEvents(ctx, batch)
				if !errors.Is(err, ErrIntegrity) {
					t.Fatalf("expected an error matching ErrIntegrity, got %v", err)
				}

				events, err := rec.SelectEvents(ctx, a, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 0 {
					t.Fatalf("expected the batch to be discarded entirely, got %d events", len(events))
				}
			})

			t.Run("it allows exactly one of two concurrent conflicting appends", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()

				if err := rec.InsertEvents(ctx, newEvents(originator, 1)); err != nil {
					t.Fatal(err)
				}

				const contenders = 4

				var wins atomic.Int32
				g, gctx := errgroup.WithContext(ctx)

				for i := 0; i < contenders; i++ {
					g.Go(func() error {
						err := rec.InsertEvents(gctx, newEvents(originator, 2))
						if err == nil {
							wins.Add(1)
							return nil
						}
						if errors.Is(err, ErrIntegrity) {
							return nil
						}
						return err
					})
				}

				if err := g.Wait(); err != nil {
					t.Fatal(err)
				}

				if n := wins.Load(); n != 1 {
					t.Fatalf("expected exactly one append to win, got %d", n)
				}

				events, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 2 {
					t.Fatalf("unexpected number of events, want 2, got %d", len(events))
				}
			})
		})

		t.Run("func SelectEvents()", func(t *testing.T) {
			t.Run("it returns an empty result for an unknown aggregate", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				events, err := rec.SelectEvents(ctx, uuid.New(), SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}
				if len(events) != 0 {
					t.Fatalf("expected no events, got %d", len(events))
				}
			})

			t.Run("it returns events in ascending version order by default", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				expect := newEvents(originator, 1, 2, 3, 4, 5)

				if err := rec.InsertEvents(ctx, expect); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"events were not returned in ascending order",
					actual,
					expect,
				)
			})

			t.Run("it excludes versions at or below After", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				events := newEvents(originator, 1, 2, 3, 4)

				if err := rec.InsertEvents(ctx, events); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{After: 2})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the After bound was not applied exclusively",
					actual,
					events[2:],
				)
			})

			t.Run("it includes versions up to and including Until", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				events := newEvents(originator, 1, 2, 3, 4)

				if err := rec.InsertEvents(ctx, events); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{Until: 3})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the Until bound was not applied inclusively",
					actual,
					events[:3],
				)
			})

			t.Run("it combines both bounds", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				events := newEvents(originator, 1, 2, 3, 4, 5)

				if err := rec.InsertEvents(ctx, events); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{After: 1, Until: 4})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"the combined bounds were not applied",
					actual,
					events[1:4],
				)
			})

			t.Run("it selects nothing when the bounds cross", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				events := newEvents(originator, 1, 2, 3)

				if err := rec.InsertEvents(ctx, events); err != nil {
					t.Fatal(err)
				}

				// An empty range is a valid query, not an error.
				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{After: 3, Until: 3})
				if err != nil {
					t.Fatal(err)
				}
				if len(actual) != 0 {
					t.Fatalf("expected no events, got %d", len(actual))
				}

				actual, err = rec.SelectEvents(ctx, originator, SelectOptions{After: 3, Until: 1})
				if err != nil {
					t.Fatal(err)
				}
				if len(actual) != 0 {
					t.Fatalf("expected no events, got %d", len(actual))
				}
			})

			t.Run("it returns events in descending order when requested", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				events := newEvents(originator, 1, 2, 3)

				if err := rec.InsertEvents(ctx, events); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{Desc: true})
				if err != nil {
					t.Fatal(err)
				}

				test.Expect(
					t,
					"events were not returned in descending order",
					actual,
					[]StoredEvent{events[2], events[1], events[0]},
				)
			})

			t.Run("it applies the limit after ordering", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				originator := uuid.New()
				events := newEvents(originator, 1, 2, 3)

				if err := rec.InsertEvents(ctx, events); err != nil {
					t.Fatal(err)
				}

				actual, err := rec.SelectEvents(ctx, originator, SelectOptions{Limit: 2})
				if err != nil {
					t.Fatal(err)
				}
				test.Expect(
					t,
					"the ascending limit did not keep the oldest events",
					actual,
					events[:2],
				)

				// The most recent event, as used to discover an aggregate's
				// current version.
				actual, err = rec.SelectEvents(ctx, originator, SelectOptions{Desc: true, Limit: 1})
				if err != nil {
					t.Fatal(err)
				}
				test.Expect(
					t,
					"the descending limit did not keep the newest event",
					actual,
					events[2:],
				)
			})
		})

		t.Run("func Close()", func(t *testing.T) {
			t.Run("it causes further operations to fail", func(t *testing.T) {
				t.Parallel()

				ctx, rec := setup(t, newRecorder)

				if err := rec.Close(); err != nil {
					t.Fatal(err)
				}

				err := rec.InsertEvents(ctx, newEvents(uuid.New(), 1))
				if !errors.Is(err, ErrInterface) {
					t.Fatalf("expected an error matching ErrInterface, got %v", err)
				}

				if _, err := rec.SelectEvents(ctx, uuid.New(), SelectOptions{}); !errors.Is(err, ErrInterface) {
					t.Fatalf("expected an error matching ErrInterface, got %v", err)
				}
			})

			t.Run("it is idempotent", func(t *testing.T) {
				t.Parallel()

				_, rec := setup(t, newRecorder)

				if err := rec.Close(); err != nil {
					t.Fatal(err)
				}
				if err := rec.Close(); err != nil {
					t.Fatal(err)
				}
			})
		})
	})
}

func setup[R AggregateRecorder](
	t *testing.T,
	newRecorder func(t *testing.T) R,
) (context.Context, R) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	return ctx, newRecorder(t)
}

func openApplication(
	ctx context.Context,
	t *testing.T,
	store Store,
) ProcessRecorder {
	rec, err := store.Open(ctx, uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := rec.Close(); err != nil {
			t.Fatal(err)
		}
	})

	return rec
}

// newEvents returns one event per version, with topics and payloads derived
// from the version so that round-trips are fully verifiable.
func newEvents(originator uuid.UUID, versions ...int64) []StoredEvent {
	events := make([]StoredEvent, len(versions))

	for i, v := range versions {
		events[i] = StoredEvent{
			OriginatorID:      originator,
			OriginatorVersion: v,
			Topic:             fmt.Sprintf("<topic-%d>", v),
			State:             []byte(fmt.Sprintf("<state-%d>", v)),
		}
	}

	return events
}

func storedEventsOf(notifs []Notification) []StoredEvent {
	events := make([]StoredEvent, len(notifs))
	for i, n := range notifs {
		events[i] = n.StoredEvent
	}

	return events
}

func requireAscendingIDs(t *testing.T, notifs []Notification) {
	t.Helper()

	for i := 1; i < len(notifs); i++ {
		if notifs[i].ID <= notifs[i-1].ID {
			t.Fatalf(
				"notification IDs are not strictly increasing, %d follows %d",
				notifs[i].ID,
				notifs[i-1].ID,
			)
		}
	}
}
