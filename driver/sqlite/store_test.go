package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/dogmatiq/recorderkit/driver/sqlite"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

func TestRecorderStore(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, "file:"+filepath.Join(t.TempDir(), "recorder.db"))
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	})

	if err := CreateRecorderSchema(ctx, store.DB); err != nil {
		t.Fatal(err)
	}

	recorder.RunTests(
		t,
		func(t *testing.T) recorder.Store {
			return store
		},
	)
}

func TestRecorderStoreInMemory(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	})

	if !store.InMemory {
		t.Fatal("expected the store to use the in-memory concurrency mode")
	}

	if err := CreateRecorderSchema(ctx, store.DB); err != nil {
		t.Fatal(err)
	}

	recorder.RunTests(
		t,
		func(t *testing.T) recorder.Store {
			return store
		},
	)
}

func TestWALJournalMode(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "recorder.db")

	journalMode := func(t *testing.T, store *RecorderStore) string {
		t.Helper()

		var mode string
		if err := store.DB.QueryRowContext(
			ctx,
			`PRAGMA journal_mode`,
		).Scan(&mode); err != nil {
			t.Fatal(err)
		}

		return mode
	}

	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	})

	if mode := journalMode(t, store); mode != "wal" {
		t.Fatalf("unexpected journal mode: got %q, want %q", mode, "wal")
	}

	// Opening the same file a second time must succeed without attempting
	// to reconfigure it, and must observe the journal mode that is already
	// in effect.
	second, err := Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := second.Close(); err != nil {
			t.Fatal(err)
		}
	})

	if mode := journalMode(t, second); mode != "wal" {
		t.Fatalf("unexpected journal mode: got %q, want %q", mode, "wal")
	}
}

func TestRecorderStoreInMemoryIsolation(t *testing.T) {
	ctx := context.Background()

	// Two in-memory stores must not share data, even though their DSNs are
	// identical.
	open := func(t *testing.T) *RecorderStore {
		t.Helper()

		store, err := Open(ctx, ":memory:")
		if err != nil {
			t.Fatal(err)
		}

		t.Cleanup(func() {
			if err := store.Close(); err != nil {
				t.Fatal(err)
			}
		})

		if err := CreateRecorderSchema(ctx, store.DB); err != nil {
			t.Fatal(err)
		}

		return store
	}

	first := open(t)
	second := open(t)

	rec, err := first.Open(ctx, "<app>")
	if err != nil {
		t.Fatal(err)
	}

	if err := rec.InsertEvents(
		ctx,
		[]recorder.StoredEvent{
			{
				OriginatorID:      uuid.New(),
				OriginatorVersion: recorder.InitialVersion,
				Topic:             "<topic>",
				State:             []byte("<state>"),
			},
		},
	); err != nil {
		t.Fatal(err)
	}

	other, err := second.Open(ctx, "<app>")
	if err != nil {
		t.Fatal(err)
	}

	id, err := other.MaxNotificationID(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if id != 0 {
		t.Fatalf("unexpected maximum notification ID: got %d, want 0", id)
	}
}
