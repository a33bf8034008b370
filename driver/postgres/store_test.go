package postgres_test

import (
	"context"
	"testing"

	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/dogmatiq/sqltest"

	. "github.com/dogmatiq/recorderkit/driver/postgres"
)

func TestRecorderStore(t *testing.T) {
	ctx := context.Background()

	database, err := sqltest.NewDatabase(ctx, sqltest.PGXDriver, sqltest.PostgreSQL)
	if err != nil {
		t.Fatal(err)
	}

	db, err := database.Open()
	if err != nil {
		t.Fatal(err)
	}

	if err := CreateRecorderSchema(ctx, db); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := DropRecorderSchema(ctx, db); err != nil {
			t.Fatal(err)
		}

		if err := db.Close(); err != nil {
			t.Fatal(err)
		}

		if err := database.Close(); err != nil {
			t.Fatal(err)
		}
	})

	recorder.RunTests(
		t,
		func(t *testing.T) recorder.Store {
			return &RecorderStore{
				DB: db,
			}
		},
	)
}
