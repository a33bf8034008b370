package gormadapter_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/dogmatiq/sqltest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	. "github.com/dogmatiq/recorderkit/driver/gormadapter"
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

	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{Conn: db}),
		&gorm.Config{},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := CreateRecorderSchema(ctx, gormDB); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := DropRecorderSchema(ctx, gormDB); err != nil {
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
				DB: gormDB,
			}
		},
	)
}

func TestOpenWithEmptyDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), ""); !errors.Is(err, recorder.ErrProgramming) {
		t.Fatalf("unexpected error: %v", err)
	}
}
