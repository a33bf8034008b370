package dynamodb_test

import (
	"context"
	"testing"

	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"

	. "github.com/dogmatiq/recorderkit/driver/aws/dynamodb"
)

func TestRecorderStore(t *testing.T) {
	ctx := context.Background()

	client := newClient(t)
	table := "recorder"

	if err := CreateRecorderTable(ctx, client, table); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := deleteTable(ctx, client, table); err != nil {
			t.Fatal(err)
		}
	})

	recorder.RunAggregateRecorderTests(
		t,
		func(t *testing.T) recorder.AggregateRecorder {
			store := &RecorderStore{
				Client: client,
				Table:  table,
			}

			rec, err := store.Open(context.Background(), uuid.NewString())
			if err != nil {
				t.Fatal(err)
			}

			t.Cleanup(func() {
				if err := rec.Close(); err != nil {
					t.Fatal(err)
				}
			})

			return rec
		},
	)
}
