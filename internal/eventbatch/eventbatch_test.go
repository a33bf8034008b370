package eventbatch_test

import (
	"errors"
	"testing"

	. "github.com/dogmatiq/recorderkit/internal/eventbatch"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	a := uuid.New()
	b := uuid.New()

	event := func(id uuid.UUID, v int64) recorder.StoredEvent {
		return recorder.StoredEvent{
			OriginatorID:      id,
			OriginatorVersion: v,
		}
	}

	t.Run("it accepts valid batches", func(t *testing.T) {
		t.Parallel()

		batches := [][]recorder.StoredEvent{
			nil,
			{event(a, 1)},
			{event(a, 1), event(a, 2), event(a, 3)},
			{event(a, 4), event(a, 5)},
			{event(a, 1), event(b, 7), event(a, 2)},
		}

		for _, batch := range batches {
			if err := Validate(batch); err != nil {
				t.Fatalf("unexpected error for %v: %s", batch, err)
			}
		}
	})

	t.Run("it rejects non-consecutive runs", func(t *testing.T) {
		t.Parallel()

		batches := [][]recorder.StoredEvent{
			{event(a, 1), event(a, 3)},
			{event(a, 2), event(a, 1)},
			{event(a, 1), event(a, 1)},
			{event(a, 1), event(b, 1), event(a, 3)},
		}

		for _, batch := range batches {
			err := Validate(batch)
			if err == nil {
				t.Fatalf("expected an error for %v", batch)
			}
			if !errors.Is(err, recorder.ErrIntegrity) {
				t.Fatalf("expected %q to match ErrIntegrity", err)
			}
		}
	})

	t.Run("it rejects versions below the initial version", func(t *testing.T) {
		t.Parallel()

		err := Validate([]recorder.StoredEvent{event(a, 0)})
		if !errors.Is(err, recorder.ErrIntegrity) {
			t.Fatalf("expected %q to match ErrIntegrity", err)
		}
	})
}

func TestFirstVersions(t *testing.T) {
	t.Parallel()

	a := uuid.New()
	b := uuid.New()

	first := FirstVersions([]recorder.StoredEvent{
		{OriginatorID: a, OriginatorVersion: 4},
		{OriginatorID: b, OriginatorVersion: 1},
		{OriginatorID: a, OriginatorVersion: 5},
	})

	if len(first) != 2 {
		t.Fatalf("unexpected number of aggregates, want 2, got %d", len(first))
	}
	if first[a] != 4 {
		t.Fatalf("unexpected first version for a, want 4, got %d", first[a])
	}
	if first[b] != 1 {
		t.Fatalf("unexpected first version for b, want 1, got %d", first[b])
	}
}
