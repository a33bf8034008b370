package recorder_test

import (
	"errors"
	"fmt"
	"testing"

	. "github.com/dogmatiq/recorderkit/recorder"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	t.Run("every class matches the root class", func(t *testing.T) {
		t.Parallel()

		classes := []error{
			ErrInterface,
			ErrDatabase,
			ErrData,
			ErrOperational,
			ErrIntegrity,
			ErrInternal,
			ErrProgramming,
			ErrNotSupported,
		}

		for _, class := range classes {
			if !errors.Is(class, ErrPersistence) {
				t.Fatalf("expected %q to match ErrPersistence", class)
			}
		}
	})

	t.Run("database sub-classes match the database class", func(t *testing.T) {
		t.Parallel()

		classes := []error{
			ErrData,
			ErrOperational,
			ErrIntegrity,
			ErrInternal,
			ErrProgramming,
			ErrNotSupported,
		}

		for _, class := range classes {
			if !errors.Is(class, ErrDatabase) {
				t.Fatalf("expected %q to match ErrDatabase", class)
			}
		}
	})

	t.Run("the interface class is not a database error", func(t *testing.T) {
		t.Parallel()

		if errors.Is(ErrInterface, ErrDatabase) {
			t.Fatal("did not expect ErrInterface to match ErrDatabase")
		}
	})

	t.Run("sibling classes do not match each other", func(t *testing.T) {
		t.Parallel()

		if errors.Is(ErrIntegrity, ErrOperational) {
			t.Fatal("did not expect ErrIntegrity to match ErrOperational")
		}
	})
}

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("it matches the class, its ancestors and the cause", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("<cause>")
		err := NewError(ErrIntegrity, cause)

		for _, target := range []error{ErrIntegrity, ErrDatabase, ErrPersistence, cause} {
			if !errors.Is(err, target) {
				t.Fatalf("expected %q to match %q", err, target)
			}
		}
	})

	t.Run("it exposes the cause to errors.As", func(t *testing.T) {
		t.Parallel()

		cause := &causeStub{}
		err := NewError(ErrOperational, cause)

		var got *causeStub
		if !errors.As(err, &got) {
			t.Fatalf("expected %q to expose the cause", err)
		}

		if got != cause {
			t.Fatal("unexpected cause")
		}
	})

	t.Run("it renders the class before the cause", func(t *testing.T) {
		t.Parallel()

		err := NewError(ErrIntegrity, errors.New("<cause>"))

		want := "integrity error: <cause>"
		if got := err.Error(); got != want {
			t.Fatalf("unexpected message, want %q, got %q", want, got)
		}
	})
}

func TestErrorf(t *testing.T) {
	t.Parallel()

	err := Errorf(ErrProgramming, "unknown column %q", "originator_id")

	if !errors.Is(err, ErrProgramming) {
		t.Fatalf("expected %q to match ErrProgramming", err)
	}

	want := `programming error: unknown column "originator_id"`
	if got := err.Error(); got != want {
		t.Fatalf("unexpected message, want %q, got %q", want, got)
	}

	wrapped := fmt.Errorf("unable to insert events: %w", err)
	if !errors.Is(wrapped, ErrPersistence) {
		t.Fatal("expected the class to survive further wrapping")
	}
}

type causeStub struct{}

func (*causeStub) Error() string { return "<stub>" }
