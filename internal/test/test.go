package test

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/exp/slog"
	"pgregory.net/rapid"
)

// TestingT is the subset of the [testing.TB] interface that is used by this
// package.
type TestingT interface {
	FailerT

	Cleanup(func())
}

// FailerT is the subset of the [testing.TB] interface that is used by parts
// of this package that only need to cause tests to fail.
type FailerT interface {
	Helper()
	Log(...any)
	Logf(string, ...any)
	Fatal(...any)
	Fatalf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

var (
	_ TestingT = (testing.TB)(nil)
	_ FailerT  = (testing.TB)(nil)
	_ FailerT  = (*rapid.T)(nil)
)

// ContextWithTimeout returns a context that is cancelled when the timeout
// elapses or the test completes, whichever comes first.
func ContextWithTimeout(
	t TestingT,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx, cancel
}

// NewLogger returns a logger that writes to the test's output.
func NewLogger(t TestingT) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(
			&testWriter{t},
			&slog.HandlerOptions{
				Level: slog.LevelDebug,
			},
		),
	)
}

type testWriter struct {
	t TestingT
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
