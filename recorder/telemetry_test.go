package recorder_test

import (
	"testing"

	"github.com/dogmatiq/recorderkit/driver/memory"
	"github.com/dogmatiq/recorderkit/internal/test"
	. "github.com/dogmatiq/recorderkit/recorder"
)

// The instrumented store must be transparent: it passes the same tests as
// the store it decorates.
func TestWithTelemetry(t *testing.T) {
	RunTests(
		t,
		func(t *testing.T) Store {
			return WithTelemetry(
				&memory.RecorderStore{},
				nil,
				nil,
				test.NewLogger(t),
			)
		},
	)
}
