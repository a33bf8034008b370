package recorder

import (
	"context"
)

// Store is a collection of per-application recorders that share a physical
// backend.
type Store interface {
	// Open returns the recorder for the application with the given name.
	//
	// The name must not be empty. Recorders opened under different names
	// are fully isolated from one another, even when they share physical
	// storage.
	Open(ctx context.Context, application string) (ProcessRecorder, error)
}
