package recorder

import (
	"fmt"
)

// An errorClass is a node in the persistence error taxonomy. Classes carry
// no cause of their own; failures are tagged with a class via [NewError].
type errorClass struct {
	desc   string
	parent error
}

func (c *errorClass) Error() string { return c.desc }
func (c *errorClass) Unwrap() error { return c.parent }

// The persistence error taxonomy.
//
// Drivers translate native failures into one of these classes at every
// public entry point, so that callers can branch with [errors.Is] without
// knowing which backend is in use. Matching a class also matches its
// ancestors: an error that matches [ErrIntegrity] also matches
// [ErrDatabase] and [ErrPersistence].
var (
	// ErrPersistence is the root class, matched by every error returned by
	// a recorder.
	ErrPersistence error = &errorClass{desc: "persistence error"}

	// ErrInterface indicates misuse of the store handle itself, such as
	// operating on a recorder that has been closed.
	ErrInterface error = &errorClass{desc: "interface error", parent: ErrPersistence}

	// ErrDatabase is the generic class for failures reported by the
	// underlying database.
	ErrDatabase error = &errorClass{desc: "database error", parent: ErrPersistence}

	// ErrData indicates a problem with the values being stored, such as a
	// number out of range or an undecodable string.
	ErrData error = &errorClass{desc: "data error", parent: ErrDatabase}

	// ErrOperational indicates an environmental failure such as a lost
	// connection, a timeout, or an exhausted resource. Operations that
	// fail this way are safe to retry.
	ErrOperational error = &errorClass{desc: "operational error", parent: ErrDatabase}

	// ErrIntegrity indicates a constraint violation. It is the optimistic
	// concurrency signal: inserting an aggregate version that is already
	// stored, or a duplicate tracking record, fails with this class.
	ErrIntegrity error = &errorClass{desc: "integrity error", parent: ErrDatabase}

	// ErrInternal indicates a fault within the database itself.
	ErrInternal error = &errorClass{desc: "internal error", parent: ErrDatabase}

	// ErrProgramming indicates a malformed statement, missing schema, or
	// other misuse of the database.
	ErrProgramming error = &errorClass{desc: "programming error", parent: ErrDatabase}

	// ErrNotSupported indicates that the backend cannot perform the
	// requested operation.
	ErrNotSupported error = &errorClass{desc: "not supported", parent: ErrDatabase}
)

// NewError tags cause with the given error class.
//
// The returned error matches class and its ancestors under [errors.Is], and
// continues to match (and expose, via [errors.As]) everything that cause
// matches.
func NewError(class, cause error) error {
	return fmt.Errorf("%w: %w", class, cause)
}

// Errorf tags a formatted error with the given error class.
func Errorf(class error, format string, args ...any) error {
	return NewError(class, fmt.Errorf(format, args...))
}
