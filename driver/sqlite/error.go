package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/mattn/go-sqlite3"
)

// classify maps a failure reported by the SQLite driver to the recorder
// error taxonomy. The original error remains available via [errors.As].
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var e sqlite3.Error
	if errors.As(err, &e) {
		switch e.Code {
		case sqlite3.ErrConstraint:
			return recorder.NewError(recorder.ErrIntegrity, err)
		case sqlite3.ErrBusy,
			sqlite3.ErrLocked,
			sqlite3.ErrIoErr,
			sqlite3.ErrCantOpen,
			sqlite3.ErrFull,
			sqlite3.ErrReadonly,
			sqlite3.ErrPerm,
			sqlite3.ErrProtocol,
			sqlite3.ErrSchema:
			return recorder.NewError(recorder.ErrOperational, err)
		case sqlite3.ErrTooBig,
			sqlite3.ErrRange,
			sqlite3.ErrMismatch:
			return recorder.NewError(recorder.ErrData, err)
		case sqlite3.ErrMisuse:
			return recorder.NewError(recorder.ErrProgramming, err)
		case sqlite3.ErrInternal:
			return recorder.NewError(recorder.ErrInternal, err)
		default:
			return recorder.NewError(recorder.ErrDatabase, err)
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return recorder.NewError(recorder.ErrInterface, err)
	}

	return recorder.NewError(recorder.ErrDatabase, err)
}
