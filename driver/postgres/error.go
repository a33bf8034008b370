package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/jackc/pgconn"
)

// classify maps a PostgreSQL failure to the recorder error taxonomy based
// on the class of its SQLSTATE code. The original error remains available
// via [errors.As].
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var e *pgconn.PgError
	if errors.As(err, &e) && len(e.Code) >= 2 {
		switch e.Code[:2] {
		case "23": // integrity constraint violation
			return recorder.NewError(recorder.ErrIntegrity, err)
		case "22": // data exception
			return recorder.NewError(recorder.ErrData, err)
		case "42": // syntax error or access rule violation
			return recorder.NewError(recorder.ErrProgramming, err)
		case "0A": // feature not supported
			return recorder.NewError(recorder.ErrNotSupported, err)
		case "08", // connection exception
			"40", // transaction rollback
			"53", // insufficient resources
			"54", // program limit exceeded
			"55", // object not in prerequisite state
			"57", // operator intervention
			"58": // system error
			return recorder.NewError(recorder.ErrOperational, err)
		case "XX": // internal error
			return recorder.NewError(recorder.ErrInternal, err)
		default:
			return recorder.NewError(recorder.ErrDatabase, err)
		}
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return recorder.NewError(recorder.ErrInterface, err)
	}

	// Failures without an SQLSTATE are typically network-level problems
	// reaching the server.
	return recorder.NewError(recorder.ErrOperational, err)
}
