package gormadapter

import (
	"context"
	"errors"

	"github.com/dogmatiq/recorderkit/recorder"
	pgconnv1 "github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// classify maps a GORM failure to the recorder error taxonomy. The
// original error remains available via [errors.As].
func classify(err error) error {
	if err == nil {
		return nil
	}

	// Errors produced by the recorder itself are already classified.
	if errors.Is(err, recorder.ErrPersistence) {
		return err
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return recorder.NewError(recorder.ErrIntegrity, err)
	}

	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) {
		return recorder.NewError(recorder.ErrInterface, err)
	}

	if code, ok := sqlState(err); ok && len(code) >= 2 {
		switch code[:2] {
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

	return recorder.NewError(recorder.ErrDatabase, err)
}

// sqlState returns the SQLSTATE code of the PostgreSQL error underlying
// err.
//
// GORM's PostgreSQL driver uses pgx v5, but the store also works over
// connections injected from the pgx v4 family, whose errors are a distinct
// type.
func sqlState(err error) (string, bool) {
	var v5 *pgconn.PgError
	if errors.As(err, &v5) {
		return v5.Code, true
	}

	var v1 *pgconnv1.PgError
	if errors.As(err, &v1) {
		return v1.Code, true
	}

	return "", false
}
