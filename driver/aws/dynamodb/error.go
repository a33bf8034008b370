package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/dogmatiq/recorderkit/recorder"
)

// classify maps a DynamoDB failure to the recorder error taxonomy. The
// original error remains available via [errors.As].
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		// A failed condition means another writer got there first, or the
		// batch does not follow its streams; both violate the uniqueness
		// guarantee that the recorder relies upon. A conflict with a
		// concurrent transaction on the same items is the same race,
		// reported earlier.
		for _, reason := range canceled.CancellationReasons {
			switch aws.ToString(reason.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return recorder.NewError(recorder.ErrIntegrity, err)
			}
		}

		return recorder.NewError(recorder.ErrOperational, err)
	}

	if errors.As(err, new(*types.ConditionalCheckFailedException)) ||
		errors.As(err, new(*types.TransactionConflictException)) ||
		errors.As(err, new(*types.DuplicateItemException)) {
		return recorder.NewError(recorder.ErrIntegrity, err)
	}

	if errors.As(err, new(*types.ProvisionedThroughputExceededException)) ||
		errors.As(err, new(*types.RequestLimitExceeded)) ||
		errors.As(err, new(*types.ResourceNotFoundException)) ||
		errors.As(err, new(*types.ResourceInUseException)) ||
		errors.As(err, new(*types.TransactionInProgressException)) ||
		errors.As(err, new(*types.IdempotentParameterMismatchException)) {
		return recorder.NewError(recorder.ErrOperational, err)
	}

	if errors.As(err, new(*types.InternalServerError)) {
		return recorder.NewError(recorder.ErrInternal, err)
	}

	var api smithy.APIError
	if errors.As(err, &api) {
		switch api.ErrorCode() {
		case "ValidationException":
			return recorder.NewError(recorder.ErrProgramming, err)
		case "ThrottlingException":
			return recorder.NewError(recorder.ErrOperational, err)
		default:
			return recorder.NewError(recorder.ErrDatabase, err)
		}
	}

	// Failures with no modeled API error are typically network-level
	// problems reaching the service.
	return recorder.NewError(recorder.ErrOperational, err)
}
