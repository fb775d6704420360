package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/tunedl/internal/app/queue"
)

// toConnectError maps queue errors onto Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var code connect.Code
	switch {
	case queue.IsValidation(err):
		code = connect.CodeInvalidArgument
	case queue.IsCapacity(err):
		code = connect.CodeResourceExhausted
	case queue.IsNotFound(err):
		code = connect.CodeNotFound
	case queue.IsInvalidState(err):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, queue.ErrClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
