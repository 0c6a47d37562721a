package flight

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/preview-go/engine"
)

// toStatus maps a preview error to a gRPC status. Client errors keep their
// message, which never contains SQL. Server errors are reported without
// detail; the full error is only logged.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case engine.IsClientError(err), errors.Is(err, ErrInvalidTicket):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, engine.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "preview query timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, "preview failed")
}
