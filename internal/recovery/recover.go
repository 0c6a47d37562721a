// Package recovery converts panics in database drivers and handlers into
// errors, so a failing query cannot crash the server.
package recovery

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrPanic is wrapped by errors returned for recovered panics.
var ErrPanic = errors.New("panic recovered")

// RecoverToError wraps a Flight handler body with panic recovery.
// If the function panics, the panic becomes a codes.Internal gRPC error.
// The panic value is logged, not sent to the client.
//
// Example:
//
//	return recovery.RecoverToError(logger, "DoGet", func() error {
//	    return s.doGet(ctx, ticket, stream)
//	})
func RecoverToError(logger *slog.Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			err = status.Errorf(codes.Internal, "%s failed", operation)
		}
	}()

	return fn()
}

// RecoverToValue wraps a function that returns a value and error.
// If the function panics, returns the zero value and an error wrapping ErrPanic.
//
// Example:
//
//	res, err := recovery.RecoverToValue(logger, "query", func() (*Result, error) {
//	    return scan(rows)
//	})
func RecoverToValue[T any](logger *slog.Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered",
				"operation", operation,
				"panic", r,
				"stack", string(debug.Stack()),
			)

			var zero T
			result = zero
			err = fmt.Errorf("%w: %s: %v", ErrPanic, operation, r)
		}
	}()

	return fn()
}
