package flight

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/hugr-lab/preview-go/internal/recovery"
)

// UnaryServerInterceptor creates a gRPC unary interceptor that stores call
// metadata in the context, converts panics to errors and logs each call.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		ctx = EnrichContextMetadata(ctx)
		start := time.Now()

		err = recovery.RecoverToError(logger, info.FullMethod, func() error {
			resp, err = handler(ctx, req)
			return err
		})
		logCall(logger, ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor creates a gRPC stream interceptor that stores call
// metadata in the stream context, converts panics to errors and logs each
// call.
func StreamServerInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		wrappedStream := &wrappedServerStream{
			ServerStream: ss,
			ctx:          EnrichContextMetadata(ss.Context()),
		}
		start := time.Now()

		err := recovery.RecoverToError(logger, info.FullMethod, func() error {
			return handler(srv, wrappedStream)
		})
		logCall(logger, wrappedStream.ctx, info.FullMethod, start, err)
		return err
	}
}

func logCall(logger *slog.Logger, ctx context.Context, method string, start time.Time, err error) {
	logger.Debug("gRPC call",
		"method", method,
		"code", status.Code(err).String(),
		"trace_id", TraceIDFromContext(ctx),
		"session_id", SessionIDFromContext(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// wrappedServerStream wraps grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapper's custom context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
