// Package flight serves preview results over Arrow Flight.
//
// DoGet takes a JSON ticket holding an engine.Request and streams the
// result rows as one Arrow record batch. Preview flags travel as gRPC
// header metadata. DoAction handles cache invalidation and filter
// compilation.
package flight

import (
	"context"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"

	"github.com/hugr-lab/preview-go/engine"
	"github.com/hugr-lab/preview-go/filter"
)

// Engine is the preview backend. *engine.Engine implements it.
type Engine interface {
	Preview(ctx context.Context, req *engine.Request) (*engine.Response, error)
	CompileFilter(ctx context.Context, text string, opts *filter.CompilerOptions) (*filter.Fragment, error)
	InvalidateDataset(datasetID string) int
}

// Server implements the Flight service handlers.
// Embeds BaseFlightServer for forward compatibility with protocol changes.
type Server struct {
	flight.BaseFlightServer

	engine    Engine
	allocator memory.Allocator
	logger    *slog.Logger
}

// NewServer creates a new Flight server over eng.
func NewServer(eng Engine, allocator memory.Allocator, logger *slog.Logger) *Server {
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    eng,
		allocator: allocator,
		logger:    logger,
	}
}

// RegisterFlightServer registers the Flight service on the provided gRPC server.
func RegisterFlightServer(grpcServer *grpc.Server, flightServer *Server) {
	flight.RegisterFlightServiceServer(grpcServer, flightServer)
}
