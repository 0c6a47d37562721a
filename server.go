package preview

import (
	"fmt"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"

	"github.com/hugr-lab/preview-go/cache"
	"github.com/hugr-lab/preview-go/engine"
	"github.com/hugr-lab/preview-go/flight"
	"github.com/hugr-lab/preview-go/sampling"
	"github.com/hugr-lab/preview-go/store"
)

// Engine is the preview backend served over Flight. *engine.Engine
// implements it.
type Engine = flight.Engine

// NewServer registers the preview Flight service handlers on the provided
// gRPC server.
//
// Returns error if config is invalid (e.g., nil Engine).
// Does NOT start the gRPC server - user controls lifecycle via grpcServer.Serve().
//
// Example:
//
//	config := preview.ServerConfig{Engine: eng}
//	grpcServer := grpc.NewServer(preview.ServerOptions(config)...)
//	if err := preview.NewServer(grpcServer, config); err != nil {
//	    log.Fatal(err)
//	}
//	lis, _ := net.Listen("tcp", ":50051")
//	grpcServer.Serve(lis)
func NewServer(grpcServer *grpc.Server, config ServerConfig) error {
	if config.Engine == nil {
		return fmt.Errorf("%w: engine is required", ErrInvalidConfig)
	}

	allocator := config.Allocator
	if allocator == nil {
		allocator = memory.DefaultAllocator
	}
	logger := config.logger()

	flight.RegisterFlightServer(grpcServer, flight.NewServer(config.Engine, allocator, logger))

	logger.Info("Preview Flight server registered",
		"max_message_size", config.MaxMessageSize,
	)
	return nil
}

// ServerOptions returns gRPC server options with the preview interceptors
// (call metadata, panic recovery, call logging) and message size limits.
func ServerOptions(config ServerConfig) []grpc.ServerOption {
	logger := config.logger()
	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(flight.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(flight.StreamServerInterceptor(logger)),
	}

	if config.MaxMessageSize > 0 {
		opts = append(opts,
			grpc.MaxRecvMsgSize(config.MaxMessageSize),
			grpc.MaxSendMsgSize(config.MaxMessageSize),
		)
	}
	return opts
}

// NewEngine builds a preview engine over db from cfg. The returned cleanup
// function releases the cache.
func NewEngine(cfg *Config, db store.Querier, logger *slog.Logger) (*engine.Engine, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	planner, err := sampling.NewPlanner(cfg.PlannerOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	var c *cache.Cache
	cleanup := func() {}
	if !cfg.Cache.Disabled {
		if c, err = cache.New(cfg.CacheOptions(logger)); err != nil {
			return nil, nil, err
		}
		cleanup = func() { c.Close() }
	}

	eng, err := engine.New(engine.Options{
		Planner:      planner,
		Executor:     store.NewExecutor(db, store.Options{MaxRows: cfg.MaxRows, Logger: logger}),
		Cache:        c,
		QueryTimeout: cfg.QueryTimeout,
		FilterLimits: cfg.FilterLimits(),
		Logger:       logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return eng, cleanup, nil
}
