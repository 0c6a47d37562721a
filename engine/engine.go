// Package engine serves preview requests: it plans the query, consults the
// cache, executes the plan and stores the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugr-lab/preview-go/cache"
	"github.com/hugr-lab/preview-go/filter"
	"github.com/hugr-lab/preview-go/sampling"
	"github.com/hugr-lab/preview-go/store"
)

// fallbackReason is reported when a sampled query failed and the exact plan
// answered instead. It never carries database error text.
const fallbackReason = "sampled query failed; served exact result"

// Executor runs planned SQL. *store.Executor implements it.
type Executor interface {
	Query(ctx context.Context, sql string, args []any) (*store.Result, error)
	Count(ctx context.Context, sql string, args []any) (int64, error)
}

// Options configures an Engine.
type Options struct {
	// Planner composes preview SQL.
	// REQUIRED.
	Planner *sampling.Planner

	// Executor runs the composed SQL.
	// REQUIRED.
	Executor Executor

	// Cache holds preview results.
	// OPTIONAL: nil disables caching.
	Cache *cache.Cache

	// QueryTimeout bounds each Preview call's database work.
	// OPTIONAL: 0 means no timeout beyond the caller's context.
	QueryTimeout time.Duration

	// FilterLimits bound expressions passed to CompileFilter.
	// OPTIONAL: zero values select the filter package defaults.
	FilterLimits filter.Limits

	// Logger for request logging.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Request is a preview request.
type Request struct {
	sampling.Request

	// IncludeTotal also counts all rows of the unpaginated exact query.
	IncludeTotal bool `json:"include_total,omitempty"`
}

// Response is a preview result.
type Response struct {
	RequestID string

	Columns []store.Column
	Rows    []map[string]any

	// TotalRowCount is set when the request asked for it.
	TotalRowCount *int64

	ExecutionTime time.Duration

	// Truncated is set when Rows were cut at the executor row cap and the
	// query produced more rows than returned.
	Truncated bool

	// Approximate is set when Rows come from a sample.
	Approximate   bool
	SamplePercent float64

	// Fallback is set when the sampled query failed and Rows come from the
	// exact plan.
	Fallback       bool
	FallbackReason string

	// Cached is set when the response was served from the cache.
	Cached   bool
	CachedAt time.Time
}

// Engine serves preview requests. Safe for concurrent use.
type Engine struct {
	planner  *sampling.Planner
	executor Executor
	cache    *cache.Cache
	timeout  time.Duration
	limits   filter.Limits
	logger   *slog.Logger
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Planner == nil {
		return nil, ErrMissingPlanner
	}
	if opts.Executor == nil {
		return nil, ErrMissingExecutor
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		planner:  opts.Planner,
		executor: opts.Executor,
		cache:    opts.Cache,
		timeout:  opts.QueryTimeout,
		limits:   opts.FilterLimits,
		logger:   logger,
	}, nil
}

// Preview plans, executes and caches req.
//
// When a sampled query fails, the exact plan is executed once instead and
// the response is flagged with Fallback. Errors caused by the request
// satisfy IsClientError.
func (e *Engine) Preview(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	start := time.Now()
	requestID := uuid.NewString()
	logger := e.logger.With("request_id", requestID)

	plan, err := e.planner.Plan(ctx, &req.Request)
	if err != nil {
		logger.Debug("Preview rejected", "error", err)
		return nil, err
	}

	key := cacheQuery(req, plan)
	if resp := e.lookup(key, req, logger); resp != nil {
		resp.RequestID = requestID
		logger.Info("Preview served",
			"sources", len(req.Sources),
			"cached", true,
			"approximate", resp.Approximate,
			"fallback", resp.Fallback,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, nil
	}

	entry, err := e.execute(ctx, req, plan, logger)
	if err != nil {
		logger.Warn("Preview failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(key, entry); err != nil {
			logger.Warn("Failed to cache preview", "error", err)
		}
	}

	logger.Info("Preview served",
		"sources", len(req.Sources),
		"cached", false,
		"rows", len(entry.Rows),
		"truncated", entry.Truncated,
		"approximate", entry.Approximate,
		"fallback", entry.Fallback,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Response{
		RequestID:      requestID,
		Columns:        entry.Columns,
		Rows:           entry.Rows,
		TotalRowCount:  entry.TotalRowCount,
		ExecutionTime:  entry.ExecutionTime,
		Truncated:      entry.Truncated,
		Approximate:    entry.Approximate,
		SamplePercent:  entry.SamplePercent,
		Fallback:       entry.Fallback,
		FallbackReason: entry.FallbackReason,
	}, nil
}

// cacheQuery builds the cache key of a planned request. The seed is only
// significant for sampled plans.
func cacheQuery(req *Request, plan *sampling.Plan) *cache.Query {
	q := &cache.Query{
		SQL:           req.SQL,
		Sources:       req.Sources,
		Limit:         req.Limit,
		Offset:        req.Offset,
		QuickPreview:  req.QuickPreview,
		SamplePercent: plan.SamplePercent,
	}
	if req.QuickPreview {
		q.Seed = req.Seed
	}
	return q
}

func (e *Engine) lookup(key *cache.Query, req *Request, logger *slog.Logger) *Response {
	if e.cache == nil {
		return nil
	}
	hit, err := e.cache.Get(key)
	if err != nil {
		logger.Warn("Cache lookup failed", "error", err)
		return nil
	}
	if hit == nil || (req.IncludeTotal && hit.TotalRowCount == nil) {
		return nil
	}
	return &Response{
		Columns:        hit.Columns,
		Rows:           hit.Rows,
		TotalRowCount:  hit.TotalRowCount,
		ExecutionTime:  hit.ExecutionTime,
		Truncated:      hit.Truncated,
		Approximate:    hit.Approximate,
		SamplePercent:  hit.SamplePercent,
		Fallback:       hit.Fallback,
		FallbackReason: hit.FallbackReason,
		Cached:         true,
		CachedAt:       hit.CachedAt,
	}
}

// execute runs the data query and, if requested, the total count
// concurrently.
func (e *Engine) execute(ctx context.Context, req *Request, plan *sampling.Plan, logger *slog.Logger) (*cache.Entry, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()

	entry := &cache.Entry{
		Approximate:   plan.Approximate,
		SamplePercent: plan.SamplePercent,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.executor.Query(gctx, plan.SQL, plan.Params)
		if err != nil && plan.Approximate && gctx.Err() == nil {
			logger.Warn("Sampled query failed, retrying exact", "error", err)
			res, err = e.exact(gctx, req)
			entry.Approximate = false
			entry.SamplePercent = 100
			entry.Fallback = true
			entry.FallbackReason = fallbackReason
		}
		if err != nil {
			return err
		}
		entry.Columns = res.Columns
		entry.Rows = res.Rows
		entry.Truncated = res.Truncated
		return nil
	})

	if req.IncludeTotal {
		g.Go(func() error {
			total, err := e.count(gctx, req)
			if err != nil {
				return err
			}
			entry.TotalRowCount = &total
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	}
	entry.ExecutionTime = time.Since(start)
	return entry, nil
}

func (e *Engine) exact(ctx context.Context, req *Request) (*store.Result, error) {
	plan, err := e.planner.Exact(ctx, &req.Request)
	if err != nil {
		return nil, err
	}
	return e.executor.Query(ctx, plan.SQL, plan.Params)
}

func (e *Engine) count(ctx context.Context, req *Request) (int64, error) {
	plan, err := e.planner.Unpaged(ctx, &req.Request)
	if err != nil {
		return 0, err
	}
	return e.executor.Count(ctx, plan.SQL, plan.Params)
}

// CompileFilter compiles a filter expression with the engine's limits.
func (e *Engine) CompileFilter(ctx context.Context, text string, opts *filter.CompilerOptions) (*filter.Fragment, error) {
	return filter.Compile(ctx, text, e.limits, opts)
}

// InvalidateDataset drops cached results that read datasetID and returns
// how many were dropped.
func (e *Engine) InvalidateDataset(datasetID string) int {
	if e.cache == nil {
		return 0
	}
	n := e.cache.InvalidateDataset(datasetID)
	e.logger.Info("Dataset invalidated", "dataset_id", datasetID, "entries", n)
	return n
}
