// Package store executes composed preview SQL against the row store and
// materializes results.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugr-lab/preview-go/internal/recovery"
)

// ErrQuery wraps every error returned by the database for a preview query.
var ErrQuery = errors.New("query failed")

// Querier is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Column describes one result column.
type Column struct {
	Name         string `msgpack:"name" json:"name"`
	DatabaseType string `msgpack:"type" json:"type"`
}

// Result is a materialized query result.
type Result struct {
	Columns []Column
	Rows    []map[string]any

	// Truncated is set when the result was cut at Options.MaxRows.
	Truncated bool

	// Duration is the time spent executing and scanning.
	Duration time.Duration
}

// Options configures an Executor.
type Options struct {
	// MaxRows caps materialized rows per query.
	// OPTIONAL: 0 means no cap.
	MaxRows int

	// Logger for query logging. SQL text is logged at Debug only.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Executor runs queries through a Querier.
// Safe for concurrent use when the Querier is (as *sql.DB is).
type Executor struct {
	db      Querier
	maxRows int
	logger  *slog.Logger
}

// NewExecutor creates an executor over db.
func NewExecutor(db Querier, opts Options) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{db: db, maxRows: opts.MaxRows, logger: logger}
}

// Query executes query with positional args and materializes all rows.
// Cancellation and deadlines of ctx are enforced by the driver.
func (e *Executor) Query(ctx context.Context, query string, args []any) (*Result, error) {
	start := time.Now()
	e.logger.Debug("Executing query", "sql", query, "params", len(args))

	res, err := recovery.RecoverToValue(e.logger, "query", func() (*Result, error) {
		rows, err := e.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		defer rows.Close()
		return scanRows(rows, e.maxRows)
	})
	if err != nil {
		return nil, err
	}

	res.Duration = time.Since(start)
	e.logger.Debug("Query executed",
		"rows", len(res.Rows),
		"truncated", res.Truncated,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Count returns the number of rows query produces.
func (e *Executor) Count(ctx context.Context, query string, args []any) (int64, error) {
	return recovery.RecoverToValue(e.logger, "count", func() (int64, error) {
		var n int64
		row := e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM (\n"+query+"\n) AS counted", args...)
		if err := row.Scan(&n); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		return n, nil
	})
}

func scanRows(rows *sql.Rows, maxRows int) (*Result, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	res := &Result{Columns: make([]Column, len(types)), Rows: []map[string]any{}}
	seen := make(map[string]int, len(types))
	for i, ct := range types {
		res.Columns[i] = Column{Name: uniqueName(seen, ct.Name()), DatabaseType: ct.DatabaseTypeName()}
	}

	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if maxRows > 0 && len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		row := make(map[string]any, len(values))
		for i, col := range res.Columns {
			row[col.Name] = normalize(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return res, nil
}

// uniqueName suffixes repeated column names (as produced by SELECT * over a
// join) with _2, _3 and so on.
func uniqueName(seen map[string]int, name string) string {
	seen[name]++
	n := seen[name]
	if n == 1 {
		return name
	}
	for {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if seen[candidate] == 0 {
			seen[candidate] = 1
			return candidate
		}
		n++
	}
}

// normalize converts driver values to plain Go values.
// Text and JSON columns may arrive as []byte.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}
