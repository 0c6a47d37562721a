package sampling

import (
	"errors"
	"fmt"
)

// Configuration failure reasons. A *ConfigError unwraps to one of these.
var (
	// ErrInvalidAlias is returned for a source alias that is not a plain SQL identifier.
	ErrInvalidAlias = errors.New("invalid source alias")

	// ErrDuplicateAlias is returned when two sources, or a source and a CTE of
	// the query, would produce the same CTE name.
	ErrDuplicateAlias = errors.New("duplicate source alias")

	// ErrSamplePercent is returned for a sample percentage outside (0, 100].
	ErrSamplePercent = errors.New("sample percent out of range")

	// ErrInvalidTable is returned for a row store table name that is not a
	// (schema-qualified) plain identifier.
	ErrInvalidTable = errors.New("invalid table name")

	// ErrInvalidColumn is returned for an empty or reserved projection column.
	ErrInvalidColumn = errors.New("invalid projection column")

	// ErrInvalidPagination is returned for a negative limit or offset.
	ErrInvalidPagination = errors.New("invalid pagination")

	// ErrEmptyQuery is returned when the query is empty after comments are removed.
	ErrEmptyQuery = errors.New("empty query")

	// ErrMalformedQuery is returned when the WITH clause of the query cannot be split.
	ErrMalformedQuery = errors.New("malformed query")
)

// ConfigError reports a request the planner refuses to build SQL for.
// Detail never contains query text.
type ConfigError struct {
	Reason error
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("sampling: %v", e.Reason)
	}
	return fmt.Sprintf("sampling: %v: %s", e.Reason, e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Reason
}

func configError(reason error, format string, args ...any) *ConfigError {
	return &ConfigError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
