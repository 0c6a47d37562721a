package engine

import (
	"errors"

	"github.com/hugr-lab/preview-go/cache"
	"github.com/hugr-lab/preview-go/filter"
	"github.com/hugr-lab/preview-go/sampling"
)

var (
	// ErrInvalidRequest is returned for a nil or structurally invalid request.
	ErrInvalidRequest = errors.New("invalid preview request")

	// ErrTimeout is returned when a query exceeds Options.QueryTimeout.
	ErrTimeout = errors.New("preview query timed out")

	// ErrMissingPlanner and ErrMissingExecutor are returned by New.
	ErrMissingPlanner  = errors.New("planner is required")
	ErrMissingExecutor = errors.New("executor is required")
)

// IsClientError reports whether err was caused by the request rather than
// the server: malformed filters, unknown columns, bad aliases, sample
// percentages or pagination.
func IsClientError(err error) bool {
	if err == nil {
		return false
	}

	var (
		lexErr    *filter.LexError
		parseErr  *filter.ParseError
		validErr  *filter.ValidationError
		configErr *sampling.ConfigError
	)
	switch {
	case errors.As(err, &lexErr),
		errors.As(err, &parseErr),
		errors.As(err, &validErr),
		errors.As(err, &configErr):
		return true
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, cache.ErrMalformedKey):
		return true
	}
	return false
}
