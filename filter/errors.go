package filter

import (
	"errors"
	"fmt"
)

// Parse failure reasons. A *ParseError unwraps to one of these.
var (
	// ErrTooLong is returned when the expression exceeds Limits.MaxLength.
	ErrTooLong = errors.New("filter expression too long")

	// ErrTooDeep is returned when parenthesized nesting exceeds Limits.MaxDepth.
	ErrTooDeep = errors.New("filter expression nesting too deep")

	// ErrUnexpectedToken is returned when a token does not fit the grammar.
	ErrUnexpectedToken = errors.New("unexpected token")

	// ErrUnterminatedGroup is returned when a "(" has no matching ")".
	ErrUnterminatedGroup = errors.New("unterminated group")

	// ErrEmptyInList is returned for IN () and NOT IN ().
	ErrEmptyInList = errors.New("empty IN list")

	// ErrInvalidNumber is returned when a numeric literal does not fit int64 or float64.
	ErrInvalidNumber = errors.New("invalid number")
)

// Validation failure reasons. A *ValidationError unwraps to one of these.
var (
	// ErrUnknownColumn is returned when a condition references a column
	// outside CompilerOptions.ValidColumns.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrOperatorNotAllowed is returned when a condition uses an operator
	// outside the allow-list.
	ErrOperatorNotAllowed = errors.New("operator not allowed")

	// ErrUnsupportedExpression is returned when the compiler meets an
	// expression variant or value shape it cannot render.
	ErrUnsupportedExpression = errors.New("unsupported expression")
)

// LexError reports a position where no token pattern matched.
type LexError struct {
	Position int
	Char     rune
}

func (e *LexError) Error() string {
	return fmt.Sprintf("unexpected character %q at position %d", e.Char, e.Position)
}

// ParseError reports a grammar violation or an exceeded bound.
type ParseError struct {
	Position int
	Reason   error
	Detail   string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("parse error at position %d: %v", e.Position, e.Reason)
	}
	return fmt.Sprintf("parse error at position %d: %v: %s", e.Position, e.Reason, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

// ValidationError reports a column or operator rejected by the compiler.
type ValidationError struct {
	Column   string
	Operator Operator
	Reason   error
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Reason, ErrOperatorNotAllowed) {
		return fmt.Sprintf("%v: %s (column %q)", e.Reason, e.Operator, e.Column)
	}
	return fmt.Sprintf("%v: %q", e.Reason, e.Column)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}
