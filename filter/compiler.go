package filter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CompilerOptions configures SQL generation.
type CompilerOptions struct {
	// ValidColumns lists the columns a condition may reference.
	// REQUIRED: a condition on any other column fails with ErrUnknownColumn.
	ValidColumns []string

	// ColumnTypes maps column names to SQL type names used for casts.
	// OPTIONAL: columns without an entry (or typed text/string/varchar) are
	// compared as text, and number literals compared against them are bound
	// in their text form.
	ColumnTypes map[string]string

	// ParamStart is the number of the first placeholder.
	// OPTIONAL: defaults to 1 ($1).
	ParamStart int

	// DataColumn is the SQL expression holding the JSON row document.
	// OPTIONAL: defaults to "data". May be qualified, e.g. "r.data".
	DataColumn string

	// NestedKey is the key under which the payload may be wrapped.
	// OPTIONAL: defaults to "data". Ignored when DisableNesting is set.
	NestedKey string

	// DisableNesting compiles plain DataColumn->>'col' extractions.
	DisableNesting bool

	// AllowedOperators restricts the operator allow-list.
	// OPTIONAL: nil means DefaultOperators.
	AllowedOperators []Operator
}

// Fragment is a compiled SQL condition with its positional parameters.
// Params[i] binds placeholder $(ParamStart+i).
type Fragment struct {
	SQL    string
	Params []any
}

// castTypes maps accepted column type names to SQL cast targets.
// Text-like types map to "" (no cast).
var castTypes = map[string]string{
	"integer":          "integer",
	"int":              "integer",
	"int4":             "integer",
	"bigint":           "bigint",
	"int8":             "bigint",
	"numeric":          "numeric",
	"decimal":          "numeric",
	"float":            "float",
	"double precision": "double precision",
	"double":           "double precision",
	"float8":           "double precision",
	"boolean":          "boolean",
	"bool":             "boolean",
	"date":             "date",
	"timestamp":        "timestamp",
	"time":             "time",
	"text":             "",
	"string":           "",
	"varchar":          "",
}

// CastFor returns the cast target for a column type name, or "" for none.
func CastFor(columnType string) string {
	return castTypes[strings.ToLower(strings.TrimSpace(columnType))]
}

// Compiler renders expressions as parameterized SQL.
// A Compiler is immutable and safe for concurrent use.
type Compiler struct {
	columns    map[string]struct{}
	operators  map[Operator]struct{}
	casts      map[string]string
	paramStart int
	dataColumn string
	nestedKey  string
}

// NewCompiler creates a compiler.
// If opts is nil, no column is valid and every condition fails validation.
func NewCompiler(opts *CompilerOptions) *Compiler {
	if opts == nil {
		opts = &CompilerOptions{}
	}

	c := &Compiler{
		columns:    make(map[string]struct{}, len(opts.ValidColumns)),
		operators:  make(map[Operator]struct{}),
		casts:      make(map[string]string, len(opts.ColumnTypes)),
		paramStart: opts.ParamStart,
		dataColumn: opts.DataColumn,
		nestedKey:  opts.NestedKey,
	}
	for _, col := range opts.ValidColumns {
		c.columns[col] = struct{}{}
	}

	ops := opts.AllowedOperators
	if ops == nil {
		ops = DefaultOperators
	}
	for _, op := range ops {
		c.operators[op] = struct{}{}
	}

	for col, typ := range opts.ColumnTypes {
		if cast := CastFor(typ); cast != "" {
			c.casts[col] = cast
		}
	}

	if c.paramStart <= 0 {
		c.paramStart = 1
	}
	if c.dataColumn == "" {
		c.dataColumn = "data"
	}
	if c.nestedKey == "" {
		c.nestedKey = "data"
	}
	if opts.DisableNesting {
		c.nestedKey = ""
	}

	return c
}

// compileState carries the parameter list of one ToSQL call.
type compileState struct {
	params []any
}

// bind appends a parameter and returns its placeholder.
func (c *Compiler) bind(st *compileState, value any) string {
	st.params = append(st.params, value)
	return fmt.Sprintf("$%d", len(st.params)+c.paramStart-1)
}

// ToSQL compiles an expression tree.
// On error no SQL is returned.
func (c *Compiler) ToSQL(expr Expression) (*Fragment, error) {
	st := &compileState{}
	sql, err := c.compile(expr, st)
	if err != nil {
		return nil, err
	}
	return &Fragment{SQL: sql, Params: st.params}, nil
}

func (c *Compiler) compile(expr Expression, st *compileState) (string, error) {
	switch ex := expr.(type) {
	case *BinaryExpression:
		return c.compileBinary(ex, st)
	case *ConditionExpression:
		if ex == nil {
			return "", fmt.Errorf("%w: nil condition", ErrUnsupportedExpression)
		}
		return c.compileCondition(&ex.Condition, st)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedExpression, expr)
	}
}

// compileBinary renders (left OP right).
func (c *Compiler) compileBinary(b *BinaryExpression, st *compileState) (string, error) {
	if b == nil || b.Left == nil || b.Right == nil {
		return "", fmt.Errorf("%w: incomplete binary expression", ErrUnsupportedExpression)
	}
	if b.Op != LogicalAnd && b.Op != LogicalOr {
		return "", fmt.Errorf("%w: logical operator %q", ErrUnsupportedExpression, b.Op)
	}

	left, err := c.compile(b.Left, st)
	if err != nil {
		return "", err
	}
	right, err := c.compile(b.Right, st)
	if err != nil {
		return "", err
	}

	return "(" + left + " " + string(b.Op) + " " + right + ")", nil
}

// compileCondition validates and renders a single condition.
func (c *Compiler) compileCondition(cond *Condition, st *compileState) (string, error) {
	if _, ok := c.columns[cond.Column]; !ok {
		return "", &ValidationError{Column: cond.Column, Operator: cond.Operator, Reason: ErrUnknownColumn}
	}
	if _, ok := c.operators[cond.Operator]; !ok {
		return "", &ValidationError{Column: cond.Column, Operator: cond.Operator, Reason: ErrOperatorNotAllowed}
	}

	column := JSONExtract(c.dataColumn, c.nestedKey, cond.Column)
	op := string(cond.Operator)

	switch {
	case cond.Operator.IsNullCheck():
		return column + " " + op, nil

	case cond.Operator.IsList():
		values, ok := cond.Value.([]Literal)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("%w: %s requires a non-empty value list", ErrUnsupportedExpression, op)
		}
		column = c.withCast(column, cond.Column)
		placeholders := make([]string, len(values))
		for i, v := range values {
			if err := checkLiteral(v); err != nil {
				return "", err
			}
			placeholders[i] = c.bind(st, c.operand(cond.Column, v))
		}
		return column + " " + op + " (" + strings.Join(placeholders, ", ") + ")", nil

	case cond.Operator.IsPattern():
		if err := checkLiteral(cond.Value); err != nil {
			return "", err
		}
		return column + " " + op + " " + c.bind(st, textOperand(cond.Value)), nil

	default:
		if err := checkLiteral(cond.Value); err != nil {
			return "", err
		}
		column = c.withCast(column, cond.Column)
		return column + " " + op + " " + c.bind(st, c.operand(cond.Column, cond.Value)), nil
	}
}

// withCast applies the column's type cast, if any.
func (c *Compiler) withCast(expr, column string) string {
	if cast, ok := c.casts[column]; ok {
		return expr + "::" + cast
	}
	return expr
}

// operand returns the parameter value compared against column. Extractions
// without a cast are text, so literals bound against them are text too.
func (c *Compiler) operand(column string, v any) any {
	if _, ok := c.casts[column]; ok {
		return v
	}
	return textOperand(v)
}

// textOperand formats a scalar literal as the text a JSON extraction yields.
func textOperand(v any) any {
	switch val := v.(type) {
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return v
	}
}

// checkLiteral rejects values that are not scalar literals.
func checkLiteral(v any) error {
	switch v.(type) {
	case string, int64, float64, int, bool:
		return nil
	default:
		return fmt.Errorf("%w: value of type %T", ErrUnsupportedExpression, v)
	}
}

// Compile tokenizes, parses and compiles text in one call.
// It fails fast on a done context or an over-length input before any
// parsing work.
func Compile(ctx context.Context, text string, limits Limits, opts *CompilerOptions) (*Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := limits.CheckLength(text); err != nil {
		return nil, err
	}

	expr, err := Parse(text, limits)
	if err != nil {
		return nil, err
	}

	return NewCompiler(opts).ToSQL(expr)
}
