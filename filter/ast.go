package filter

// Expression is a node of a parsed filter.
// The set of implementations is closed: *BinaryExpression and
// *ConditionExpression. Consumers use a type switch and must treat any
// other type as an error.
type Expression interface {
	// expressionMarker is a marker method to prevent external implementation.
	expressionMarker()
}

// LogicalOp joins two expressions.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
)

// Operator is a comparison operator of a condition.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpNotEqualStd  Operator = "<>"
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpIn           Operator = "IN"
	OpNotIn        Operator = "NOT IN"
	OpLike         Operator = "LIKE"
	OpILike        Operator = "ILIKE"
	OpNotLike      Operator = "NOT LIKE"
	OpNotILike     Operator = "NOT ILIKE"
	OpIsNull       Operator = "IS NULL"
	OpIsNotNull    Operator = "IS NOT NULL"
)

// DefaultOperators is the operator allow-list used when
// CompilerOptions.AllowedOperators is nil.
var DefaultOperators = []Operator{
	OpEqual, OpNotEqual, OpNotEqualStd,
	OpGreater, OpGreaterEqual, OpLess, OpLessEqual,
	OpIn, OpNotIn,
	OpLike, OpILike, OpNotLike, OpNotILike,
	OpIsNull, OpIsNotNull,
}

// IsNullCheck reports whether the operator takes no operand.
func (o Operator) IsNullCheck() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// IsList reports whether the operator takes a parenthesized value list.
func (o Operator) IsList() bool {
	return o == OpIn || o == OpNotIn
}

// IsPattern reports whether the operator is a LIKE-family text match.
func (o Operator) IsPattern() bool {
	switch o {
	case OpLike, OpILike, OpNotLike, OpNotILike:
		return true
	}
	return false
}

// Literal is a scalar value from the filter text: string, int64 or float64.
type Literal = any

// Condition is a single column comparison.
//
// Value is nil for IS NULL / IS NOT NULL, a []Literal for IN / NOT IN and a
// single Literal otherwise.
type Condition struct {
	Column   string
	Operator Operator
	Value    any
}

// BinaryExpression combines two expressions with AND or OR.
type BinaryExpression struct {
	Left  Expression
	Op    LogicalOp
	Right Expression
}

// ConditionExpression wraps a leaf condition.
type ConditionExpression struct {
	Condition Condition
}

func (*BinaryExpression) expressionMarker()    {}
func (*ConditionExpression) expressionMarker() {}
