package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders an expression tree in canonical filter syntax.
// Every binary expression is parenthesized, so the output shows the
// grouping the parser chose.
func Format(expr Expression) string {
	var sb strings.Builder
	formatTo(&sb, expr)
	return sb.String()
}

func formatTo(sb *strings.Builder, expr Expression) {
	switch ex := expr.(type) {
	case *BinaryExpression:
		sb.WriteString("(")
		formatTo(sb, ex.Left)
		sb.WriteString(" ")
		sb.WriteString(string(ex.Op))
		sb.WriteString(" ")
		formatTo(sb, ex.Right)
		sb.WriteString(")")
	case *ConditionExpression:
		formatCondition(sb, &ex.Condition)
	default:
		fmt.Fprintf(sb, "<%T>", expr)
	}
}

func formatCondition(sb *strings.Builder, cond *Condition) {
	sb.WriteString(formatIdentifier(cond.Column))
	sb.WriteString(" ")
	sb.WriteString(string(cond.Operator))

	switch v := cond.Value.(type) {
	case nil:
	case []Literal:
		parts := make([]string, len(v))
		for i, lit := range v {
			parts[i] = formatLiteral(lit)
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(")")
	default:
		sb.WriteString(" ")
		sb.WriteString(formatLiteral(v))
	}
}

// formatIdentifier double-quotes names the bare identifier pattern would not
// read back, or that the lexer would take for a keyword.
func formatIdentifier(name string) string {
	bare := len(name) > 0 && (isLetter(name[0]) || name[0] == '_')
	for i := 1; bare && i < len(name); i++ {
		bare = isLetter(name[i]) || isDigit(name[i]) || name[i] == '_'
	}
	switch strings.ToUpper(name) {
	case "AND", "OR", "IN", "LIKE", "ILIKE", "IS", "NOT":
		bare = false
	}
	if bare {
		return name
	}
	return `"` + name + `"`
}

func formatLiteral(v Literal) string {
	switch lit := v.(type) {
	case string:
		return "'" + lit + "'"
	case int64:
		return strconv.FormatInt(lit, 10)
	case float64:
		s := strconv.FormatFloat(lit, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprintf("%v", lit)
	}
}
