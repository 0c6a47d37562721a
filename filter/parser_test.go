package filter

import (
	"errors"
	"strings"
	"testing"
)

func TestParseStructure(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single condition", "age > 25", "age > 25"},
		{"and binds tighter than or", "a = 1 OR b = 2 AND c = 3", "(a = 1 OR (b = 2 AND c = 3))"},
		{"left associative and", "a = 1 AND b = 2 AND c = 3", "((a = 1 AND b = 2) AND c = 3)"},
		{"left associative or", "a = 1 OR b = 2 OR c = 3", "((a = 1 OR b = 2) OR c = 3)"},
		{"parentheses override", "(a = 1 OR b = 2) AND c = 3", "((a = 1 OR b = 2) AND c = 3)"},
		{"redundant parentheses", "((a = 1))", "a = 1"},
		{"string value", "status = 'active'", "status = 'active'"},
		{"float value", "price >= 9.5", "price >= 9.5"},
		{"trailing dot float", "price < 2.", "price < 2.0"},
		{"signed number", "delta > -3", "delta > -3"},
		{"in list", "dept IN ('sales', 'eng')", "dept IN ('sales', 'eng')"},
		{"not in list", "id not in (1,2,3)", "id NOT IN (1, 2, 3)"},
		{"is null", "email IS NULL", "email IS NULL"},
		{"is not null", "email is not null", "email IS NOT NULL"},
		{"pattern", "name not ilike 'j%'", "name NOT ILIKE 'j%'"},
		{"quoted identifier", `"first name" = 'Ann'`, `"first name" = 'Ann'`},
		{"keyword-like column", `"in" = 1`, `"in" = 1`},
		{"empty string", "note = ''", "note = ''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := Parse(tt.input, Limits{})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := Format(expr); got != tt.want {
				t.Errorf("expected '%s', got '%s'", tt.want, got)
			}
		})
	}
}

func TestParseValueTypes(t *testing.T) {
	expr, err := Parse("a = 25 AND b = 2.5 AND c = '25'", Limits{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	var values []any
	var walk func(Expression)
	walk = func(e Expression) {
		switch ex := e.(type) {
		case *BinaryExpression:
			walk(ex.Left)
			walk(ex.Right)
		case *ConditionExpression:
			values = append(values, ex.Condition.Value)
		}
	}
	walk(expr)

	if len(values) != 3 {
		t.Fatalf("expected 3 conditions, got %d", len(values))
	}
	if v, ok := values[0].(int64); !ok || v != 25 {
		t.Errorf("expected int64(25), got %T(%v)", values[0], values[0])
	}
	if v, ok := values[1].(float64); !ok || v != 2.5 {
		t.Errorf("expected float64(2.5), got %T(%v)", values[1], values[1])
	}
	if v, ok := values[2].(string); !ok || v != "25" {
		t.Errorf("expected string 25, got %T(%v)", values[2], values[2])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		reason  error
		wantPos int
	}{
		{"missing value", "age >", ErrUnexpectedToken, 5},
		{"empty input", "", ErrUnexpectedToken, 0},
		{"missing column", "= 1", ErrUnexpectedToken, 0},
		{"missing operator", "age 25", ErrUnexpectedToken, 4},
		{"identifier as value", "a = b", ErrUnexpectedToken, 4},
		{"trailing tokens", "a = 1 b = 2", ErrUnexpectedToken, 6},
		{"dangling and", "a = 1 AND", ErrUnexpectedToken, 9},
		{"unclosed group", "(a = 1", ErrUnterminatedGroup, 6},
		{"stray close", "a = 1)", ErrUnexpectedToken, 5},
		{"empty in list", "a IN ()", ErrEmptyInList, 6},
		{"in without list", "a IN 'x'", ErrUnexpectedToken, 5},
		{"unclosed in list", "a IN (1, 2", ErrUnterminatedGroup, 10},
		{"trailing comma in list", "a IN (1,)", ErrUnexpectedToken, 8},
		{"number overflow", "a = 99999999999999999999", ErrInvalidNumber, 4},
		{"null check with operand", "a IS NULL 1", ErrUnexpectedToken, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, Limits{})
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if !errors.Is(err, tt.reason) {
				t.Errorf("expected reason %v, got %v", tt.reason, pe.Reason)
			}
			if pe.Position != tt.wantPos {
				t.Errorf("expected position %d, got %d", tt.wantPos, pe.Position)
			}
		})
	}
}

func nested(depth int) string {
	return strings.Repeat("(", depth) + "a = 1" + strings.Repeat(")", depth)
}

func TestParseDepth(t *testing.T) {
	if _, err := Parse(nested(DefaultMaxDepth), Limits{}); err != nil {
		t.Errorf("depth %d: unexpected error %v", DefaultMaxDepth, err)
	}

	_, err := Parse(nested(DefaultMaxDepth+1), Limits{})
	if !errors.Is(err, ErrTooDeep) {
		t.Fatalf("depth %d: expected ErrTooDeep, got %v", DefaultMaxDepth+1, err)
	}
	var pe *ParseError
	if errors.As(err, &pe) && pe.Position != DefaultMaxDepth {
		t.Errorf("expected error at the opening of group %d (position %d), got %d", DefaultMaxDepth+1, DefaultMaxDepth, pe.Position)
	}

	if _, err := Parse(nested(3), Limits{MaxDepth: 2}); !errors.Is(err, ErrTooDeep) {
		t.Errorf("custom depth: expected ErrTooDeep, got %v", err)
	}
}

func TestParseDepthCountsNestingNotGroups(t *testing.T) {
	// many sibling groups never exceed depth 1
	parts := make([]string, 50)
	for i := range parts {
		parts[i] = "(a = 1)"
	}
	if _, err := Parse(strings.Join(parts, " OR "), Limits{MaxDepth: 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// long flat chains are not nesting
	chain := strings.Repeat("a = 1 AND ", 40) + "a = 1"
	if _, err := Parse(chain, Limits{MaxDepth: 1}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseLongInputRejectedBeforeParsing(t *testing.T) {
	_, err := Parse(strings.Repeat("(", DefaultMaxLength+1), Limits{})
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	inputs := []string{
		"a = 1 OR b = 2 AND c = 3",
		"(a = 1 OR b = 2) AND NOT_x IS NOT NULL",
		`"first name" LIKE 'A%' OR "and" IN (1, 2.5, 'x')`,
		"((x > -1.25) AND (y <> 'z')) OR w != 0",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := Parse(input, Limits{})
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", input, err)
			}
			text := Format(first)
			second, err := Parse(text, Limits{})
			if err != nil {
				t.Fatalf("Parse(Format()) = %q error = %v", text, err)
			}
			if again := Format(second); again != text {
				t.Errorf("round trip changed the tree: '%s' then '%s'", text, again)
			}
		})
	}
}
