package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// depthCounter tracks parenthesized nesting depth.
type depthCounter struct {
	depth    int
	maxDepth int
}

// Enter increments depth and fails once the limit is exceeded.
func (c *depthCounter) Enter(pos int) error {
	c.depth++
	if c.depth > c.maxDepth {
		return &ParseError{
			Position: pos,
			Reason:   ErrTooDeep,
			Detail:   fmt.Sprintf("depth %d (max %d)", c.depth, c.maxDepth),
		}
	}
	return nil
}

// Exit decrements depth.
func (c *depthCounter) Exit() {
	c.depth--
}

// Parser is a single-pass recursive-descent parser over a token slice.
type Parser struct {
	tokens []Token
	pos    int
	depth  *depthCounter
}

// NewParser creates a parser over tokens produced by Tokenize.
// maxDepth <= 0 selects DefaultMaxDepth.
func NewParser(tokens []Token, maxDepth int) *Parser {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Parser{
		tokens: tokens,
		depth:  &depthCounter{maxDepth: maxDepth},
	}
}

// Parse tokenizes and parses text into an expression tree.
func Parse(text string, limits Limits) (Expression, error) {
	limits = limits.withDefaults()

	tokens, err := Tokenize(text, limits)
	if err != nil {
		return nil, err
	}

	return NewParser(tokens, limits.MaxDepth).Parse()
}

// Parse consumes all tokens and returns the expression tree.
// Tokens remaining after a complete expression are an error.
func (p *Parser) Parse() (Expression, error) {
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if tok := p.current(); tok.Kind != TokenEOF {
		return nil, p.errorAt(tok, ErrUnexpectedToken, "%s after complete expression", tok)
	}

	return expr, nil
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		end := 0
		if n := len(p.tokens); n > 0 {
			end = p.tokens[n-1].Pos
		}
		return Token{Kind: TokenEOF, Pos: end}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() {
	p.pos++
}

func (p *Parser) errorAt(tok Token, reason error, format string, args ...any) *ParseError {
	return &ParseError{
		Position: tok.Pos,
		Reason:   reason,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// parseOr parses OR chains (lowest precedence).
func (p *Parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current().Kind == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Op: LogicalOr, Right: right}
	}

	return left, nil
}

// parseAnd parses AND chains.
func (p *Parser) parseAnd() (Expression, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.current().Kind == TokenAnd {
		p.advance()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Op: LogicalAnd, Right: right}
	}

	return left, nil
}

// parsePrimary parses a parenthesized group or a condition.
func (p *Parser) parsePrimary() (Expression, error) {
	tok := p.current()
	if tok.Kind != TokenLParen {
		return p.parseCondition()
	}

	if err := p.depth.Enter(tok.Pos); err != nil {
		return nil, err
	}
	defer p.depth.Exit()

	p.advance()
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	closing := p.current()
	if closing.Kind != TokenRParen {
		return nil, p.errorAt(closing, ErrUnterminatedGroup, "expected ) to close group opened at position %d, got %s", tok.Pos, closing)
	}
	p.advance()

	return expr, nil
}

// parseCondition parses: identifier operator (value | "(" value {"," value} ")")
func (p *Parser) parseCondition() (Expression, error) {
	colTok := p.current()
	if colTok.Kind != TokenIdentifier {
		return nil, p.errorAt(colTok, ErrUnexpectedToken, "expected column name, got %s", colTok)
	}
	p.advance()

	opTok := p.current()
	if opTok.Kind != TokenOperator {
		return nil, p.errorAt(opTok, ErrUnexpectedToken, "expected operator after %q, got %s", colTok.Value, opTok)
	}
	p.advance()

	cond := Condition{Column: colTok.Value, Operator: Operator(opTok.Value)}

	switch {
	case cond.Operator.IsNullCheck():
		// no operand
	case cond.Operator.IsList():
		values, err := p.parseValueList(cond.Operator)
		if err != nil {
			return nil, err
		}
		cond.Value = values
	default:
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		cond.Value = value
	}

	return &ConditionExpression{Condition: cond}, nil
}

// parseValueList parses a non-empty "(" value {"," value} ")" list.
func (p *Parser) parseValueList(op Operator) ([]Literal, error) {
	open := p.current()
	if open.Kind != TokenLParen {
		return nil, p.errorAt(open, ErrUnexpectedToken, "expected ( after %s, got %s", op, open)
	}
	p.advance()

	if tok := p.current(); tok.Kind == TokenRParen {
		return nil, p.errorAt(tok, ErrEmptyInList, "%s requires at least one value", op)
	}

	var values []Literal
	for {
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		if p.current().Kind != TokenComma {
			break
		}
		p.advance()
	}

	closing := p.current()
	if closing.Kind != TokenRParen {
		return nil, p.errorAt(closing, ErrUnterminatedGroup, "expected ) to close %s list, got %s", op, closing)
	}
	p.advance()

	return values, nil
}

// parseValue parses a STRING or NUMBER literal.
func (p *Parser) parseValue() (Literal, error) {
	tok := p.current()
	switch tok.Kind {
	case TokenString:
		p.advance()
		return tok.Value, nil
	case TokenNumber:
		value, err := parseNumber(tok)
		if err != nil {
			return nil, err
		}
		p.advance()
		return value, nil
	default:
		return nil, p.errorAt(tok, ErrUnexpectedToken, "expected string or number value, got %s", tok)
	}
}

// parseNumber returns int64 for integer literals and float64 for decimals.
func parseNumber(tok Token) (Literal, error) {
	if strings.Contains(tok.Value, ".") {
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, &ParseError{Position: tok.Pos, Reason: ErrInvalidNumber, Detail: tok.Value}
		}
		return f, nil
	}

	i, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return nil, &ParseError{Position: tok.Pos, Reason: ErrInvalidNumber, Detail: tok.Value}
	}
	return i, nil
}
