package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the default maximum expression length in characters.
	DefaultMaxLength = 1000

	// DefaultMaxDepth is the default maximum parenthesized nesting depth.
	DefaultMaxDepth = 10
)

// Limits bounds the work a single expression may cause.
// Zero fields fall back to DefaultMaxLength and DefaultMaxDepth.
type Limits struct {
	MaxLength int
	MaxDepth  int
}

func (l Limits) withDefaults() Limits {
	if l.MaxLength <= 0 {
		l.MaxLength = DefaultMaxLength
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	return l
}

// CheckLength returns a *ParseError wrapping ErrTooLong if text is longer
// than the configured maximum.
func (l Limits) CheckLength(text string) error {
	l = l.withDefaults()
	if len(text) <= l.MaxLength {
		return nil
	}
	if n := utf8.RuneCountInString(text); n > l.MaxLength {
		return &ParseError{
			Position: l.MaxLength,
			Reason:   ErrTooLong,
			Detail:   fmt.Sprintf("%d characters (max %d)", n, l.MaxLength),
		}
	}
	return nil
}

type tokenPattern struct {
	kind TokenKind
	re   *regexp.Regexp
}

// tokenPatterns are tried in order at every position.
// Multi-word operators must precede the single-word ones they start with.
var tokenPatterns = []tokenPattern{
	{TokenLParen, regexp.MustCompile(`^\(`)},
	{TokenRParen, regexp.MustCompile(`^\)`)},
	{TokenAnd, regexp.MustCompile(`^(?i)AND\b`)},
	{TokenOr, regexp.MustCompile(`^(?i)OR\b`)},
	{TokenOperator, regexp.MustCompile(`^(?i)(?:IS\s+NOT\s+NULL|IS\s+NULL|NOT\s+LIKE|NOT\s+ILIKE|NOT\s+IN)\b`)},
	{TokenOperator, regexp.MustCompile(`^(?:>=|<=|!=|<>|=|>|<)`)},
	{TokenOperator, regexp.MustCompile(`^(?i)(?:IN|LIKE|ILIKE)\b`)},
	{TokenString, regexp.MustCompile(`^'[^']*'`)},
	{TokenNumber, regexp.MustCompile(`^[+-]?(?:\d+\.\d*|\.\d+|\d+)`)},
	{TokenIdentifier, regexp.MustCompile(`^(?:"[^"]+"|[a-zA-Z_][a-zA-Z0-9_]*)`)},
	{TokenComma, regexp.MustCompile(`^,`)},
}

var spaceRun = regexp.MustCompile(`\s+`)

// Lexer scans filter text left to right.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

// Next returns the next token, or TokenEOF at the end of input.
func (l *Lexer) Next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Kind: TokenEOF, Pos: l.pos}, nil
	}

	rest := l.input[l.pos:]
	for _, p := range tokenPatterns {
		m := p.re.FindString(rest)
		if m == "" {
			continue
		}
		tok := Token{Kind: p.kind, Value: tokenValue(p.kind, m), Pos: l.pos}
		l.pos += len(m)
		return tok, nil
	}

	r, _ := utf8.DecodeRuneInString(rest)
	return Token{}, &LexError{Position: l.pos, Char: r}
}

// tokenValue normalizes the matched text for a token kind.
func tokenValue(kind TokenKind, m string) string {
	switch kind {
	case TokenAnd, TokenOr:
		return strings.ToUpper(m)
	case TokenOperator:
		return spaceRun.ReplaceAllString(strings.ToUpper(m), " ")
	case TokenString:
		return m[1 : len(m)-1]
	case TokenIdentifier:
		if m[0] == '"' {
			return m[1 : len(m)-1]
		}
		return m
	default:
		return m
	}
}

// Tokenize splits text into tokens terminated by a TokenEOF token.
// The length bound is checked before any scanning.
func Tokenize(text string, limits Limits) ([]Token, error) {
	if err := limits.CheckLength(text); err != nil {
		return nil, err
	}

	lexer := NewLexer(text)
	var tokens []Token
	for {
		tok, err := lexer.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens, nil
		}
	}
}
