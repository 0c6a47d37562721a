package filter

import "fmt"

// TokenKind identifies the lexical category of a token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenIdentifier
	TokenString
	TokenNumber
	TokenOperator
	TokenComma
)

var tokenKindNames = map[TokenKind]string{
	TokenEOF:        "EOF",
	TokenLParen:     "LPAREN",
	TokenRParen:     "RPAREN",
	TokenAnd:        "AND",
	TokenOr:         "OR",
	TokenIdentifier: "IDENTIFIER",
	TokenString:     "STRING",
	TokenNumber:     "NUMBER",
	TokenOperator:   "OPERATOR",
	TokenComma:      "COMMA",
}

func (k TokenKind) String() string {
	if name, ok := tokenKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexical token.
// Pos is the byte offset of the token in the input text.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   int
}

func (t Token) String() string {
	if t.Kind == TokenEOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Value)
}
