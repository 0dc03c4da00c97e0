package condition

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokCompare
	tokAnd
	tokOr
	tokBetween
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "field"
	case tokNumber:
		return "number"
	case tokCompare:
		return "comparison operator"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokBetween:
		return "BETWEEN"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	default:
		return "unknown"
	}
}

// token is one lexeme with its byte offset in the source condition.
type token struct {
	kind  tokenKind
	text  string
	num   float64
	op    Operator
	start int
}

// SyntaxError reports a grammar violation at one byte offset.
// Params: offset in condition text and human-readable reason.
// Returns: error value for logging and validation feedback.
type SyntaxError struct {
	Pos int
	Msg string
}

// Error returns position-prefixed message.
// Params: none.
// Returns: string representation.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("position %d: %s", e.Pos, e.Msg)
}

// tokenize splits condition text into tokens.
// Params: raw condition string.
// Returns: token list terminated by tokEOF or first lexical error.
func tokenize(src string) ([]token, error) {
	tokens := make([]token, 0, 16)
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", start: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", start: i})
			i++
		case c == '&':
			if !hasPrefixAt(src, i, "&&") {
				return nil, &SyntaxError{Pos: i, Msg: "unexpected character '&'"}
			}
			tokens = append(tokens, token{kind: tokAnd, text: "&&", start: i})
			i += 2
		case c == '|':
			if !hasPrefixAt(src, i, "||") {
				return nil, &SyntaxError{Pos: i, Msg: "unexpected character '|'"}
			}
			tokens = append(tokens, token{kind: tokOr, text: "||", start: i})
			i += 2
		case c == '>' || c == '<' || c == '=':
			tok, width, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += width
		case isDigit(c) || c == '.' || (c == '-' && i+1 < len(src) && (isDigit(src[i+1]) || src[i+1] == '.')):
			tok, width, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += width
		case isIdentStart(c):
			j := i + 1
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			tok := token{kind: tokIdent, text: word, start: i}
			switch strings.ToUpper(word) {
			case "AND":
				tok.kind = tokAnd
			case "OR":
				tok.kind = tokOr
			case "BETWEEN":
				tok.kind = tokBetween
			}
			tokens = append(tokens, tok)
			i = j
		default:
			return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", rune(c))}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, start: len(src)})
	return tokens, nil
}

// lexOperator reads one comparison operator.
// Params: source and operator start offset.
// Returns: operator token, consumed width, or error for '=' and other unknown forms.
func lexOperator(src string, i int) (token, int, error) {
	switch {
	case hasPrefixAt(src, i, ">="):
		return token{kind: tokCompare, text: ">=", op: OpGTE, start: i}, 2, nil
	case hasPrefixAt(src, i, "<="):
		return token{kind: tokCompare, text: "<=", op: OpLTE, start: i}, 2, nil
	case hasPrefixAt(src, i, "=="):
		return token{kind: tokCompare, text: "==", op: OpEQ, start: i}, 2, nil
	case src[i] == '>':
		return token{kind: tokCompare, text: ">", op: OpGT, start: i}, 1, nil
	case src[i] == '<':
		return token{kind: tokCompare, text: "<", op: OpLT, start: i}, 1, nil
	default:
		return token{}, 0, &SyntaxError{Pos: i, Msg: "unsupported operator '='"}
	}
}

// lexNumber reads one decimal literal with optional sign and fraction.
// Params: source and literal start offset.
// Returns: number token, consumed width, or error for malformed literals.
func lexNumber(src string, i int) (token, int, error) {
	j := i
	if src[j] == '-' {
		j++
	}
	digits := 0
	for j < len(src) && isDigit(src[j]) {
		j++
		digits++
	}
	if j < len(src) && src[j] == '.' {
		j++
		for j < len(src) && isDigit(src[j]) {
			j++
			digits++
		}
	}
	if digits == 0 {
		return token{}, 0, &SyntaxError{Pos: i, Msg: "malformed number"}
	}
	if j < len(src) && (isIdentPart(src[j]) || src[j] == '.') {
		return token{}, 0, &SyntaxError{Pos: j, Msg: "malformed number"}
	}
	text := src[i:j]
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, 0, &SyntaxError{Pos: i, Msg: fmt.Sprintf("malformed number %q", text)}
	}
	return token{kind: tokNumber, text: text, num: value, start: i}, j - i, nil
}

func hasPrefixAt(src string, i int, prefix string) bool {
	return strings.HasPrefix(src[i:], prefix)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
