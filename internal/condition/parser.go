package condition

import (
	"fmt"
	"strings"
)

// parser is a recursive-descent parser over one token list.
type parser struct {
	tokens []token
	pos    int
}

// Parse converts condition text into a typed expression tree.
// Params: condition text; keywords are case-insensitive, && and || are AND/OR synonyms.
// Returns: expression tree or *SyntaxError for any grammar violation.
func Parse(condition string) (Expr, error) {
	if strings.TrimSpace(condition) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "condition is empty"}
	}
	tokens, err := tokenize(condition)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.unexpected(tok, "end of input")
	}
	return expr, nil
}

// parseOr handles the lowest-precedence level.
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

// parseAnd binds tighter than parseOr.
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

// parsePrimary reads a parenthesized group or one comparison term.
func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, p.unexpected(closing, ")")
		}
		return Group{Inner: inner}, nil
	case tokIdent:
		return p.parseTerm(tok.text)
	default:
		return nil, p.unexpected(tok, "field or (")
	}
}

// parseTerm reads the remainder of a term after its field name.
func (p *parser) parseTerm(field string) (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokCompare:
		value, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		return Comparison{Field: field, Op: tok.op, Value: value}, nil
	case tokBetween:
		low, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		if sep := p.next(); sep.kind != tokAnd {
			return nil, p.unexpected(sep, "AND")
		}
		high, err := p.expectNumber()
		if err != nil {
			return nil, err
		}
		return Between{Field: field, Low: low, High: high}, nil
	default:
		return nil, p.unexpected(tok, "comparison operator or BETWEEN")
	}
}

func (p *parser) expectNumber() (float64, error) {
	tok := p.next()
	if tok.kind != tokNumber {
		return 0, p.unexpected(tok, "number")
	}
	return tok.num, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

// next consumes one token; tokEOF is sticky.
func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) unexpected(tok token, want string) error {
	got := tok.kind.String()
	if tok.text != "" && tok.kind != tokEOF {
		got = fmt.Sprintf("%s %q", got, tok.text)
	}
	return &SyntaxError{Pos: tok.start, Msg: fmt.Sprintf("expected %s, got %s", want, got)}
}
