// Package condition compiles free-form boolean condition strings into typed
// expression trees evaluated bar-by-bar. Expressions combine numeric
// comparisons over DSL tokens with AND/OR/NOT; nothing else is executable.
package condition

import (
	"fmt"
	"math"
	"time"

	"mtf-signal-engine/internal/token"
)

// Resolver turns a token into a scalar at a timestamp. ok=false means the
// value is undefined there (warm-up, before series start).
type Resolver interface {
	Resolve(tok token.Token, at time.Time) (float64, bool)
}

// Condition is a compiled boolean expression. Compile once at strategy load,
// evaluate per bar; a Condition is immutable and safe for concurrent use.
type Condition struct {
	Source string
	root   node
	tokens []token.Token // unique leaves, by token.Key
}

// Tokens returns the distinct token leaves of the expression.
func (c *Condition) Tokens() []token.Token {
	return c.tokens
}

// Compile parses an expression into a Condition. Unknown tokens and syntax
// errors fail here, before any scan begins.
func Compile(source string) (*Condition, error) {
	lexemes, err := lex(source)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", source, err)
	}

	p := &parser{lexemes: lexemes, seen: make(map[string]int)}
	root, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", source, err)
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("condition %q: unexpected %q", source, p.peek().text)
	}

	return &Condition{Source: source, root: root, tokens: p.tokens}, nil
}

// Eval resolves every token leaf at the given timestamp and evaluates the
// tree. If any leaf is undefined or NaN the whole condition is false; there
// is no partial evaluation.
func (c *Condition) Eval(r Resolver, at time.Time) bool {
	values := make([]float64, len(c.tokens))
	for i, tok := range c.tokens {
		v, ok := r.Resolve(tok, at)
		if !ok || math.IsNaN(v) {
			return false
		}
		values[i] = v
	}
	return c.root.eval(values)
}

// --- expression tree ---

type node interface {
	eval(values []float64) bool
}

type andNode struct{ left, right node }

func (n andNode) eval(values []float64) bool { return n.left.eval(values) && n.right.eval(values) }

type orNode struct{ left, right node }

func (n orNode) eval(values []float64) bool { return n.left.eval(values) || n.right.eval(values) }

type notNode struct{ child node }

func (n notNode) eval(values []float64) bool { return !n.child.eval(values) }

type cmpOp int

const (
	cmpGT cmpOp = iota
	cmpGE
	cmpLT
	cmpLE
	cmpEQ
	cmpNE
)

// operand is a comparison side: either a literal or an index into the
// condition's resolved token values.
type operand struct {
	literal  float64
	tokenIdx int // -1 for literals
}

func (o operand) value(values []float64) float64 {
	if o.tokenIdx >= 0 {
		return values[o.tokenIdx]
	}
	return o.literal
}

type cmpNode struct {
	op          cmpOp
	left, right operand
}

func (n cmpNode) eval(values []float64) bool {
	l, r := n.left.value(values), n.right.value(values)
	switch n.op {
	case cmpGT:
		return l > r
	case cmpGE:
		return l >= r
	case cmpLT:
		return l < r
	case cmpLE:
		return l <= r
	case cmpEQ:
		return l == r
	default:
		return l != r
	}
}

// --- parser ---

type parser struct {
	lexemes []lexeme
	pos     int
	tokens  []token.Token
	seen    map[string]int // token.Key -> index into tokens
}

func (p *parser) peek() lexeme {
	if p.pos < len(p.lexemes) {
		return p.lexemes[p.pos]
	}
	return lexeme{kind: lexEOF}
}

func (p *parser) next() lexeme {
	l := p.peek()
	p.pos++
	return l
}

func (p *parser) atEnd() bool {
	return p.peek().kind == lexEOF
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == lexOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == lexAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == lexNot {
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == lexLParen {
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != lexRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	opLex := p.next()
	var op cmpOp
	switch opLex.kind {
	case lexGT:
		op = cmpGT
	case lexGE:
		op = cmpGE
	case lexLT:
		op = cmpLT
	case lexLE:
		op = cmpLE
	case lexEQ:
		op = cmpEQ
	case lexNE:
		op = cmpNE
	default:
		return nil, fmt.Errorf("expected comparison operator, got %q", opLex.text)
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return cmpNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	l := p.next()
	switch l.kind {
	case lexNumber:
		return operand{literal: l.number, tokenIdx: -1}, nil
	case lexIdent:
		tok, err := token.Parse(l.text)
		if err != nil {
			return operand{}, err
		}
		key := tok.Key()
		idx, ok := p.seen[key]
		if !ok {
			idx = len(p.tokens)
			p.seen[key] = idx
			p.tokens = append(p.tokens, tok)
		}
		return operand{tokenIdx: idx}, nil
	default:
		return operand{}, fmt.Errorf("expected value, got %q", l.text)
	}
}
