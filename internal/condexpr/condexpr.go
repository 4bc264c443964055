// Package condexpr contains the evaluator of preprocessor condition
// expressions.  The grammar is a small boolean language over platform
// identifiers:
//
//	expr := or
//	or   := and ('||' and)*
//	and  := not ('&&' not)*
//	not  := '!' not | atom
//	atom := 'true' | 'false' | identifier | '(' expr ')'
//
// A known platform identifier evaluates to true when it equals the current
// platform, case-insensitively.  Unknown identifiers evaluate to false.
// Malformed expressions evaluate to false rather than failing the whole
// preprocessing run.
package condexpr

import (
	"strings"

	"github.com/AdguardTeam/golibs/container"
)

// DefaultMaxNotDepth is the default bound on the nesting depth of the "!"
// operator.  Exceeding it makes the expression evaluate to false instead of
// overflowing the stack.
const DefaultMaxNotDepth = 100

// knownPlatforms is the closed set of platform identifiers that may match
// the current platform.  Identifiers outside of it always evaluate to false.
var knownPlatforms = container.NewMapSet(
	"windows",
	"mac",
	"android",
	"ios",
	"ext_chromium",
	"ext_ff",
	"ext_edge",
	"ext_opera",
	"ext_safari",
	"ext_ublock",
	"adguard",
	"adguard_app_windows",
	"adguard_app_mac",
	"adguard_app_android",
	"adguard_app_ios",
	"adguard_ext_chromium",
	"adguard_ext_firefox",
	"adguard_ext_edge",
	"adguard_ext_opera",
	"adguard_ext_safari",
)

// Evaluator evaluates condition expressions against a current platform.
type Evaluator struct {
	platform    string
	maxNotDepth int
}

// Config is the configuration structure for an [Evaluator].
type Config struct {
	// Platform is the current platform identifier.  It may be empty, in
	// which case no platform identifier matches.
	Platform string

	// MaxNotDepth is the bound on "!" nesting.  Zero means
	// [DefaultMaxNotDepth].
	MaxNotDepth int
}

// New returns a new evaluator.  c must not be nil.
func New(c *Config) (e *Evaluator) {
	maxDepth := c.MaxNotDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxNotDepth
	}

	return &Evaluator{
		platform:    strings.ToLower(c.Platform),
		maxNotDepth: maxDepth,
	}
}

// Eval evaluates expr.  An empty or whitespace-only expression is true.  A
// malformed expression is false.
func (e *Evaluator) Eval(expr string) (res bool) {
	toks, ok := tokenize(expr)
	if !ok {
		return false
	}

	if len(toks) == 0 {
		return true
	}

	p := &parser{
		eval: e,
		toks: toks,
	}

	res, ok = p.parseOr(0)
	if !ok || p.pos != len(p.toks) {
		return false
	}

	return res
}

// parser is the state of a single expression parse.
type parser struct {
	eval *Evaluator
	toks []token
	pos  int
}

// parseOr parses an or-expression.  depth bounds the "!" nesting below.
func (p *parser) parseOr(depth int) (res, ok bool) {
	res, ok = p.parseAnd(depth)
	if !ok {
		return false, false
	}

	for p.peek().kind == tokOr {
		p.pos++

		var rhs bool
		rhs, ok = p.parseAnd(depth)
		if !ok {
			return false, false
		}

		res = res || rhs
	}

	return res, true
}

// parseAnd parses an and-expression.
func (p *parser) parseAnd(depth int) (res, ok bool) {
	res, ok = p.parseNot(depth)
	if !ok {
		return false, false
	}

	for p.peek().kind == tokAnd {
		p.pos++

		var rhs bool
		rhs, ok = p.parseNot(depth)
		if !ok {
			return false, false
		}

		res = res && rhs
	}

	return res, true
}

// parseNot parses a not-expression, enforcing the depth bound.
func (p *parser) parseNot(depth int) (res, ok bool) {
	if depth > p.eval.maxNotDepth {
		return false, false
	}

	if p.peek().kind == tokNot {
		p.pos++

		res, ok = p.parseNot(depth + 1)

		return !res, ok
	}

	return p.parseAtom(depth)
}

// parseAtom parses an atom.
func (p *parser) parseAtom(depth int) (res, ok bool) {
	t := p.peek()
	switch t.kind {
	case tokIdent:
		p.pos++

		return p.eval.evalIdent(t.text), true
	case tokLParen:
		p.pos++

		res, ok = p.parseOr(depth)
		if !ok || p.peek().kind != tokRParen {
			return false, false
		}

		p.pos++

		return res, true
	default:
		return false, false
	}
}

// peek returns the current token without consuming it.
func (p *parser) peek() (t token) {
	if p.pos >= len(p.toks) {
		return token{kind: tokEOF}
	}

	return p.toks[p.pos]
}

// evalIdent evaluates a bare identifier.
func (e *Evaluator) evalIdent(ident string) (res bool) {
	lower := strings.ToLower(ident)
	switch lower {
	case "true":
		return true
	case "false":
		return false
	}

	if !knownPlatforms.Has(lower) {
		return false
	}

	return lower == e.platform
}
