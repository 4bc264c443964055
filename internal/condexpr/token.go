package condexpr

// tokenKind is the kind of a single expression token.
type tokenKind uint8

// tokenKind values.
const (
	tokEOF tokenKind = iota
	tokIdent
	tokNot
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

// token is a single expression token.
type token struct {
	text string
	kind tokenKind
}

// tokenize splits expr into tokens.  ok is false on characters outside of
// the expression grammar.  An all-whitespace expression yields zero tokens.
func tokenize(expr string) (toks []token, ok bool) {
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '!':
			toks = append(toks, token{kind: tokNot})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen})
			i++
		case c == '&':
			if i+1 >= len(expr) || expr[i+1] != '&' {
				return nil, false
			}

			toks = append(toks, token{kind: tokAnd})
			i += 2
		case c == '|':
			if i+1 >= len(expr) || expr[i+1] != '|' {
				return nil, false
			}

			toks = append(toks, token{kind: tokOr})
			i += 2
		case isIdentByte(c):
			start := i
			for i < len(expr) && isIdentByte(expr[i]) {
				i++
			}

			toks = append(toks, token{
				text: expr[start:i],
				kind: tokIdent,
			})
		default:
			return nil, false
		}
	}

	return toks, true
}

// isIdentByte returns true if c may be a part of an identifier.
func isIdentByte(c byte) (ok bool) {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '_':
		return true
	default:
		return false
	}
}
