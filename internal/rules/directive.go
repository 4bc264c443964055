package rules

import (
	"strings"
)

// DirectiveKind is the kind of a preprocessor directive.
type DirectiveKind string

// DirectiveKind values.
const (
	DirectiveIf      DirectiveKind = "if"
	DirectiveElse    DirectiveKind = "else"
	DirectiveEndIf   DirectiveKind = "endif"
	DirectiveInclude DirectiveKind = "include"
)

// Directive is a preprocessor instruction, "!#kind [arg]".
type Directive struct {
	// text is the original line.
	text string

	// Kind is the directive kind.
	Kind DirectiveKind

	// Arg is the condition expression for "if" directives and the target for
	// "include" directives.  It is empty for "else" and "endif".
	Arg string
}

// type check
var _ Rule = (*Directive)(nil)

// String implements the [Rule] interface for *Directive.
func (r *Directive) String() (s string) { return r.text }

// parseDirective tries to parse a line starting with "!#" as a preprocessor
// directive.  ok is false for unknown directives, which are treated as plain
// comments by the caller.
func parseDirective(line, trimmed string) (r *Directive, ok bool) {
	body := trimmed[len("!#"):]

	word, arg, _ := strings.Cut(body, " ")
	arg = strings.TrimSpace(arg)

	kind := DirectiveKind(word)
	switch kind {
	case DirectiveIf, DirectiveInclude:
		// Argument validity is checked by the preprocessor; empty arguments
		// are a syntax error there, not here.
	case DirectiveElse, DirectiveEndIf:
		if arg != "" {
			return nil, false
		}
	default:
		return nil, false
	}

	return &Directive{
		text: line,
		Kind: kind,
		Arg:  arg,
	}, true
}
