// Package rules contains the model of a single filter-list line.  A line is
// classified as an adblock rule, an /etc/hosts rule, a comment, a
// preprocessor directive, or a blank line.  Parsed rules reserialize to the
// exact original text until they are edited.
package rules

import (
	"strings"
)

// Rule is a parsed filter-list line.
type Rule interface {
	// String returns the textual form of the rule.  For rules that have not
	// been edited it is the exact original line.
	String() (s string)
}

// Blank is an empty or whitespace-only line.
type Blank struct {
	// text is the original line, possibly containing whitespace.
	text string
}

// type check
var _ Rule = (*Blank)(nil)

// String implements the [Rule] interface for *Blank.
func (r *Blank) String() (s string) { return r.text }

// Comment is a comment line.
type Comment struct {
	// text is the original line.
	text string
}

// type check
var _ Rule = (*Comment)(nil)

// String implements the [Rule] interface for *Comment.
func (r *Comment) String() (s string) { return r.text }

// NewComment returns a comment rule with the given text.  text must already
// carry its comment marker.
func NewComment(text string) (r *Comment) {
	return &Comment{text: text}
}

// Parse classifies and parses a single line.  It is total: every line
// parses into one of the rule kinds.
func Parse(line string) (r Rule) {
	trimmed := strings.TrimSpace(line)

	switch {
	case trimmed == "":
		return &Blank{text: line}
	case strings.HasPrefix(trimmed, "!#"):
		d, ok := parseDirective(line, trimmed)
		if ok {
			return d
		}

		// An unknown "!#" directive is an ordinary comment.
		return &Comment{text: line}
	case isComment(trimmed):
		return &Comment{text: line}
	}

	h, ok := parseEtcHosts(line, trimmed)
	if ok {
		return h
	}

	return parseAdblock(line, trimmed)
}

// isComment returns true if a trimmed non-empty line is a comment.  Comments
// start with "!", with "#" followed by whitespace, are a bare "#", or are a
// "####"-style heading.
func isComment(trimmed string) (ok bool) {
	if trimmed[0] == '!' {
		return true
	}

	if trimmed[0] != '#' {
		return false
	}

	if len(trimmed) == 1 {
		return true
	}

	c := trimmed[1]

	return c == ' ' || c == '\t' || c == '#'
}
