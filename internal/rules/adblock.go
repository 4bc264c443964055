package rules

import (
	"strings"
)

// Adblock is a rule in the adblock syntax, "[@@]pattern[$options]".
type Adblock struct {
	// text is the original line.  It is empty if the rule has been edited
	// since parsing, in which case String reserializes from the fields.
	text string

	// Pattern is the matching pattern of the rule, without the "@@" marker
	// and the options.
	Pattern string

	// Options are the rule modifiers, in their original order.
	Options []Option

	// Whitelist is true if the rule is an exception rule, marked with "@@".
	Whitelist bool
}

// Option is a single rule modifier, possibly with a value.
type Option struct {
	// Name is the modifier name.
	Name string

	// Value is the modifier value.  It is empty if the modifier has none.
	Value string

	// HasValue distinguishes an empty value from an absent one, so that
	// "$opt=" reserializes with its equals sign.
	HasValue bool
}

// type check
var _ Rule = (*Adblock)(nil)

// String implements the [Rule] interface for *Adblock.
func (r *Adblock) String() (s string) {
	if r.text != "" {
		return r.text
	}

	b := &strings.Builder{}
	if r.Whitelist {
		_, _ = b.WriteString("@@")
	}

	_, _ = b.WriteString(r.Pattern)

	for i, o := range r.Options {
		if i == 0 {
			_, _ = b.WriteString("$")
		} else {
			_, _ = b.WriteString(",")
		}

		_, _ = b.WriteString(o.Name)
		if o.HasValue {
			_, _ = b.WriteString("=")
			_, _ = b.WriteString(o.Value)
		}
	}

	return b.String()
}

// FindOption returns the first option with the given name, or nil.
func (r *Adblock) FindOption(name string) (o *Option) {
	for i := range r.Options {
		if r.Options[i].Name == name {
			return &r.Options[i]
		}
	}

	return nil
}

// RemoveOption removes all options with the given name.  found is true if at
// least one was removed.
func (r *Adblock) RemoveOption(name string) (found bool) {
	kept := r.Options[:0]
	for _, o := range r.Options {
		if o.Name == name {
			found = true
		} else {
			kept = append(kept, o)
		}
	}

	if found {
		r.Options = kept
		r.text = ""
	}

	return found
}

// AddOption appends an option with the given name and value.  hasValue must
// be true if the option carries a value, even an empty one.
func (r *Adblock) AddOption(name, value string, hasValue bool) {
	r.Options = append(r.Options, Option{
		Name:     name,
		Value:    value,
		HasValue: hasValue,
	})
	r.text = ""
}

// SetWhitelist sets the exception marker of the rule.
func (r *Adblock) SetWhitelist(wl bool) {
	if r.Whitelist == wl {
		return
	}

	r.Whitelist = wl
	r.text = ""
}

// SetPattern replaces the matching pattern of the rule.
func (r *Adblock) SetPattern(pattern string) {
	if r.Pattern == pattern {
		return
	}

	r.Pattern = pattern
	r.text = ""
}

// parseAdblock parses a line as an adblock rule.  It never fails: a line
// that is neither blank, nor a comment, nor a hosts rule, nor a directive is
// an adblock rule by definition.
func parseAdblock(line, trimmed string) (r *Adblock) {
	r = &Adblock{text: line}

	rest := trimmed
	if strings.HasPrefix(rest, "@@") {
		r.Whitelist = true
		rest = rest[2:]
	}

	optIdx := lastUnescapedDollar(rest)
	if optIdx == -1 {
		r.Pattern = rest

		return r
	}

	r.Pattern = rest[:optIdx]
	r.Options = parseOptions(rest[optIdx+1:])

	return r
}

// lastUnescapedDollar returns the index of the last "$" in s that is not
// escaped with a backslash, or -1.  A "$" at index zero separates an empty
// pattern from the options and still counts.
func lastUnescapedDollar(s string) (idx int) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '$' {
			continue
		}

		if i == 0 || s[i-1] != '\\' {
			return i
		}
	}

	return -1
}

// parseOptions parses the options part of an adblock rule, a comma-separated
// list of "name" or "name=value" items.  Commas escaped with a backslash do
// not split.
func parseOptions(s string) (opts []Option) {
	var cur strings.Builder
	flush := func() {
		item := cur.String()
		cur.Reset()

		o := Option{}
		if eq := strings.Index(item, "="); eq >= 0 {
			o.Name = item[:eq]
			o.Value = item[eq+1:]
			o.HasValue = true
		} else {
			o.Name = item
		}

		opts = append(opts, o)
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ',' && (i == 0 || s[i-1] != '\\') {
			flush()
		} else {
			_ = cur.WriteByte(c)
		}
	}

	flush()

	return opts
}
