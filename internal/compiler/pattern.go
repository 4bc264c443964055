package compiler

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is one include/exclude filter.  Patterns come in three shapes:
// "/…/flags" is a regular expression, a string containing "*" is a
// case-insensitive full-string wildcard, and anything else is a
// case-sensitive substring test.
type Pattern struct {
	re      *regexp.Regexp
	literal string
}

// ParsePattern parses s into a pattern.
func ParsePattern(s string) (p *Pattern, err error) {
	if body, flags, ok := cutRegexp(s); ok {
		re, compErr := compileRegexp(body, flags)
		if compErr != nil {
			return nil, fmt.Errorf("pattern %q: %w", s, compErr)
		}

		return &Pattern{re: re}, nil
	}

	if strings.Contains(s, "*") {
		re, compErr := compileWildcard(s)
		if compErr != nil {
			// Cannot actually happen, since every metacharacter is quoted.
			return nil, fmt.Errorf("pattern %q: %w", s, compErr)
		}

		return &Pattern{re: re}, nil
	}

	return &Pattern{literal: s}, nil
}

// MustParsePatterns parses previously validated patterns.  It panics on a
// bad one.
func MustParsePatterns(strs []string) (ps []*Pattern) {
	ps = make([]*Pattern, 0, len(strs))
	for _, s := range strs {
		p, err := ParsePattern(s)
		if err != nil {
			panic(err)
		}

		ps = append(ps, p)
	}

	return ps
}

// Match returns true if line matches the pattern.
func (p *Pattern) Match(line string) (ok bool) {
	if p.re != nil {
		return p.re.MatchString(line)
	}

	return strings.Contains(line, p.literal)
}

// cutRegexp splits a "/body/flags" pattern.  ok is false if s is not
// slash-delimited.
func cutRegexp(s string) (body, flags string, ok bool) {
	if len(s) < 2 || s[0] != '/' {
		return "", "", false
	}

	end := strings.LastIndexByte(s, '/')
	if end == 0 {
		return "", "", false
	}

	return s[1:end], s[end+1:], true
}

// compileRegexp compiles a regex pattern honoring the i, m, and s flags.
// Flags with no Go counterpart, like "g", are ignored.
func compileRegexp(body, flags string) (re *regexp.Regexp, err error) {
	var mode string
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			mode += string(f)
		}
	}

	if mode != "" {
		body = "(?" + mode + ")" + body
	}

	return regexp.Compile(body)
}

// compileWildcard compiles a "*"-wildcard pattern into a case-insensitive
// full-string regular expression.
func compileWildcard(s string) (re *regexp.Regexp, err error) {
	parts := strings.Split(s, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}

	return regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
}

// filterRules applies inclusions then exclusions to rules.  Comment and
// blank lines always pass, so that separator blocks survive list-wide
// filtering.
func filterRules(lines []string, inclusions, exclusions []*Pattern) (out []string) {
	if len(inclusions) == 0 && len(exclusions) == 0 {
		return lines
	}

	out = make([]string, 0, len(lines))
	for _, line := range lines {
		if isCommentOrBlank(line) {
			out = append(out, line)

			continue
		}

		if len(inclusions) > 0 && !matchAny(inclusions, line) {
			continue
		}

		if matchAny(exclusions, line) {
			continue
		}

		out = append(out, line)
	}

	return out
}

// matchAny returns true if any pattern matches line.
func matchAny(ps []*Pattern, line string) (ok bool) {
	for _, p := range ps {
		if p.Match(line) {
			return true
		}
	}

	return false
}

// isCommentOrBlank returns true for lines exempt from include/exclude
// filtering.
func isCommentOrBlank(line string) (ok bool) {
	trimmed := strings.TrimSpace(line)

	return trimmed == "" || trimmed[0] == '!'
}
