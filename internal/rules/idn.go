package rules

import (
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// ToASCII converts the internationalized hostname parts of an adblock rule
// pattern to their punycode form.  ASCII-only patterns are returned
// unchanged, which makes the conversion idempotent.
func ToASCII(pattern string) (converted string) {
	if isASCII(pattern) {
		return pattern
	}

	b := &strings.Builder{}
	rest := pattern
	for rest != "" {
		run, tail := cutHostnameRun(rest)
		if run == "" {
			_, _ = b.WriteString(tail[:1])
			rest = tail[1:]

			continue
		}

		_, _ = b.WriteString(hostnameRunToASCII(run))
		rest = tail
	}

	return b.String()
}

// isASCII returns true if s contains only ASCII characters.
func isASCII(s string) (ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] >= unicode.MaxASCII {
			return false
		}
	}

	return true
}

// cutHostnameRun cuts the longest prefix of s consisting of characters that
// may appear in a hostname, including the "*" wildcard and label dots.  If s
// does not start with such a character, run is empty and tail is s.
func cutHostnameRun(s string) (run, tail string) {
	for i, c := range s {
		if !isHostnameRune(c) {
			return s[:i], s[i:]
		}
	}

	return s, ""
}

// isHostnameRune returns true if c may be a part of a hostname or of a
// wildcarded hostname form like "*.example".
func isHostnameRune(c rune) (ok bool) {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c == '-' || c == '.' || c == '_' || c == '*':
		return true
	default:
		return unicode.IsLetter(c)
	}
}

// hostnameRunToASCII converts each label of a hostname run to punycode.
// Wildcard labels and labels that fail to convert are kept as is.
func hostnameRunToASCII(run string) (converted string) {
	labels := strings.Split(run, ".")
	for i, l := range labels {
		if l == "*" || isASCII(l) {
			continue
		}

		a, err := idna.ToASCII(strings.ToLower(l))
		if err != nil {
			continue
		}

		labels[i] = a
	}

	return strings.Join(labels, ".")
}
