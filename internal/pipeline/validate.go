package pipeline

import (
	"net/netip"
	"strings"

	"github.com/AdguardTeam/HostlistCompiler/internal/rules"
	"github.com/AdguardTeam/golibs/container"
	ufrules "github.com/AdguardTeam/urlfilter/rules"
)

// tooBroadPatterns is the policy table of patterns too broad to ship in a
// compiled list.  A rule whose pattern is listed here matches essentially
// everything.
var tooBroadPatterns = container.NewMapSet(
	"",
	"/",
	"*",
	"|",
	"^",
	"||",
	"||*",
	"||^",
)

// validate drops rules that are syntactically invalid, dangerously broad,
// or, unless allowIP, IP-address-only.  Comments, blanks, and hosts rules
// are kept.
func validate(lines []string, allowIP bool) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		r, ok := rules.Parse(line).(*rules.Adblock)
		if !ok {
			out = append(out, line)

			continue
		}

		if isValidAdblock(r, allowIP) {
			out = append(out, line)
		}
	}

	return out
}

// isValidAdblock reports whether one adblock rule survives validation.
func isValidAdblock(r *rules.Adblock, allowIP bool) (ok bool) {
	if tooBroadPatterns.Has(r.Pattern) {
		return false
	}

	if !allowIP && isIPPattern(r.Pattern) {
		return false
	}

	_, err := ufrules.NewNetworkRule(strings.TrimSpace(r.String()), 0)

	return err == nil
}

// isIPPattern returns true if the effective hostname of pattern is a bare IP
// address literal.
func isIPPattern(pattern string) (ok bool) {
	host := strings.TrimPrefix(pattern, "||")
	host = strings.TrimPrefix(host, "|")
	host = strings.TrimSuffix(host, "|")
	host = strings.TrimSuffix(host, "^")

	_, err := netip.ParseAddr(host)

	return err == nil
}
