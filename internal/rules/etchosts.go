package rules

import (
	"net/netip"
	"strings"
)

// EtcHosts is an /etc/hosts-style rule mapping an IP address to one or more
// hostnames.
type EtcHosts struct {
	// text is the original line.
	text string

	// IP is the address token, verbatim.
	IP string

	// Hostnames are the mapped hostnames, in their original order.
	Hostnames []string

	// InlineComment is the optional trailing "# …" part, without the "#".
	InlineComment string
}

// type check
var _ Rule = (*EtcHosts)(nil)

// String implements the [Rule] interface for *EtcHosts.
func (r *EtcHosts) String() (s string) { return r.text }

// parseEtcHosts tries to parse a line as a hosts rule.  ok is false if the
// line is not one.
func parseEtcHosts(line, trimmed string) (r *EtcHosts, ok bool) {
	body := trimmed
	var comment string
	if idx := strings.IndexByte(body, '#'); idx >= 0 {
		comment = strings.TrimPrefix(body[idx:], "#")
		body = strings.TrimSpace(body[:idx])
	}

	fields := strings.Fields(body)
	if len(fields) < 2 {
		return nil, false
	}

	if !isHostsAddr(fields[0]) {
		return nil, false
	}

	return &EtcHosts{
		text:          line,
		IP:            fields[0],
		Hostnames:     fields[1:],
		InlineComment: comment,
	}, true
}

// isHostsAddr returns true if tok is an IPv4 or IPv6 address or the literal
// "localhost".
func isHostsAddr(tok string) (ok bool) {
	if strings.EqualFold(tok, "localhost") {
		return true
	}

	_, err := netip.ParseAddr(tok)

	return err == nil
}
