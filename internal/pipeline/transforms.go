package pipeline

import (
	"strings"

	"github.com/AdguardTeam/HostlistCompiler/internal/rules"
	"github.com/AdguardTeam/golibs/container"
)

// convertToASCII rewrites internationalized hostnames in adblock rule
// patterns to punycode.  Non-adblock lines pass through.  Conversions are
// memoized, since the same patterns reappear across sources and compiles.
func (p *Pipeline) convertToASCII(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		r, ok := rules.Parse(line).(*rules.Adblock)
		if !ok {
			out = append(out, line)

			continue
		}

		conv, ok := p.idnCache.Get(r.Pattern)
		if !ok {
			conv = rules.ToASCII(r.Pattern)
			p.idnCache.Set(r.Pattern, conv)
		}

		r.SetPattern(conv)
		out = append(out, r.String())
	}

	return out
}

// removeComments drops comment lines.
func removeComments(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := rules.Parse(line).(*rules.Comment); !ok {
			out = append(out, line)
		}
	}

	return out
}

// compress converts /etc/hosts rules to the adblock form "||host^", one rule
// per hostname.  Adblock rules are kept as is.
func compress(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		h, ok := rules.Parse(line).(*rules.EtcHosts)
		if !ok {
			out = append(out, line)

			continue
		}

		for _, name := range h.Hostnames {
			out = append(out, "||"+name+"^")
		}
	}

	return out
}

// removeModifiersPass strips the configured deny-list of options from
// adblock rules.  A rule left without options keeps its pattern-only form.
func (p *Pipeline) removeModifiersPass(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		r, ok := rules.Parse(line).(*rules.Adblock)
		if !ok {
			out = append(out, line)

			continue
		}

		for _, name := range p.removeModifiers {
			r.RemoveOption(name)
		}

		out = append(out, r.String())
	}

	return out
}

// deduplicate removes exact duplicate lines, keeping the first occurrence.
func deduplicate(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	seen := container.NewMapSet[string]()
	for _, line := range lines {
		if seen.Has(line) {
			continue
		}

		seen.Add(line)
		out = append(out, line)
	}

	return out
}

// invertAllow turns every blocking adblock rule into its allowing "@@" form
// and drops the blocking original.  Existing whitelist rules and non-adblock
// lines pass through.
func invertAllow(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		r, ok := rules.Parse(line).(*rules.Adblock)
		if !ok {
			out = append(out, line)

			continue
		}

		r.SetWhitelist(true)
		out = append(out, r.String())
	}

	return out
}

// removeEmptyLines drops blank lines.
func removeEmptyLines(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := rules.Parse(line).(*rules.Blank); !ok {
			out = append(out, line)
		}
	}

	return out
}

// trimLines strips leading and trailing whitespace from every line.
func trimLines(lines []string) (out []string) {
	out = make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimSpace(line))
	}

	return out
}

// insertFinalNewLine makes the list end with exactly one empty line,
// appending one if missing and collapsing several.
func insertFinalNewLine(lines []string) (out []string) {
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}

	out = make([]string, 0, end+1)
	out = append(out, lines[:end]...)

	return append(out, "")
}
