package rules_test

import (
	"testing"

	"github.com/AdguardTeam/HostlistCompiler/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_classify(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want any
	}{{
		name: "blank",
		in:   "   ",
		want: (*rules.Blank)(nil),
	}, {
		name: "empty",
		in:   "",
		want: (*rules.Blank)(nil),
	}, {
		name: "excl_comment",
		in:   "! a comment",
		want: (*rules.Comment)(nil),
	}, {
		name: "hash_comment",
		in:   "# a comment",
		want: (*rules.Comment)(nil),
	}, {
		name: "bare_hash",
		in:   "#",
		want: (*rules.Comment)(nil),
	}, {
		name: "heading",
		in:   "#### Section",
		want: (*rules.Comment)(nil),
	}, {
		name: "hosts_v4",
		in:   "0.0.0.0 ads.example",
		want: (*rules.EtcHosts)(nil),
	}, {
		name: "hosts_v6",
		in:   "::1 ads.example",
		want: (*rules.EtcHosts)(nil),
	}, {
		name: "hosts_localhost",
		in:   "localhost ads.example",
		want: (*rules.EtcHosts)(nil),
	}, {
		name: "adblock",
		in:   "||ads.example^",
		want: (*rules.Adblock)(nil),
	}, {
		name: "adblock_cosmetic_hash",
		in:   "#%#//scriptlet('set-constant')",
		want: (*rules.Adblock)(nil),
	}, {
		name: "directive_if",
		in:   "!#if windows",
		want: (*rules.Directive)(nil),
	}, {
		name: "directive_unknown",
		in:   "!#safari_cb_affinity(general)",
		want: (*rules.Comment)(nil),
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := rules.Parse(tc.in)
			assert.IsType(t, tc.want, r)
		})
	}
}

func TestParse_roundTrip(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"! comment",
		"# comment",
		"0.0.0.0 ads.example ad.test # tracking",
		"||ads.example^",
		"@@||good.example^$elemhide",
		"||ads.example^$script,third-party",
		"||ads.example/p\\$age$domain=example.org",
		"/banner\\d+/$image",
		"!#if (windows || mac)",
		"!#else",
		"!#endif",
		"!#include https://example.org/extra.txt",
	}

	for _, l := range lines {
		assert.Equal(t, l, rules.Parse(l).String(), "line %q", l)
	}
}

func TestParseAdblock(t *testing.T) {
	r := rules.Parse("@@||good.example^$elemhide,domain=example.org|example.net")
	ab, ok := r.(*rules.Adblock)
	require.True(t, ok)

	assert.True(t, ab.Whitelist)
	assert.Equal(t, "||good.example^", ab.Pattern)
	require.Len(t, ab.Options, 2)

	assert.Equal(t, "elemhide", ab.Options[0].Name)
	assert.False(t, ab.Options[0].HasValue)

	assert.Equal(t, "domain", ab.Options[1].Name)
	assert.Equal(t, "example.org|example.net", ab.Options[1].Value)
}

func TestAdblock_editOptions(t *testing.T) {
	r := rules.Parse("||ads.example^$script,mp4,third-party")
	ab, ok := r.(*rules.Adblock)
	require.True(t, ok)

	require.NotNil(t, ab.FindOption("mp4"))

	removed := ab.RemoveOption("mp4")
	assert.True(t, removed)
	assert.Nil(t, ab.FindOption("mp4"))
	assert.Equal(t, "||ads.example^$script,third-party", ab.String())

	removed = ab.RemoveOption("script")
	assert.True(t, removed)
	removed = ab.RemoveOption("third-party")
	assert.True(t, removed)
	assert.Equal(t, "||ads.example^", ab.String())

	ab.AddOption("important", "", false)
	assert.Equal(t, "||ads.example^$important", ab.String())
}

func TestParseEtcHosts(t *testing.T) {
	r := rules.Parse("0.0.0.0 ads.example ad.test # inline")
	h, ok := r.(*rules.EtcHosts)
	require.True(t, ok)

	assert.Equal(t, "0.0.0.0", h.IP)
	assert.Equal(t, []string{"ads.example", "ad.test"}, h.Hostnames)
	assert.Equal(t, " inline", h.InlineComment)
}

func TestToASCII(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{{
		name: "ascii",
		in:   "||ads.example^",
		want: "||ads.example^",
	}, {
		name: "cyrillic",
		in:   "||пример.рф^",
		want: "||xn--e1afmkfd.xn--p1ai^",
	}, {
		name: "wildcard",
		in:   "||*.ком^",
		want: "||*.xn--j1aef^",
	}, {
		name: "options_untouched",
		in:   "||пример.рф^$third-party",
		want: "||xn--e1afmkfd.xn--p1ai^$third-party",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rules.ToASCII(tc.in))

			// Idempotence.
			assert.Equal(t, tc.want, rules.ToASCII(rules.ToASCII(tc.in)))
		})
	}
}
