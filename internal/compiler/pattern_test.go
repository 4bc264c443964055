package compiler_test

import (
	"testing"

	"github.com/AdguardTeam/HostlistCompiler/internal/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePattern(t *testing.T) {
	testCases := []struct {
		name    string
		pattern string
		match   []string
		noMatch []string
	}{{
		name:    "plain",
		pattern: "ads.example",
		match:   []string{"||ads.example^", "0.0.0.0 ads.example"},
		noMatch: []string{"||ADS.EXAMPLE^", "||tracker.test^"},
	}, {
		name:    "wildcard",
		pattern: "||ads.*^",
		match:   []string{"||ads.example^", "||ADS.test^"},
		noMatch: []string{"x||ads.example^", "||tracker.test^"},
	}, {
		name:    "regex",
		pattern: "/^@@/",
		match:   []string{"@@||allowed.example^"},
		noMatch: []string{"||blocked.example^"},
	}, {
		name:    "regex_flags",
		pattern: "/ads\\.example/i",
		match:   []string{"||ADS.EXAMPLE^", "||ads.example^"},
		noMatch: []string{"||tracker.test^"},
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := compiler.ParsePattern(tc.pattern)
			require.NoError(t, err)

			for _, line := range tc.match {
				assert.True(t, p.Match(line), "want %q to match", line)
			}

			for _, line := range tc.noMatch {
				assert.False(t, p.Match(line), "want %q not to match", line)
			}
		})
	}
}

func TestParsePattern_invalid(t *testing.T) {
	_, err := compiler.ParsePattern("/[unclosed/")
	require.Error(t, err)
}
