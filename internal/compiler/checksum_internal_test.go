package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumLine(t *testing.T) {
	testCases := []struct {
		name string
		in   []string
		want string
	}{{
		name: "simple",
		in:   []string{"!", "! Title: t", "||a.com^"},
		want: "! Checksum: 2x/7milVsoH3pAv8oPqN0A",
	}, {
		name: "existing_checksum_ignored",
		in: []string{
			"!",
			"! Checksum: bogus",
			"! Title: t",
			"||a.com^",
		},
		want: "! Checksum: 2x/7milVsoH3pAv8oPqN0A",
	}, {
		name: "empty",
		in:   []string{},
		want: "! Checksum: 1B2M2Y8AsgTpgAmY7PhCfg",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, checksumLine(tc.in))
		})
	}
}

func TestChecksumLine_stable(t *testing.T) {
	lines := []string{"!", "! Title: x", "||b.example^", ""}

	// Inserting the produced checksum line and recomputing yields the same
	// value, which is what list consumers verify.
	cs := checksumLine(lines)

	withChecksum := append([]string{lines[0], cs}, lines[1:]...)
	assert.Equal(t, cs, checksumLine(withChecksum))
}
