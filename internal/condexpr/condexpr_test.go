package condexpr_test

import (
	"strings"
	"testing"

	"github.com/AdguardTeam/HostlistCompiler/internal/condexpr"
	"github.com/stretchr/testify/assert"
)

func TestEvaluator_Eval(t *testing.T) {
	e := condexpr.New(&condexpr.Config{
		Platform: "mac",
	})

	testCases := []struct {
		name string
		expr string
		want bool
	}{{
		name: "empty",
		expr: "",
		want: true,
	}, {
		name: "whitespace",
		expr: "   ",
		want: true,
	}, {
		name: "true",
		expr: "true",
		want: true,
	}, {
		name: "false",
		expr: "false",
		want: false,
	}, {
		name: "current_platform",
		expr: "mac",
		want: true,
	}, {
		name: "current_platform_case",
		expr: "MAC",
		want: true,
	}, {
		name: "other_platform",
		expr: "windows",
		want: false,
	}, {
		name: "unknown_ident",
		expr: "beos",
		want: false,
	}, {
		name: "not",
		expr: "!windows",
		want: true,
	}, {
		name: "and",
		expr: "mac && !windows",
		want: true,
	}, {
		name: "or",
		expr: "windows || mac",
		want: true,
	}, {
		name: "parens",
		expr: "(windows || mac) && !ext_ff",
		want: true,
	}, {
		name: "precedence",
		expr: "windows && windows || mac",
		want: true,
	}, {
		name: "malformed_unbalanced",
		expr: "(windows || mac",
		want: false,
	}, {
		name: "malformed_operator",
		expr: "windows |",
		want: false,
	}, {
		name: "malformed_garbage",
		expr: "windows $ mac",
		want: false,
	}, {
		name: "malformed_trailing",
		expr: "mac)",
		want: false,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.Eval(tc.expr))
		})
	}
}

func TestEvaluator_Eval_noPlatform(t *testing.T) {
	e := condexpr.New(&condexpr.Config{})

	assert.False(t, e.Eval("mac"))
	assert.False(t, e.Eval("windows"))
	assert.True(t, e.Eval("!mac"))
	assert.True(t, e.Eval("true"))
}

func TestEvaluator_Eval_notDepth(t *testing.T) {
	e := condexpr.New(&condexpr.Config{
		Platform: "mac",
	})

	// Within the bound: an even number of negations keeps the value.
	assert.True(t, e.Eval(strings.Repeat("!", 10)+"mac"))

	// An adversarial depth must evaluate to false, not overflow the stack.
	assert.False(t, e.Eval(strings.Repeat("!", 100_000)+"mac"))
}
