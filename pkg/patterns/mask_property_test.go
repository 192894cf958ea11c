//go:build property
// +build property

package patterns_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/patterns"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestMaskSuffixPreservesLengthAndSuffix verifies MaskSuffix(x, k)
// preserves len(x) exactly and leaves the last k runes of x untouched,
// for any text and any non-negative k.
func TestMaskSuffixPreservesLengthAndSuffix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("MaskSuffix preserves length and trailing k runes", prop.ForAll(
		func(x string, k int) bool {
			out := patterns.MaskSuffix(x, k)
			runes := []rune(x)
			outRunes := []rune(out)
			if len(outRunes) != len(runes) {
				return false
			}
			if k <= 0 || k >= len(runes) {
				return true
			}
			kept := len(runes) - k
			return string(outRunes[kept:]) == string(runes[kept:])
		},
		gen.AlphaString(),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}
