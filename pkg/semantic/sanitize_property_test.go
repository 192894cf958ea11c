//go:build property
// +build property

package semantic_test

import (
	"fmt"
	"testing"

	"github.com/agentgov/substrate/pkg/semantic"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// sanitizeOnce runs the same scan-then-sanitize pass the output pipeline
// runs on a validated tool response.
func sanitizeOnce(v *semantic.OutputValidator, text string) string {
	result := v.ScanPatterns(text, nil)
	out, _ := v.Sanitize(text, result.Detections)
	return out
}

// TestSanitizeIsIdempotent verifies that re-running scan+sanitize against
// already-sanitized text is a no-op: [REDACTED] markers never themselves
// trigger a prohibited-pattern detection, so a second pass changes nothing.
func TestSanitizeIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	v := semantic.NewOutputValidator()

	properties.Property("sanitize(sanitize(x)) == sanitize(x)", prop.ForAll(
		func(parts []string) bool {
			text := ""
			for i, p := range parts {
				text += fmt.Sprintf("field_%d=%s; ", i, p)
			}
			once := sanitizeOnce(v, text)
			twice := sanitizeOnce(v, once)
			return once == twice
		},
		gen.SliceOfN(6, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
