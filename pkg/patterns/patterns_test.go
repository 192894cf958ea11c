package patterns_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/patterns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_NamedPattern(t *testing.T) {
	ok, err := patterns.Match("ssn_us", "", "contact me at 123-45-6789 please")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_UnknownNamedPattern(t *testing.T) {
	_, err := patterns.Match("not_a_pattern", "", "text")
	assert.Error(t, err)
}

func TestMatch_RawPattern(t *testing.T) {
	ok, err := patterns.Match("", `\bfoo\d+\b`, "we found foo42 in the logs")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedact_Email(t *testing.T) {
	out, err := patterns.Redact("email", "", "reach me at alice@example.com today", "")
	require.NoError(t, err)
	assert.Equal(t, "reach me at [REDACTED] today", out)
}

func TestRedact_CustomReplacement(t *testing.T) {
	out, err := patterns.Redact("email", "", "reach me at alice@example.com today", "[EMAIL]")
	require.NoError(t, err)
	assert.Equal(t, "reach me at [EMAIL] today", out)
}

func TestMask_PreservesLength(t *testing.T) {
	out, err := patterns.Mask("ssn_us", "", "ssn is 123-45-6789 on file", 0)
	require.NoError(t, err)
	assert.Equal(t, "ssn is *********** on file", out)
}

func TestMask_ShowLastN(t *testing.T) {
	out, err := patterns.Mask("ssn_us", "", "ssn is 123-45-6789 on file", 4)
	require.NoError(t, err)
	assert.Equal(t, "ssn is *******6789 on file", out)
}

func TestMaskSuffix_PreservesLengthAndSuffix(t *testing.T) {
	out := patterns.MaskSuffix("sk-abcdef1234567890", 6)
	require.Len(t, out, len("sk-abcdef1234567890"))
	assert.Equal(t, "567890", out[len(out)-6:])
}

func TestMaskSuffix_KBeyondLength_LeavesUnchanged(t *testing.T) {
	assert.Equal(t, "short", patterns.MaskSuffix("short", 99))
}

func TestCompile_CachesRawPattern(t *testing.T) {
	re1, err := patterns.Compile("", `abc\d+`)
	require.NoError(t, err)
	re2, err := patterns.Compile("", `abc\d+`)
	require.NoError(t, err)
	assert.Same(t, re1, re2)
}

func TestCompile_NeitherNamedNorRaw(t *testing.T) {
	_, err := patterns.Compile("", "")
	assert.Error(t, err)
}
