package semantic_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/semantic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputValidator_SchemaAcceptsFirstMatch(t *testing.T) {
	v := semantic.NewOutputValidator()
	schema := map[string]any{
		"type":                 "object",
		"required":             []any{"status"},
		"properties":           map[string]any{"status": map[string]any{"type": "string"}},
		"additionalProperties": true,
	}
	res := v.ValidateSchema(map[string]any{"status": "ok"}, []map[string]any{schema})
	assert.True(t, res.Valid)
}

func TestOutputValidator_SchemaRejectsNoMatch(t *testing.T) {
	v := semantic.NewOutputValidator()
	schema := map[string]any{
		"type":     "object",
		"required": []any{"status"},
	}
	res := v.ValidateSchema(map[string]any{"other": "value"}, []map[string]any{schema})
	assert.False(t, res.Valid)
}

func TestOutputValidator_ScanPatterns_DeniesAboveThreshold(t *testing.T) {
	v := semantic.NewOutputValidator()
	res := v.ScanPatterns(`{"ssn":"123-45-6789"}`, nil)
	assert.False(t, res.Valid)
	assert.Equal(t, "prohibited_pattern_detected", res.Reason)
}

func TestOutputValidator_ScanPatterns_BelowThresholdWarns(t *testing.T) {
	v := semantic.NewOutputValidator()
	res := v.ScanPatterns(`{"contact":"user@example.com"}`, nil)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.Detections)
}

func TestOutputValidator_ValidateEndpoints_BlockWinsOverAllow(t *testing.T) {
	v := semantic.NewOutputValidator()
	res := v.ValidateEndpoints("see https://evil.example.com/x", []string{"*"}, []string{"https://evil.example.com/*"})
	assert.False(t, res.Valid)
}

func TestOutputValidator_ValidateEndpoints_NotAllowlisted(t *testing.T) {
	v := semantic.NewOutputValidator()
	res := v.ValidateEndpoints("see https://random.example.com/x", []string{"https://api.internal/*"}, nil)
	assert.False(t, res.Valid)
}

func TestOutputValidator_Sanitize(t *testing.T) {
	v := semantic.NewOutputValidator()
	detections := []semantic.Detection{{Category: "prohibited_content", Pattern: "ssn_us", Match: "123-45-6789"}}
	sanitized, log := v.Sanitize(`{"ssn":"123-45-6789"}`, detections)
	assert.Contains(t, sanitized, "[REDACTED]")
	assert.NotEmpty(t, log)
}

func TestOutputValidator_Validate_FullPipeline(t *testing.T) {
	v := semantic.NewOutputValidator()
	cred := contracts.OutputBindingCredential{}
	res, hash, err := v.Validate(map[string]any{"status": "ok"}, cred)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, hash)
}
