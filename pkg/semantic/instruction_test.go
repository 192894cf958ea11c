package semantic_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/semantic"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeInstruction(t *testing.T) {
	assert.Equal(t, "send the report", semantic.NormalizeInstruction("  Send   the\tReport\n"))
}

func TestInstructionValidator_HashMatch(t *testing.T) {
	v := semantic.NewInstructionValidator()
	hash := semantic.HashInstruction("send the report")
	cred := contracts.InstructionIntegrityCredential{AllowedHashes: []string{hash}}

	res := v.Validate("Send the Report", "agent://scheduler", "", cred)
	assert.True(t, res.Valid)
}

func TestInstructionValidator_TemplateMatch(t *testing.T) {
	v := semantic.NewInstructionValidator()
	cred := contracts.InstructionIntegrityCredential{
		Templates: []contracts.InstructionTemplate{
			{ID: "greet", Description: "send a greeting to {{name}}", Schema: map[string]any{}},
		},
	}
	res := v.Validate("send a greeting to alice", "agent://scheduler", "", cred)
	assert.True(t, res.Valid)
}

func TestInstructionValidator_UnrecognizedRejected(t *testing.T) {
	v := semantic.NewInstructionValidator()
	res := v.Validate("do something unexpected", "agent://scheduler", "", contracts.InstructionIntegrityCredential{})
	assert.False(t, res.Valid)
	assert.Equal(t, "instruction_not_recognized", res.Reason)
}

func TestInstructionValidator_SourceWithoutSignatureRequirement(t *testing.T) {
	v := semantic.NewInstructionValidator()
	cred := contracts.InstructionIntegrityCredential{
		AllowedSources: []contracts.InstructionSource{{Pattern: "agent://scheduler*"}},
	}
	res := v.Validate("anything", "agent://scheduler-1", "", cred)
	assert.True(t, res.Valid)
}
