package governance_test

import (
	"testing"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestObligationEvaluator_FiresOnTrueTrigger(t *testing.T) {
	oe, err := governance.NewObligationEvaluator()
	require.NoError(t, err)

	decision := contracts.Decision{Action: contracts.ActionDeny}
	obligations := []contracts.Obligation{
		{Trigger: `decision.action == "deny"`, Action: "notify_security"},
		{Trigger: `decision.action == "allow"`, Action: "never_fires"},
	}
	fired, err := oe.Fired(decision, contracts.Intent{}, nil, obligations)
	require.NoError(t, err)
	require.Len(t, fired, 1)
	assert.Equal(t, "notify_security", fired[0].Action)
}

func TestObligationEvaluator_NoneFire(t *testing.T) {
	oe, err := governance.NewObligationEvaluator()
	require.NoError(t, err)

	decision := contracts.Decision{Action: contracts.ActionAllow}
	obligations := []contracts.Obligation{{Trigger: `decision.action == "deny"`, Action: "x"}}
	fired, err := oe.Fired(decision, contracts.Intent{}, nil, obligations)
	require.NoError(t, err)
	assert.Empty(t, fired)
}

func TestObligationEvaluator_InvalidTriggerErrors(t *testing.T) {
	oe, err := governance.NewObligationEvaluator()
	require.NoError(t, err)

	obligations := []contracts.Obligation{{Trigger: `not ( valid cel !!`, Action: "x"}}
	_, err = oe.Fired(contracts.Decision{}, contracts.Intent{}, nil, obligations)
	assert.Error(t, err)
}

func TestToAuditRecord_CarriesObligationMetadata(t *testing.T) {
	intent := contracts.Intent{ID: "i1", Actor: contracts.Actor{ID: "agent-1"}}
	ob := contracts.Obligation{Trigger: "true", Action: "rotate_credential", Parameters: map[string]any{"did": "did:example:1"}}
	rec := governance.ToAuditRecord("tenant-1", intent, ob, fixedTime())
	assert.Equal(t, governance.ObligationFiredEvent, rec.EventType)
	assert.Equal(t, "rotate_credential", rec.Action)
	assert.Equal(t, "tenant-1", rec.TenantID)
}
