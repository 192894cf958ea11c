package capabilities_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/capabilities"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveChild_NarrowsToRequested(t *testing.T) {
	grantorCaps := []string{"data:record/read", "infra:deploy/*"}
	derived, err := capabilities.DeriveChild(
		nil, "agent-root", grantorCaps, contracts.TierStandard,
		[]string{"data:record/read", "finance:payment/execute"},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"data:record/read"}, derived)
}

func TestDeriveChild_DropsAboveGrantorTier(t *testing.T) {
	grantorCaps := []string{"infra:secret/rotate"}
	derived, err := capabilities.DeriveChild(
		nil, "agent-root", grantorCaps, contracts.TierStandard,
		[]string{"infra:secret/rotate"},
	)
	require.NoError(t, err)
	assert.Empty(t, derived, "infra:secret/rotate requires TierCertified, grantor is only TierStandard")
}

func TestDeriveChild_CycleDetected(t *testing.T) {
	chain := []string{"agent-a", "agent-b"}
	_, err := capabilities.DeriveChild(
		chain, "agent-a", []string{"data:record/read"}, contracts.TierStandard,
		[]string{"data:record/read"},
	)
	assert.ErrorIs(t, err, capabilities.ErrDelegationCycle)
}

func TestDeriveChild_MonotonicAcrossChain(t *testing.T) {
	// root grants broad access; each hop narrows, never widens.
	rootCaps := []string{"data:*"}
	hop1, err := capabilities.DeriveChild(nil, "root", rootCaps, contracts.TierCertified,
		[]string{"data:record/read", "data:pii/export"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data:record/read", "data:pii/export"}, hop1)

	hop2, err := capabilities.DeriveChild([]string{"root"}, "hop1", hop1, contracts.TierStandard,
		[]string{"data:record/read", "data:pii/export"})
	require.NoError(t, err)
	assert.Equal(t, []string{"data:record/read"}, hop2, "data:pii/export requires TierCertified, hop1 delegate is TierStandard")
}
