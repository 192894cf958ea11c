package capabilities_test

import (
	"testing"

	"github.com/agentgov/substrate/pkg/capabilities"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/stretchr/testify/assert"
)

func TestMinimumTier_Known(t *testing.T) {
	assert.Equal(t, contracts.TierCertified, capabilities.MinimumTier("finance:payment/execute"))
	assert.Equal(t, contracts.TierProvisional, capabilities.MinimumTier("data:record/read"))
}

func TestMinimumTier_Unknown(t *testing.T) {
	assert.Equal(t, contracts.TierSandbox, capabilities.MinimumTier("widgets:assembly/run"))
}

func TestMinimumTier_InvalidCapabilityIsMostRestrictive(t *testing.T) {
	assert.Equal(t, contracts.TierAutonomous, capabilities.MinimumTier("*"))
}

func TestRequiresEscalation(t *testing.T) {
	assert.True(t, capabilities.RequiresEscalation("finance:payment/execute"))
	assert.True(t, capabilities.RequiresEscalation("system:policy/modify"))
	assert.False(t, capabilities.RequiresEscalation("data:record/read"))
}

func TestRequiresEscalation_InvalidAlwaysEscalates(t *testing.T) {
	assert.True(t, capabilities.RequiresEscalation("*"))
}
