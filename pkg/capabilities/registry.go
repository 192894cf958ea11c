package capabilities

import "github.com/agentgov/substrate/pkg/contracts"

// minimumTier maps a capability prefix to the lowest Tier permitted to hold
// it. Lookups walk from most to least specific and fall back to the
// namespace-level entry, then to TierSandbox if nothing matches.
var minimumTier = map[string]contracts.Tier{
	"finance:payment/execute":   contracts.TierCertified,
	"finance:payment/refund":    contracts.TierTrusted,
	"finance:ledger/read":       contracts.TierStandard,
	"infra:deploy/production":   contracts.TierCertified,
	"infra:deploy/staging":      contracts.TierStandard,
	"infra:secret/read":         contracts.TierTrusted,
	"infra:secret/rotate":       contracts.TierCertified,
	"data:pii/export":           contracts.TierCertified,
	"data:pii/read":             contracts.TierTrusted,
	"data:record/read":          contracts.TierProvisional,
	"data:record/write":         contracts.TierStandard,
	"comms:external/send":       contracts.TierStandard,
	"comms:internal/send":       contracts.TierProvisional,
	"identity:delegation/grant": contracts.TierCertified,
	"system:policy/modify":      contracts.TierAutonomous,
}

// alwaysEscalate is the closed set of capability prefixes that require
// human escalation regardless of the requesting entity's tier.
var alwaysEscalate = map[string]bool{
	"finance:payment/execute":   true,
	"identity:delegation/grant": true,
	"system:policy/modify":      true,
	"infra:secret/rotate":       true,
}

// MinimumTier reports the lowest Tier permitted to hold the given
// capability string, consulting progressively shorter prefixes of its
// namespace:category/action path before defaulting to TierSandbox.
func MinimumTier(capability string) contracts.Tier {
	cp, err := Parse(capability)
	if err != nil {
		return contracts.TierAutonomous
	}
	candidates := []string{
		cp.Namespace + ":" + cp.Category + "/" + cp.ActionID,
		cp.Namespace + ":" + cp.Category,
		cp.Namespace + ":*",
	}
	for _, c := range candidates {
		if t, ok := minimumTier[c]; ok {
			return t
		}
	}
	return contracts.TierSandbox
}

// RequiresEscalation reports whether the capability string falls within the
// always-escalate set, independent of tier.
func RequiresEscalation(capability string) bool {
	cp, err := Parse(capability)
	if err != nil {
		return true
	}
	key := cp.Namespace + ":" + cp.Category + "/" + cp.ActionID
	return alwaysEscalate[key]
}
