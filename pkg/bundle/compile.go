package bundle

import (
	"fmt"

	"github.com/agentgov/substrate/pkg/contracts"
)

// Compile translates a validated Bundle's Constraints into the runtime
// Policy set the Governance Engine evaluates. Each enabled Constraint
// becomes exactly one Policy; egress_whitelist is intentionally not
// compiled here because it is enforced downstream, at output time, by
// the Semantic Governance Output Validator's AllowedEndpoints check
// against the credential it issues — a pre-action intent carries no
// endpoint an allow-list could yet be checked against.
func Compile(b contracts.Bundle) []contracts.Policy {
	policies := make([]contracts.Policy, 0, len(b.Constraints))

	for i, c := range b.Constraints {
		if !c.IsEnabled() {
			continue
		}
		if c.Kind == contracts.ConstraintEgressWhitelist {
			continue
		}

		constraint := c
		priority := len(b.Constraints) - i

		policy := contracts.Policy{
			ID:               fmt.Sprintf("%s/%s", b.PolicyID, constraintID(c, i)),
			Name:             constraintID(c, i),
			Priority:         priority,
			Effect:           effectFor(c),
			Rules:            contracts.RuleGroup{Logic: contracts.LogicAnd},
			Conditions:       conditionsFor(c),
			Enabled:          true,
			BundleID:         b.PolicyID,
			SourceConstraint: &constraint,
		}
		policies = append(policies, policy)
	}

	return policies
}

func constraintID(c contracts.Constraint, index int) string {
	if c.ID != "" {
		return c.ID
	}
	return fmt.Sprintf("%s-%d", c.Kind, index)
}

// effectFor maps a constraint's enforcement action onto the Policy Effect
// that fires when its Conditions match. A block action denies outright;
// every other action (warn, redact, mask, or the unconditional presence
// of an escalation_required/capability_gate constraint) starts as allow
// and is refined downstream, by applyConstraint or enforceCapabilityGates,
// once the policy has matched.
func effectFor(c contracts.Constraint) contracts.PolicyEffect {
	if c.Action == contracts.ActionBlock {
		return contracts.EffectDeny
	}
	return contracts.EffectAllow
}

// conditionsFor scopes a compiled Policy to the intents its Constraint
// actually governs, using the glob-matching Conditions the Engine already
// applies before rule evaluation, rather than expressing tool/endpoint
// membership as a RuleGroup comparison.
func conditionsFor(c contracts.Constraint) *contracts.PolicyConditions {
	switch c.Kind {
	case contracts.ConstraintToolRestriction:
		if len(c.Values) == 0 {
			return nil
		}
		return &contracts.PolicyConditions{Actions: c.Values}
	case contracts.ConstraintEgressBlacklist:
		if len(c.Values) == 0 {
			return nil
		}
		return &contracts.PolicyConditions{Resources: c.Values}
	default:
		return nil
	}
}
