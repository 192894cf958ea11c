package capabilities

import (
	"fmt"

	"github.com/agentgov/substrate/pkg/contracts"
)

// ErrDelegationCycle is returned when a delegation chain revisits an entity.
var ErrDelegationCycle = fmt.Errorf("delegation cycle detected")

// DeriveChild computes the capability set a delegate may hold, given the
// granting entity's own capability set and tier. A derived set is never
// broader than its parent: each requested capability is kept only if some
// granted capability matches it (via Match) and the capability's
// MinimumTier does not exceed the grantor's tier.
//
// chain carries the entity IDs visited so far along the delegation path,
// from root to the current grantor, and is used to reject cycles before
// any capability arithmetic is performed.
func DeriveChild(chain []string, grantorID string, grantorCaps []string, grantorTier contracts.Tier, requested []string) ([]string, error) {
	visited := make(map[string]bool, len(chain))
	for _, id := range chain {
		if visited[id] {
			return nil, fmt.Errorf("%w: %s repeats in %v", ErrDelegationCycle, id, chain)
		}
		visited[id] = true
	}
	if visited[grantorID] {
		return nil, fmt.Errorf("%w: %s repeats in %v", ErrDelegationCycle, grantorID, chain)
	}

	derived := make([]string, 0, len(requested))
	for _, want := range requested {
		if !MatchAny(grantorCaps, want) {
			continue
		}
		if MinimumTier(want).Rank() > grantorTier.Rank() {
			continue
		}
		derived = append(derived, want)
	}
	return derived, nil
}
