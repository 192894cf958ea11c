// Package trust implements the Trust & Capability Service: resolving an
// entity's current trust standing, checking whether it holds a requested
// capability, adjusting its score from evidence, and propagating
// revocation through a delegation chain.
package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/agentgov/substrate/pkg/capabilities"
	"github.com/agentgov/substrate/pkg/contracts"
	"golang.org/x/time/rate"
)

// Store persists Trust Profiles and the delegation graph backing
// revocation propagation.
type Store interface {
	GetProfile(ctx context.Context, tenantID, entityID string) (contracts.TrustProfile, error)
	SaveProfile(ctx context.Context, profile contracts.TrustProfile) error
	// Delegates returns the entity IDs to which entityID directly issued a
	// capability delegation.
	Delegates(ctx context.Context, tenantID, entityID string) ([]string, error)
	// RecordDelegation registers a directed delegation edge.
	RecordDelegation(ctx context.Context, tenantID, issuerID, delegateID string) error
}

// CapabilityOverride narrows (never widens) the minimum tier a policy
// requires for a capability, e.g. a department-scoped grant. Overrides can
// never waive escalation-required capabilities.
type CapabilityOverride struct {
	Capability  string
	MinimumTier contracts.Tier
}

// CheckResult is the outcome of a capability check.
type CheckResult struct {
	Granted            bool
	Reason             string
	RequiresEscalation bool
}

// RevokeOptions customizes revocation behavior.
type RevokeOptions struct {
	PropagateToDelegates bool
}

// RevocationOutcome reports how many entities a revocation reached.
type RevocationOutcome struct {
	EntityID         string
	Reason           string
	DelegatesRevoked []string
	RevokedAt        time.Time
}

// Service is the Trust & Capability Service.
type Service struct {
	store     Store
	cache     Cache
	limiter   *rate.Limiter
	clock     func() time.Time
	overrides []CapabilityOverride
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithCache wires a read-through cache (e.g. RedisCache) in front of Store.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithCapabilityOverrides installs policy-driven minimum-tier overrides.
func WithCapabilityOverrides(overrides []CapabilityOverride) Option {
	return func(s *Service) { s.overrides = overrides }
}

// WithAdjustmentRateLimit throttles AdjustTrust calls to r per second with
// the given burst, guarding against a runaway evidence feed hammering the
// trust store. One limiter is shared by all entities of the Service.
func WithAdjustmentRateLimit(r rate.Limit, burst int) Option {
	return func(s *Service) { s.limiter = rate.NewLimiter(r, burst) }
}

// New constructs a Service backed by store.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cache:   NewInMemoryCache(),
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cacheTTL implements spec's tier-dependent read-through TTL: 60s for
// Sandbox/Provisional, 30s for Standard, 10s for Trusted, 0 (no caching,
// always consult the store) for Certified and above.
func cacheTTL(tier contracts.Tier) time.Duration {
	switch tier {
	case contracts.TierSandbox, contracts.TierProvisional:
		return 60 * time.Second
	case contracts.TierStandard:
		return 30 * time.Second
	case contracts.TierTrusted:
		return 10 * time.Second
	default:
		return 0
	}
}

// revocationSLA is the maximum propagation delay spec allows per tier.
func revocationSLA(tier contracts.Tier) time.Duration {
	switch tier {
	case contracts.TierSandbox, contracts.TierProvisional:
		return 60 * time.Second
	case contracts.TierStandard:
		return 10 * time.Second
	case contracts.TierTrusted, contracts.TierCertified:
		return time.Second
	default:
		return time.Second
	}
}

// Resolve returns the entity's current Trust Profile, consulting the
// read-through cache first. The cache key's TTL is derived from the
// profile's own effective tier, so a cached Autonomous-tier profile is
// served no staler than instantaneously.
func (s *Service) Resolve(ctx context.Context, tenantID, entityID string) (contracts.TrustProfile, error) {
	if cached, ok := s.cache.Get(ctx, tenantID, entityID); ok {
		return *cached, nil
	}
	profile, err := s.store.GetProfile(ctx, tenantID, entityID)
	if err != nil {
		return contracts.TrustProfile{}, fmt.Errorf("trust: resolve %s: %w", entityID, err)
	}
	ttl := cacheTTL(profile.EffectiveTier(s.clock()))
	if ttl > 0 {
		s.cache.Set(ctx, tenantID, entityID, profile, ttl)
	}
	return profile, nil
}

// CheckCapability reports whether entity holds requested, applying
// minimum-tier overrides and escalation-required capabilities. Critical
// operations (financial, PII access, external API, export) must be passed
// with critical=true, which bypasses the cache and always reads through to
// the store.
func (s *Service) CheckCapability(ctx context.Context, tenantID, entityID, requested string, critical bool) (CheckResult, error) {
	var profile contracts.TrustProfile
	var err error
	if critical {
		profile, err = s.store.GetProfile(ctx, tenantID, entityID)
	} else {
		profile, err = s.Resolve(ctx, tenantID, entityID)
	}
	if err != nil {
		return CheckResult{}, fmt.Errorf("trust: check capability: %w", err)
	}

	if profile.Revoked {
		return CheckResult{Granted: false, Reason: "revoked"}, nil
	}

	now := s.clock()
	tier := profile.EffectiveTier(now)
	minTier := s.minimumTier(requested)

	if !tier.AtLeast(minTier) {
		return CheckResult{Granted: false, Reason: "insufficient_trust_tier"}, nil
	}
	if !capabilities.MatchAny(profile.GrantedCapabilities, requested) {
		return CheckResult{Granted: false, Reason: "insufficient_capability"}, nil
	}

	if capabilities.RequiresEscalation(requested) {
		return CheckResult{Granted: true, Reason: "capability_requires_escalation", RequiresEscalation: true}, nil
	}
	return CheckResult{Granted: true, Reason: "granted"}, nil
}

// minimumTier resolves requested's minimum tier, honoring any configured
// override that narrows (lowers) it — overrides never raise a requirement
// and never waive escalation.
func (s *Service) minimumTier(requested string) contracts.Tier {
	base := capabilities.MinimumTier(requested)
	for _, o := range s.overrides {
		if capabilities.Match(o.Capability, requested) && o.MinimumTier.Rank() < base.Rank() {
			base = o.MinimumTier
		}
	}
	return base
}

// AdjustTrust applies delta to entity's score from evidence, clamping to
// [0,1000], and returns the new score. Calls are throttled per Service to
// bound write amplification from a noisy evidence feed.
func (s *Service) AdjustTrust(ctx context.Context, tenantID, entityID string, delta int, evidence string) (int, error) {
	if !s.limiter.Allow() {
		return 0, fmt.Errorf("trust: adjustment rate limit exceeded for %s", entityID)
	}

	profile, err := s.store.GetProfile(ctx, tenantID, entityID)
	if err != nil {
		return 0, fmt.Errorf("trust: adjust trust: %w", err)
	}

	newScore := profile.Score + delta
	if newScore < 0 {
		newScore = 0
	}
	if newScore > 1000 {
		newScore = 1000
	}
	profile.Score = newScore
	profile.UpdatedAt = s.clock()

	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return 0, fmt.Errorf("trust: persist adjusted score: %w", err)
	}
	s.cache.Invalidate(ctx, tenantID, entityID)
	return newScore, nil
}

// Revoke marks entity revoked and, when requested, propagates the
// revocation transitively to every entity in its delegation subtree. Revoke
// always executes synchronously; the returned outcome does not carry the
// tier-dependent revocationSLA, and nothing here checks against it.
func (s *Service) Revoke(ctx context.Context, tenantID, entityID, reason string, opts RevokeOptions) (RevocationOutcome, error) {
	profile, err := s.store.GetProfile(ctx, tenantID, entityID)
	if err != nil {
		return RevocationOutcome{}, fmt.Errorf("trust: revoke: %w", err)
	}
	profile.Revoked = true
	profile.RevokedReason = reason
	profile.UpdatedAt = s.clock()
	if err := s.store.SaveProfile(ctx, profile); err != nil {
		return RevocationOutcome{}, fmt.Errorf("trust: persist revocation: %w", err)
	}
	s.cache.Invalidate(ctx, tenantID, entityID)

	outcome := RevocationOutcome{EntityID: entityID, Reason: reason, RevokedAt: profile.UpdatedAt}
	if opts.PropagateToDelegates {
		revoked, err := s.revokeSubtree(ctx, tenantID, entityID, reason, map[string]bool{entityID: true})
		if err != nil {
			return outcome, err
		}
		outcome.DelegatesRevoked = revoked
	}
	return outcome, nil
}

func (s *Service) revokeSubtree(ctx context.Context, tenantID, entityID, reason string, visited map[string]bool) ([]string, error) {
	delegates, err := s.store.Delegates(ctx, tenantID, entityID)
	if err != nil {
		return nil, fmt.Errorf("trust: list delegates of %s: %w", entityID, err)
	}

	var revoked []string
	for _, delegateID := range delegates {
		if visited[delegateID] {
			continue
		}
		visited[delegateID] = true

		profile, err := s.store.GetProfile(ctx, tenantID, delegateID)
		if err != nil {
			continue
		}
		profile.Revoked = true
		profile.RevokedReason = fmt.Sprintf("upstream revocation: %s", reason)
		profile.UpdatedAt = s.clock()
		if err := s.store.SaveProfile(ctx, profile); err != nil {
			return revoked, fmt.Errorf("trust: persist cascaded revocation for %s: %w", delegateID, err)
		}
		s.cache.Invalidate(ctx, tenantID, delegateID)
		revoked = append(revoked, delegateID)

		nested, err := s.revokeSubtree(ctx, tenantID, delegateID, reason, visited)
		if err != nil {
			return revoked, err
		}
		revoked = append(revoked, nested...)
	}
	return revoked, nil
}
