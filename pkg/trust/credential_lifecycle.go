package trust

import (
	"fmt"
	"sync"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
)

// CredentialLifecycle tracks the issue/rotate/revoke/expire lifecycle of
// Semantic Credentials, keyed by DID, with a generation counter so a
// rotated credential's prior generation can still be told apart from a
// forged replay.
type CredentialLifecycle struct {
	mu          sync.Mutex
	credentials map[string]*contracts.SemanticCredential
	maxAge      time.Duration
	clock       func() time.Time
}

// NewCredentialLifecycle constructs a manager issuing credentials valid
// for maxAge.
func NewCredentialLifecycle(maxAge time.Duration) *CredentialLifecycle {
	return &CredentialLifecycle{
		credentials: make(map[string]*contracts.SemanticCredential),
		maxAge:      maxAge,
		clock:       time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (m *CredentialLifecycle) WithClock(clock func() time.Time) *CredentialLifecycle {
	m.clock = clock
	return m
}

// Issue installs cred for did at generation 1, active.
func (m *CredentialLifecycle) Issue(did string, cred contracts.SemanticCredential) *contracts.SemanticCredential {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	cred.DID = did
	cred.State = contracts.CredentialActive
	cred.Generation = 1
	cred.IssuedAt = now
	cred.ExpiresAt = now.Add(m.maxAge)
	m.credentials[did] = &cred
	return &cred
}

// Rotate retires the current generation and installs a new one carrying
// the same gates, incrementing Generation.
func (m *CredentialLifecycle) Rotate(did string) (*contracts.SemanticCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.credentials[did]
	if !ok {
		return nil, fmt.Errorf("trust: credential for %q not found", did)
	}

	now := m.clock()
	old.State = contracts.CredentialRotated
	old.RotatedAt = &now

	next := *old
	next.State = contracts.CredentialActive
	next.Generation = old.Generation + 1
	next.IssuedAt = now
	next.ExpiresAt = now.Add(m.maxAge)
	next.RotatedAt = nil
	m.credentials[did] = &next
	return &next, nil
}

// Revoke marks did's current credential revoked.
func (m *CredentialLifecycle) Revoke(did string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[did]
	if !ok {
		return fmt.Errorf("trust: credential for %q not found", did)
	}
	cred.State = contracts.CredentialRevoked
	return nil
}

// Get returns did's current credential, marking it expired in place if
// ExpiresAt has passed.
func (m *CredentialLifecycle) Get(did string) (*contracts.SemanticCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[did]
	if !ok {
		return nil, fmt.Errorf("trust: credential for %q not found", did)
	}
	if cred.State == contracts.CredentialActive && m.clock().After(cred.ExpiresAt) {
		cred.State = contracts.CredentialExpired
	}
	return cred, nil
}

// IsUsable reports whether did's credential may currently gate Semantic
// Governance decisions.
func (m *CredentialLifecycle) IsUsable(did string) bool {
	cred, err := m.Get(did)
	if err != nil {
		return false
	}
	return cred.State == contracts.CredentialActive
}
