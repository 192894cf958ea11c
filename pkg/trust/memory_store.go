package trust

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentgov/substrate/pkg/contracts"
)

// MemoryStore is an in-process Store, used by default wiring and tests. It
// is the only Store implementation in this module; there is no SQL-backed
// trust store.
type MemoryStore struct {
	mu         sync.RWMutex
	profiles   map[string]contracts.TrustProfile
	delegation map[string][]string
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]contracts.TrustProfile),
		delegation: make(map[string][]string),
	}
}

func (s *MemoryStore) GetProfile(ctx context.Context, tenantID, entityID string) (contracts.TrustProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[key(tenantID, entityID)]
	if !ok {
		return contracts.TrustProfile{}, fmt.Errorf("trust: profile %s/%s not found", tenantID, entityID)
	}
	return p, nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, profile contracts.TrustProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[key(profile.TenantID, profile.EntityID)] = profile
	return nil
}

func (s *MemoryStore) Delegates(ctx context.Context, tenantID, entityID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.delegation[key(tenantID, entityID)]...), nil
}

func (s *MemoryStore) RecordDelegation(ctx context.Context, tenantID, issuerID, delegateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenantID, issuerID)
	s.delegation[k] = append(s.delegation[k], delegateID)
	return nil
}
