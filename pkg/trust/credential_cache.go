package trust

import (
	"sync"

	"github.com/agentgov/substrate/pkg/contracts"
)

// CredentialCache is the DID-keyed Semantic Credential cache spec's
// concurrency model requires: loaded per-agent on first use and evicted
// only when Invalidate is called for that DID. The cache does not itself
// react to revocation; a caller invalidates each affected DID.
type CredentialCache struct {
	mu        sync.RWMutex
	lifecycle *CredentialLifecycle
	cached    map[string]*contracts.SemanticCredential
}

// NewCredentialCache wraps a CredentialLifecycle with a read-through cache.
func NewCredentialCache(lifecycle *CredentialLifecycle) *CredentialCache {
	return &CredentialCache{lifecycle: lifecycle, cached: make(map[string]*contracts.SemanticCredential)}
}

// Load returns did's credential, populating the cache on miss.
func (c *CredentialCache) Load(did string) (*contracts.SemanticCredential, error) {
	c.mu.RLock()
	if cred, ok := c.cached[did]; ok {
		c.mu.RUnlock()
		return cred, nil
	}
	c.mu.RUnlock()

	cred, err := c.lifecycle.Get(did)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cached[did] = cred
	c.mu.Unlock()
	return cred, nil
}

// Invalidate evicts did's cached credential, forcing the next Load to
// re-read the lifecycle manager's current state.
func (c *CredentialCache) Invalidate(did string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cached, did)
}
