package trust

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/redis/go-redis/v9"
)

// Cache is the tier-dependent read-through cache spec's concurrency model
// requires in front of the Trust Profile store.
type Cache interface {
	Get(ctx context.Context, tenantID, entityID string) (*contracts.TrustProfile, bool)
	Set(ctx context.Context, tenantID, entityID string, profile contracts.TrustProfile, ttl time.Duration)
	Invalidate(ctx context.Context, tenantID, entityID string)
}

// InMemoryCache is the default Cache for single-process deployments and
// tests.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	profile   contracts.TrustProfile
	expiresAt time.Time
}

// NewInMemoryCache constructs an empty cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]cacheEntry)}
}

func (c *InMemoryCache) Get(ctx context.Context, tenantID, entityID string) (*contracts.TrustProfile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key(tenantID, entityID)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	p := e.profile
	return &p, true
}

func (c *InMemoryCache) Set(ctx context.Context, tenantID, entityID string, profile contracts.TrustProfile, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(tenantID, entityID)] = cacheEntry{profile: profile, expiresAt: time.Now().Add(ttl)}
}

func (c *InMemoryCache) Invalidate(ctx context.Context, tenantID, entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(tenantID, entityID))
}

func key(tenantID, entityID string) string {
	return tenantID + ":" + entityID
}

// RedisCache is the production read-through cache: TTL-bounded JSON blobs
// keyed by tenant+entity, the same client usage shape as pkg/ratelimit's
// Redis token-bucket store.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, tenantID, entityID string) (*contracts.TrustProfile, bool) {
	raw, err := c.client.Get(ctx, redisKey(tenantID, entityID)).Bytes()
	if err != nil {
		return nil, false
	}
	var profile contracts.TrustProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, false
	}
	return &profile, true
}

func (c *RedisCache) Set(ctx context.Context, tenantID, entityID string, profile contracts.TrustProfile, ttl time.Duration) {
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	c.client.Set(ctx, redisKey(tenantID, entityID), raw, ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, tenantID, entityID string) {
	c.client.Del(ctx, redisKey(tenantID, entityID))
}

func redisKey(tenantID, entityID string) string {
	return "trust:profile:" + tenantID + ":" + entityID
}
