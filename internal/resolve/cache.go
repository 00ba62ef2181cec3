package resolve

import (
	"sync"
	"time"

	"agentvault/internal/domain"
	"agentvault/internal/platform/clock"
)

// tokenCache is a short-lived positive cache of token records keyed by
// prefix. It only ever holds records that existed at lookup time; a
// disabled or deleted token is honored for at most the TTL. Negative
// results are not cached so a freshly issued token works immediately.
type tokenCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	record    domain.AccessToken
	expiresAt time.Time
}

func newTokenCache(clk clock.Clock, ttl time.Duration) *tokenCache {
	return &tokenCache{clock: clk, ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *tokenCache) get(prefix string) (domain.AccessToken, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[prefix]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, prefix)
		return domain.AccessToken{}, false
	}
	return e.record, true
}

func (c *tokenCache) put(record domain.AccessToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[record.TokenPrefix] = cacheEntry{
		record:    record,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}
