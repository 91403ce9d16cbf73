// Package marketcache implements the market-metadata is_live lookup: a
// TTL-bounded cache fronting the CLOB client's FetchMarketIsLive, so the
// order worker's per-event lookup doesn't re-hit the network for a token
// it already resolved within the last few seconds.
package marketcache

import (
	"context"
	"sync"
	"time"
)

// liveFetcher is the subset of the CLOB client this cache fronts.
type liveFetcher interface {
	FetchMarketIsLive(ctx context.Context, tokenID string) (bool, error)
}

type entry struct {
	isLive    bool
	fetchedAt time.Time
}

// Cache is a TTL-bounded, best-effort is_live lookup. A stale or absent
// entry is refetched; a failed fetch degrades to false rather than erroring.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	client  liveFetcher
	now     func() time.Time
}

// New builds a cache with the given TTL, backed by client for cache misses.
func New(ttl time.Duration, client liveFetcher) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		client:  client,
		now:     time.Now,
	}
}

// IsLive returns the best-effort is_live status for tokenID, refreshing
// from the client when the cached entry is stale or absent. Any transport
// error degrades to false, never propagated to the caller.
func (c *Cache) IsLive(ctx context.Context, tokenID string) bool {
	c.mu.Lock()
	e, ok := c.entries[tokenID]
	fresh := ok && c.now().Sub(e.fetchedAt) < c.ttl
	c.mu.Unlock()
	if fresh {
		return e.isLive
	}

	live, err := c.client.FetchMarketIsLive(ctx, tokenID)
	if err != nil {
		live = false
	}

	c.mu.Lock()
	c.entries[tokenID] = entry{isLive: live, fetchedAt: c.now()}
	c.mu.Unlock()
	return live
}
