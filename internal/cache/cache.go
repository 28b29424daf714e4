// Package cache memoizes computed RATE results in-process.
//
// Requests are keyed by canonical fingerprint, so a hit is guaranteed to be
// the exact same computation: the estimator is a pure function of its
// inputs. The cache is size-bounded with TTL expiration to keep memory flat
// under high-cardinality workloads.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/uplift-eval/ratekit/internal/api"
)

// ResultCache is a thread-safe LRU cache of estimate responses with TTL.
// The underlying LRU is internally synchronized; hit/miss counters are
// atomics.
type ResultCache struct {
	cache  *lru.Cache[string, *cacheEntry]
	ttl    time.Duration
	hits   atomic.Uint64
	misses atomic.Uint64
}

type cacheEntry struct {
	resp      *api.EstimateResponse
	expiresAt time.Time
}

// NewResultCache creates a result cache holding up to size entries. A ttl
// of 0 disables expiration.
func NewResultCache(size int, ttl time.Duration) (*ResultCache, error) {
	c, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &ResultCache{cache: c, ttl: ttl}, nil
}

// Get returns the cached response for a request ID, if present and fresh.
func (c *ResultCache) Get(requestID string) (*api.EstimateResponse, bool) {
	e, ok := c.cache.Get(requestID)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return e.resp, true
}

// Set stores a response, evicting the least recently used entry when full.
func (c *ResultCache) Set(requestID string, resp *api.EstimateResponse) {
	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	c.cache.Add(requestID, &cacheEntry{resp: resp, expiresAt: expiresAt})
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	return c.cache.Len()
}

// Stats reports hit/miss counters for observability.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Size:    c.cache.Len(),
		HitRate: hitRate,
	}
}
