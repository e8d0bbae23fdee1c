// Copyright 2025 Halcyonic Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package search

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/halcyonic/recallbox/core"
)

const (
	// DefaultCacheTTL is the entry lifetime when Put gets no explicit TTL.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCap is the soft bound on live cache entries.
	DefaultCacheCap = 100
)

type cacheEntry struct {
	result   *core.SearchResult
	storedAt time.Time
	ttl      time.Duration
	hitCount int
}

// ResultCache is a bounded, expiring cache of search results keyed by
// (tenant, normalized query). Entries expire by TTL evaluated at read time;
// when the cap is exceeded, expired entries go first, then the least-hit ones.
//
// A single mutex serializes all access. The cache is not a hot path;
// correctness of hit counters and eviction bookkeeping wins over throughput.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// CacheOption configures a ResultCache.
type CacheOption func(*ResultCache) error

// WithCacheTTL sets the default entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *ResultCache) error {
		if ttl <= 0 {
			return fmt.Errorf("cache TTL must be positive, got %v", ttl)
		}
		c.defaultTTL = ttl
		return nil
	}
}

// WithCacheCap sets the soft bound on live entries.
func WithCacheCap(cap int) CacheOption {
	return func(c *ResultCache) error {
		if cap < 1 {
			return fmt.Errorf("cache cap must be at least 1, got %d", cap)
		}
		c.maxEntries = cap
		return nil
	}
}

// WithClock injects a time source, used by tests to control expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ResultCache) error {
		if now == nil {
			now = time.Now
		}
		c.now = now
		return nil
	}
}

// WithCacheLogger sets a custom logger.
// Default is slog.Default().
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *ResultCache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewResultCache creates a result cache with the default TTL and cap.
func NewResultCache(opts ...CacheOption) (*ResultCache, error) {
	c := &ResultCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: DefaultCacheCap,
		defaultTTL: DefaultCacheTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Key derives the deterministic cache key for a tenant and query.
// The query is lowercased and trimmed so trivially different spellings
// of the same question share an entry.
func (c *ResultCache) Key(tenant core.TenantID, query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h, _ := blake2b.New(16, nil)
	fmt.Fprintf(h, "%d:%s", tenant, normalized)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, or false on a miss.
// An entry past its TTL is a miss even before any eviction sweep runs.
// A hit increments the entry's hit counter.
func (c *ResultCache) Get(key string) (*core.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expired(entry) {
		delete(c.entries, key)
		return nil, false
	}

	entry.hitCount++
	return entry.result, true
}

// Put stores a result under key. A non-positive ttl uses the default.
func (c *ResultCache) Put(key string, result *core.SearchResult, ttl time.Duration) {
	if result == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}

	c.entries[key] = &cacheEntry{
		result:   result,
		storedAt: c.now(),
		ttl:      ttl,
	}
}

// Cleanup removes all expired entries. Safe to call out-of-band.
func (c *ResultCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpiredLocked()
}

// Len returns the number of stored entries, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrCompute returns the cached note list for (tenant, query) or runs
// compute and caches its non-empty result. The lock is never held across
// the compute call, so concurrent misses may compute in parallel; the last
// writer wins, which is harmless for idempotent retrieval.
func (c *ResultCache) GetOrCompute(ctx context.Context, tenant core.TenantID, query string, compute func(ctx context.Context) ([]*core.Note, error)) ([]*core.Note, error) {
	key := c.Key(tenant, query)

	if cached, ok := c.Get(key); ok {
		c.logger.Debug("cache hit", "key", key)
		return cached.Notes, nil
	}

	notes, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	if len(notes) > 0 {
		c.Put(key, &core.SearchResult{Notes: notes, TotalFound: len(notes)}, 0)
	}
	return notes, nil
}

func (c *ResultCache) expired(entry *cacheEntry) bool {
	return c.now().Sub(entry.storedAt) > entry.ttl
}

func (c *ResultCache) sweepExpiredLocked() {
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
		}
	}
}

// evictLocked makes room for one insert: expired entries first, then the
// least-hit entries until the cache is below its cap.
func (c *ResultCache) evictLocked() {
	c.sweepExpiredLocked()

	for len(c.entries) >= c.maxEntries {
		victimKey := ""
		victimHits := 0
		for key, entry := range c.entries {
			if victimKey == "" || entry.hitCount < victimHits {
				victimKey = key
				victimHits = entry.hitCount
			}
		}
		if victimKey == "" {
			return
		}
		c.logger.Debug("evicting cache entry", "key", victimKey, "hits", victimHits)
		delete(c.entries, victimKey)
	}
}
