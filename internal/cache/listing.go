// Package cache serves token and redemption-log listings with a bounded
// staleness window.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru"

	"github.com/fairyhunter13/allowance-token-system/internal/clock"
	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

const (
	keyTokens        = "tokens"
	keyRedemptionLog = "uses"
)

// Source performs the full-table reads the cache fronts.
type Source interface {
	ListTokens(ctx context.Context) ([]model.Token, error)
	ListRedemptionLog(ctx context.Context) ([]model.RedemptionLogEntry, error)
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// ListingCache is a read-through cache over Source. Entries older than ttl
// are reloaded; Invalidate drops everything. A ttl of zero disables caching.
type ListingCache struct {
	src     Source
	ttl     time.Duration
	clock   clock.Clock
	entries *lru.Cache
	// generation advances on every Invalidate so a load that raced with a
	// mutation is not stored. mu makes the check-and-add in store atomic
	// with the bump-and-purge in Invalidate.
	generation atomic.Uint64
	mu         sync.Mutex
}

// NewListingCache creates a ListingCache holding at most size entries.
func NewListingCache(src Source, ttl time.Duration, size int, clk clock.Clock) (*ListingCache, error) {
	if size < 2 {
		size = 2
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "create lru")
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &ListingCache{src: src, ttl: ttl, clock: clk, entries: entries}, nil
}

// ListTokens returns the token listing, at most ttl old.
func (c *ListingCache) ListTokens(ctx context.Context) ([]model.Token, error) {
	if v, ok := c.fresh(keyTokens); ok {
		return cloneSlice(v.([]model.Token)), nil
	}
	gen := c.generation.Load()
	tokens, err := c.src.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	c.store(keyTokens, gen, cloneSlice(tokens))
	return cloneSlice(tokens), nil
}

// ListRedemptionLog returns the redemption log, at most ttl old.
func (c *ListingCache) ListRedemptionLog(ctx context.Context) ([]model.RedemptionLogEntry, error) {
	if v, ok := c.fresh(keyRedemptionLog); ok {
		return cloneSlice(v.([]model.RedemptionLogEntry)), nil
	}
	gen := c.generation.Load()
	entries, err := c.src.ListRedemptionLog(ctx)
	if err != nil {
		return nil, err
	}
	c.store(keyRedemptionLog, gen, cloneSlice(entries))
	return cloneSlice(entries), nil
}

// Invalidate discards every cached listing. Mutating operations call it
// before they return.
func (c *ListingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.entries.Purge()
}

func (c *ListingCache) fresh(key string) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	raw, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	e := raw.(entry)
	if c.clock.Now().Sub(e.fetchedAt) >= c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return e.value, true
}

func (c *ListingCache) store(key string, gen uint64, value any) {
	if c.ttl <= 0 {
		return
	}
	fetchedAt := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		return
	}
	c.entries.Add(key, entry{value: value, fetchedAt: fetchedAt})
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
