package store

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// RecencyCache is an LRU-bounded, in-process read-through cache in front of
// ScanRecentStableHashes / ScanRecentFuzzyHashes. The SQL query remains the
// source of truth; a cache miss always falls through to it, so a cache miss
// never changes recall — it only saves a repeated full scan within one
// process for an identical limit.
type RecencyCache struct {
	store  *Store
	stable *lru.Cache[int, []ScanStableRow]
	fuzzy  *lru.Cache[int, []ScanFuzzyRow]
}

// NewRecencyCache wraps store with an LRU cache holding up to size entries
// per scan kind (keyed by limit — in practice there is one limit per kind,
// so size can be small).
func NewRecencyCache(store *Store, size int) (*RecencyCache, error) {
	stable, err := lru.New[int, []ScanStableRow](size)
	if err != nil {
		return nil, err
	}
	fuzzy, err := lru.New[int, []ScanFuzzyRow](size)
	if err != nil {
		return nil, err
	}
	return &RecencyCache{store: store, stable: stable, fuzzy: fuzzy}, nil
}

// ScanRecentStableHashes returns the cached scan for limit, or queries the
// store and populates the cache on a miss.
func (c *RecencyCache) ScanRecentStableHashes(limit int) ([]ScanStableRow, error) {
	if rows, ok := c.stable.Get(limit); ok {
		return rows, nil
	}
	rows, err := c.store.ScanRecentStableHashes(limit)
	if err != nil {
		return nil, err
	}
	c.stable.Add(limit, rows)
	return rows, nil
}

// ScanRecentFuzzyHashes returns the cached scan for limit, or queries the
// store and populates the cache on a miss.
func (c *RecencyCache) ScanRecentFuzzyHashes(limit int) ([]ScanFuzzyRow, error) {
	if rows, ok := c.fuzzy.Get(limit); ok {
		return rows, nil
	}
	rows, err := c.store.ScanRecentFuzzyHashes(limit)
	if err != nil {
		return nil, err
	}
	c.fuzzy.Add(limit, rows)
	return rows, nil
}

// Invalidate drops all cached scans. The matching engine calls this after
// every new fingerprint write so the next scan observes it.
func (c *RecencyCache) Invalidate() {
	c.stable.Purge()
	c.fuzzy.Purge()
}
