package query

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cuemby/flapjack/internal/metrics"
)

const (
	facetCacheTTL             = 5 * time.Second
	defaultFacetCacheCapacity = 4096
)

// FacetCounts maps a facet value to its hit count within the current
// result set.
type FacetCounts map[string]int64

// cacheEntry is what the facet cache stores per key.
type cacheEntry struct {
	facets map[string]FacetCounts
}

// FacetCache is the tenant-keyed, TTL + size-bounded cache of spec I5
// (entries keyed by (tenant, filter-hash, sorted-facet-list), ≤5s TTL,
// oldest-wins eviction on overflow). hashicorp/golang-lru/v2's
// expirable.LRU gives both the TTL and the size cap natively.
type FacetCache struct {
	lru      *expirable.LRU[string, cacheEntry]
	degraded atomic.Bool
}

// NewFacetCache builds a cache with the given entry capacity (default
// when capacity<=0).
func NewFacetCache(capacity int) *FacetCache {
	if capacity <= 0 {
		capacity = defaultFacetCacheCapacity
	}
	onEvict := func(key string, _ cacheEntry) {
		metrics.FacetCacheEvictions.Inc()
	}
	return &FacetCache{lru: expirable.NewLRU[string, cacheEntry](capacity, onEvict, facetCacheTTL)}
}

// Key computes the (tenant, filter-hash, sorted-facet-list) cache key
// of spec I5. The tenant is kept as a literal prefix (rather than
// folded into the hash) so InvalidateTenant can scan by prefix without
// a secondary index.
func Key(tenant, filterExpr string, facets []string) string {
	sorted := append([]string(nil), facets...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(filterExpr))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sorted, ",")))
	return tenant + ":" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached facets for key, recording a hit/miss metric.
func (c *FacetCache) Get(tenant, key string) (map[string]FacetCounts, bool) {
	entry, ok := c.lru.Get(key)
	if ok {
		metrics.FacetCacheHits.WithLabelValues(tenant).Inc()
		return entry.facets, true
	}
	metrics.FacetCacheMisses.WithLabelValues(tenant).Inc()
	return nil, false
}

// Put stores facets under key, unless the cache is degraded (spec §5:
// "memory-pressure middleware may transiently lower the facet-cache
// capacity") — a degraded cache accepts no new entries until restored.
func (c *FacetCache) Put(key string, facets map[string]FacetCounts) {
	if c.degraded.Load() {
		return
	}
	c.lru.Add(key, cacheEntry{facets: facets})
}

// SetDegraded toggles the memory-pressure degraded mode. Entering it
// purges every cached entry immediately (the capacity-zero end of
// "transiently lower the facet-cache capacity"); leaving it resumes
// normal caching.
func (c *FacetCache) SetDegraded(degraded bool) {
	c.degraded.Store(degraded)
	if degraded {
		c.lru.Purge()
	}
}

// InvalidateTenant drops every entry belonging to tenant (spec I4:
// "invalidation of the tenant's ... facet caches"). expirable.LRU has
// no prefix-delete, so entries are removed by scanning keys; this is
// the one operation the library doesn't offer directly, bounded by the
// cache's own small capacity.
func (c *FacetCache) InvalidateTenant(tenant string) {
	prefix := tenant + ":"
	for _, k := range c.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.lru.Remove(k)
		}
	}
}

// TruncateValues caps each facet's value list at maxValues, applied
// post-cache (spec §4.7.6).
func TruncateValues(facets map[string]FacetCounts, maxValues int) map[string]FacetCounts {
	if maxValues <= 0 {
		return facets
	}
	out := make(map[string]FacetCounts, len(facets))
	for field, counts := range facets {
		if len(counts) <= maxValues {
			out[field] = counts
			continue
		}
		type kv struct {
			k string
			v int64
		}
		sorted := make([]kv, 0, len(counts))
		for k, v := range counts {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].v > sorted[j].v })
		trimmed := make(FacetCounts, maxValues)
		for _, e := range sorted[:maxValues] {
			trimmed[e.k] = e.v
		}
		out[field] = trimmed
	}
	return out
}
