package index

import (
	"container/list"
	"sync"
	"time"

	"github.com/cuemby/graphd/pkg/metrics"
)

// CacheConfig controls the query-result cache. A zero TTL disables
// time-based expiry; a zero MaxEntries disables the LRU size bound. Both
// can be active at once.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type cacheKey struct {
	indexName string
	field     string
	encoded   string // encoded field value bytes
}

type cacheEntry struct {
	records   []string
	version   uint64 // index version at fill time
	createdAt time.Time
	elem      *list.Element
}

// Cache memoizes exact-lookup results per (index, field, value). Every
// write through the updater bumps the owning index's version; a cached
// entry is served only while both its version still matches and its TTL
// has not elapsed. Eviction is LRU when MaxEntries is exceeded.
type Cache struct {
	cfg CacheConfig

	mu       sync.Mutex
	entries  map[cacheKey]*cacheEntry
	lru      *list.List // of cacheKey, front = most recent
	versions map[string]uint64
}

func NewCache(cfg CacheConfig) *Cache {
	return &Cache{
		cfg:      cfg,
		entries:  make(map[cacheKey]*cacheEntry),
		lru:      list.New(),
		versions: make(map[string]uint64),
	}
}

// Get returns the cached record keys for (indexName, field, encoded), or
// false when absent, stale, or expired.
func (c *Cache) Get(indexName, field string, encoded []byte) ([]string, bool) {
	key := cacheKey{indexName, field, string(encoded)}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.IndexCacheMissesTotal.Inc()
		return nil, false
	}
	if e.version != c.versions[indexName] {
		c.removeLocked(key, e)
		metrics.IndexCacheMissesTotal.Inc()
		return nil, false
	}
	if c.cfg.TTL > 0 && time.Since(e.createdAt) > c.cfg.TTL {
		c.removeLocked(key, e)
		metrics.IndexCacheMissesTotal.Inc()
		return nil, false
	}

	c.lru.MoveToFront(e.elem)
	metrics.IndexCacheHitsTotal.Inc()
	return append([]string(nil), e.records...), true
}

// Put stores a lookup result at the index's current version.
func (c *Cache) Put(indexName, field string, encoded []byte, records []string) {
	key := cacheKey{indexName, field, string(encoded)}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}
	e := &cacheEntry{
		records:   append([]string(nil), records...),
		version:   c.versions[indexName],
		createdAt: time.Now(),
	}
	e.elem = c.lru.PushFront(key)
	c.entries[key] = e

	if c.cfg.MaxEntries > 0 {
		for len(c.entries) > c.cfg.MaxEntries {
			back := c.lru.Back()
			if back == nil {
				break
			}
			evictKey := back.Value.(cacheKey)
			c.removeLocked(evictKey, c.entries[evictKey])
		}
	}
}

// Invalidate bumps indexName's version so every cached entry for it stops
// being served. Called by the updater on any write to the index.
func (c *Cache) Invalidate(indexName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[indexName]++
}

// Len reports how many entries are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(key cacheKey, e *cacheEntry) {
	if e == nil {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.entries, key)
}
