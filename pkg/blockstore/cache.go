package blockstore

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache is a thread-safe LRU cache of decoded blocks bounded by a byte
// budget.
//
// The cache uses a hash map for O(1) lookups and a doubly-linked list
// for LRU ordering. Inserting a block evicts least-recently-used
// victims until the newcomer fits under the budget.
type Cache struct {
	mu sync.Mutex

	maxBytes uint64
	hotBytes uint64

	list  *list.List
	items map[uint32]*list.Element

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is a point-in-time snapshot of cache behavior.
type CacheStats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	HotBytes uint64 `json:"hot_bytes"`
	Blocks   int    `json:"blocks"`
}

// DefaultCacheBytes is the hot budget used when none is configured.
const DefaultCacheBytes = 1 << 30 // 1 GiB

// NewCache creates a block cache with the given hot-byte budget.
func NewCache(maxBytes uint64) *Cache {
	if maxBytes == 0 {
		maxBytes = DefaultCacheBytes
	}
	return &Cache{
		maxBytes: maxBytes,
		list:     list.New(),
		items:    make(map[uint32]*list.Element),
	}
}

// Get returns the cached block for id, marking it most recently used.
func (c *Cache) Get(id uint32) (*Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[id]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.list.MoveToFront(elem)
	return elem.Value.(*Block), true
}

// Put inserts a block, evicting LRU victims until it fits. A block
// larger than the whole budget is still admitted after the cache has
// been emptied; refusing it would wedge every query that needs it.
func (c *Cache) Put(b *Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[b.ID]; ok {
		c.hotBytes -= elem.Value.(*Block).MemBytes()
		c.list.Remove(elem)
		delete(c.items, b.ID)
	}

	size := b.MemBytes()
	c.evictUntil(c.maxBytes - min(size, c.maxBytes))

	c.items[b.ID] = c.list.PushFront(b)
	c.hotBytes += size
}

// Shrink evicts until hot bytes fall to ratio of the budget.
func (c *Cache) Shrink(ratio float64) {
	if ratio < 0 {
		ratio = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictUntil(uint64(float64(c.maxBytes) * ratio))
}

// evictUntil removes LRU entries while hot bytes exceed target.
// Caller holds the lock.
func (c *Cache) evictUntil(target uint64) {
	for c.hotBytes > target {
		elem := c.list.Back()
		if elem == nil {
			return
		}
		victim := elem.Value.(*Block)
		c.list.Remove(elem)
		delete(c.items, victim.ID)
		c.hotBytes -= victim.MemBytes()
	}
}

// Stats returns cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		HotBytes: c.hotBytes,
		Blocks:   c.list.Len(),
	}
}
