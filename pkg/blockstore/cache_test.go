package blockstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallBlock returns a block whose footprint is dominated by its
// neighbor arrays, handy for byte-budget math.
func smallBlock(id uint32, edges int) *Block {
	b := NewBlock(id, 1)
	b.NbrOut = make([]uint32, edges)
	b.LblOut = make([]uint8, edges)
	return b
}

func TestCacheHitAndMiss(t *testing.T) {
	c := NewCache(1 << 20)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Put(smallBlock(1, 10))
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, uint32(1), got.ID)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Blocks)
}

func TestCacheEvictsLRU(t *testing.T) {
	one := smallBlock(1, 100)
	budget := 3*one.MemBytes() + one.MemBytes()/2
	c := NewCache(budget)

	for id := uint32(1); id <= 3; id++ {
		c.Put(smallBlock(id, 100))
	}
	// Touch 1 so 2 becomes the LRU victim.
	_, ok := c.Get(1)
	require.True(t, ok)

	c.Put(smallBlock(4, 100))

	_, ok = c.Get(2)
	assert.False(t, ok, "block 2 was the least recently used")
	_, ok = c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(4)
	assert.True(t, ok)
}

func TestCachePutReplacesExisting(t *testing.T) {
	c := NewCache(1 << 20)
	c.Put(smallBlock(5, 10))
	c.Put(smallBlock(5, 20))

	got, ok := c.Get(5)
	require.True(t, ok)
	assert.Equal(t, 20, len(got.NbrOut))
	assert.Equal(t, 1, c.Stats().Blocks)
}

func TestCacheShrink(t *testing.T) {
	blockBytes := smallBlock(0, 1000).MemBytes()
	budget := 4 * blockBytes
	c := NewCache(budget)
	for id := uint32(0); id < 10; id++ {
		c.Put(smallBlock(id, 1000))
	}
	before := c.Stats().HotBytes
	require.Equal(t, 4*blockBytes, before)

	c.Shrink(0.25)
	after := c.Stats()
	assert.Less(t, after.HotBytes, before)
	assert.LessOrEqual(t, after.HotBytes, uint64(float64(budget)*0.25))

	c.Shrink(0)
	assert.Equal(t, 0, c.Stats().Blocks)
}

func TestCacheAdmitsOversizedBlock(t *testing.T) {
	c := NewCache(64)
	c.Put(smallBlock(1, 10000))

	_, ok := c.Get(1)
	assert.True(t, ok, "a block over the whole budget is still served")
}
