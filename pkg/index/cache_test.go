package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheHit(t *testing.T) {
	c := NewCache(CacheConfig{TTL: time.Minute, MaxEntries: 10})
	c.Put("idx", "name", []byte("alice"), []string{"v1", "v2"})

	got, ok := c.Get("idx", "name", []byte("alice"))
	assert.True(t, ok)
	assert.Equal(t, []string{"v1", "v2"}, got)
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(CacheConfig{TTL: time.Minute})
	_, ok := c.Get("idx", "name", []byte("absent"))
	assert.False(t, ok)
}

func TestCacheInvalidatedByVersionBump(t *testing.T) {
	c := NewCache(CacheConfig{TTL: time.Minute})
	c.Put("idx", "name", []byte("alice"), []string{"v1"})
	c.Invalidate("idx")

	_, ok := c.Get("idx", "name", []byte("alice"))
	assert.False(t, ok)

	// Other indexes are unaffected.
	c.Put("other", "name", []byte("alice"), []string{"v9"})
	_, ok = c.Get("other", "name", []byte("alice"))
	assert.True(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(CacheConfig{TTL: time.Nanosecond})
	c.Put("idx", "name", []byte("alice"), []string{"v1"})
	time.Sleep(time.Millisecond)

	_, ok := c.Get("idx", "name", []byte("alice"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 2})
	c.Put("idx", "name", []byte("a"), []string{"1"})
	c.Put("idx", "name", []byte("b"), []string{"2"})

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := c.Get("idx", "name", []byte("a"))
	assert.True(t, ok)

	c.Put("idx", "name", []byte("c"), []string{"3"})
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("idx", "name", []byte("b"))
	assert.False(t, ok)
	_, ok = c.Get("idx", "name", []byte("a"))
	assert.True(t, ok)
}
