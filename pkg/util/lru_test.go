package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache, err := NewLRUCache[string, int](CacheConfig{Capacity: 2})
	require.NoError(t, err)

	cache.Put("a", 1)
	cache.Put("b", 2)

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Put("c", 3)

	_, ok = cache.Get("b")
	assert.False(t, ok)
	_, ok = cache.Get("a")
	assert.True(t, ok)
	_, ok = cache.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestLRUCacheUpdatesExistingKey(t *testing.T) {
	cache, err := NewLRUCache[string, int](CacheConfig{Capacity: 2})
	require.NoError(t, err)

	cache.Put("a", 1)
	cache.Put("a", 9)

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, 9, got)
	assert.Equal(t, 1, cache.Len())
}

func TestLRUCacheExpiresEntries(t *testing.T) {
	cache, err := NewLRUCache[string, int](CacheConfig{Capacity: 4, TTL: 10 * time.Millisecond})
	require.NoError(t, err)

	cache.Put("a", 1)
	time.Sleep(20 * time.Millisecond)

	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestLRUCacheRequiresCapacity(t *testing.T) {
	_, err := NewLRUCache[string, int](CacheConfig{})
	assert.Error(t, err)
}
