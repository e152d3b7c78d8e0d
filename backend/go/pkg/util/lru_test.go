package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[string, int](CacheConfig{Capacity: 2})
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiresEntries(t *testing.T) {
	now := time.Unix(0, 0)
	c, err := NewLRU[string, string](CacheConfig{Capacity: 4, TTL: time.Minute, Now: func() time.Time { return now }})
	require.NoError(t, err)

	c.Put("k", "v")
	now = now.Add(61 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUHitsExtendTTL(t *testing.T) {
	now := time.Unix(0, 0)
	c, err := NewLRU[string, string](CacheConfig{Capacity: 4, TTL: time.Minute, Now: func() time.Time { return now }})
	require.NoError(t, err)

	c.Put("k", "v")
	created := 0
	c.GetOrCreate("g", func() string { created++; return "g" })

	// 持续访问的条目不会过期
	for i := 0; i < 5; i++ {
		now = now.Add(50 * time.Second)
		_, ok := c.Get("k")
		assert.True(t, ok)
		c.GetOrCreate("g", func() string { created++; return "g" })
	}
	assert.Equal(t, 1, created)

	now = now.Add(61 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestLRUGetOrCreate(t *testing.T) {
	c, err := NewLRU[string, int](CacheConfig{Capacity: 1})
	require.NoError(t, err)

	calls := 0
	create := func() int { calls++; return 7 }
	assert.Equal(t, 7, c.GetOrCreate("x", create))
	assert.Equal(t, 7, c.GetOrCreate("x", create))
	assert.Equal(t, 1, calls)

	assert.True(t, c.Delete("x"))
	assert.False(t, c.Delete("x"))
}

func TestNewLRURejectsZeroCapacity(t *testing.T) {
	_, err := NewLRU[string, int](CacheConfig{})
	assert.Error(t, err)
}
