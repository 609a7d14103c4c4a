package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxEntries: 10, Expiry: time.Hour}, nil)

	entry := Entry{
		Payload:   []byte("segment bytes"),
		Headers:   map[string]string{"content-type": "video/MP2T"},
		Timestamp: time.Now(),
	}
	m.Set("k", entry)

	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, entry.Payload, got.Payload)
	assert.Equal(t, entry.Headers, got.Headers)

	// returned entry is a copy, mutating it must not touch the cache
	got.Payload[0] = 'X'
	got.Headers["content-type"] = "mutated"

	again, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, byte('s'), again.Payload[0])
	assert.Equal(t, "video/MP2T", again.Headers["content-type"])
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxEntries: 10, Expiry: time.Hour}, nil)

	m.Set("old", Entry{Payload: []byte("x"), Timestamp: time.Now().Add(-2 * time.Hour)})

	_, ok := m.Get("old")
	assert.False(t, ok, "expired entry must not be returned")
	assert.Equal(t, 0, m.Len(), "expired entry must be evicted on read")
}

func TestMemoryEvictKeepsRefreshedEntry(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxEntries: 10, Expiry: time.Hour}, nil)

	// a reader that observed an expired entry must not evict the fresh
	// entry a concurrent Set put in its place
	m.Set("k", Entry{Payload: []byte("x"), Timestamp: time.Now()})
	m.evictIfExpired("k")

	assert.True(t, m.Has("k"), "fresh entry must survive a stale eviction attempt")

	m.Set("k", Entry{Payload: []byte("x"), Timestamp: time.Now().Add(-2 * time.Hour)})
	m.evictIfExpired("k")

	assert.False(t, m.Has("k"), "expired entry must be evicted")
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCapacityBound(t *testing.T) {
	const maxEntries = 5

	m := NewMemory(MemoryConfig{MaxEntries: maxEntries, Expiry: time.Hour}, nil)

	base := time.Now()
	for i := 0; i < 20; i++ {
		m.Set(fmt.Sprintf("k%d", i), Entry{
			Payload:   []byte("x"),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
		assert.LessOrEqual(t, m.Len(), maxEntries)
	}

	// oldest entries were evicted first
	_, ok := m.Get("k0")
	assert.False(t, ok)
	_, ok = m.Get("k19")
	assert.True(t, ok)
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory(MemoryConfig{MaxEntries: 10, Expiry: time.Hour}, nil)

	m.Set("fresh", Entry{Payload: []byte("x"), Timestamp: time.Now()})
	m.Set("stale", Entry{Payload: []byte("x"), Timestamp: time.Now().Add(-2 * time.Hour)})

	m.Sweep()

	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Has("fresh"))
	assert.False(t, m.Has("stale"))
}

func TestMemoryDisabled(t *testing.T) {
	m := NewMemory(MemoryConfig{Disabled: true}, nil)

	m.Set("k", Entry{Payload: []byte("x"), Timestamp: time.Now()})

	_, ok := m.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryStats(t *testing.T) {
	stats := &Stats{}
	m := NewMemory(MemoryConfig{MaxEntries: 10, Expiry: time.Hour}, stats)

	m.Set("k", Entry{Payload: []byte("x"), Timestamp: time.Now()})
	m.Get("k")
	m.Get("absent")

	snap := stats.Snapshot()
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
}

func TestKeyDerivation(t *testing.T) {
	assert.Equal(t, Key("http://host/seg.ts"), Key("http://host/seg.ts"))
	assert.NotEqual(t, Key("http://host/a.ts"), Key("http://host/b.ts"))
	assert.NotEqual(t, WindowKey("http://host/f.mp4", 0, 99), WindowKey("http://host/f.mp4", 100, 199))
}
