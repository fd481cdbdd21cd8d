package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantmill/marketcache/signature"
)

func sigOf(n int64) signature.Composite {
	return signature.Single("/src", signature.Signature{ModTimeNanos: n, Size: n})
}

func TestMemoryLookupMiss(t *testing.T) {
	m := NewMemory[string](4)
	_, ok := m.Lookup(NewKey("/a"), sigOf(1))
	assert.False(t, ok)
}

func TestMemoryStoreLookup(t *testing.T) {
	m := NewMemory[string](4)
	m.Store(NewKey("/a"), sigOf(1), "payload")

	val, ok := m.Lookup(NewKey("/a"), sigOf(1))
	require.True(t, ok)
	assert.Equal(t, "payload", val)
}

func TestMemorySignatureMismatchIsMiss(t *testing.T) {
	m := NewMemory[string](4)
	m.Store(NewKey("/a"), sigOf(1), "stale")

	_, ok := m.Lookup(NewKey("/a"), sigOf(2))
	assert.False(t, ok)

	// Refresh replaces the stale entry in place.
	m.Store(NewKey("/a"), sigOf(2), "fresh")
	val, ok := m.Lookup(NewKey("/a"), sigOf(2))
	require.True(t, ok)
	assert.Equal(t, "fresh", val)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory[int](3)
	for i := 0; i < 3; i++ {
		m.Store(NewKey(fmt.Sprintf("/f%d", i)), sigOf(1), i)
	}

	// Touch /f0 so /f1 becomes the LRU entry.
	_, ok := m.Lookup(NewKey("/f0"), sigOf(1))
	require.True(t, ok)

	m.Store(NewKey("/f3"), sigOf(1), 3)

	_, ok = m.Lookup(NewKey("/f1"), sigOf(1))
	assert.False(t, ok, "LRU entry must be evicted")
	for _, p := range []string{"/f0", "/f2", "/f3"} {
		_, ok := m.Lookup(NewKey(p), sigOf(1))
		assert.True(t, ok, "%s must survive", p)
	}
	assert.Equal(t, 3, m.Len())
}

func TestMemoryCapacityPlusOne(t *testing.T) {
	const capacity = 5
	m := NewMemory[int](capacity)
	for i := 0; i <= capacity; i++ {
		m.Store(NewKey(fmt.Sprintf("/f%d", i)), sigOf(1), i)
	}

	assert.Equal(t, capacity, m.Len())
	_, ok := m.Lookup(NewKey("/f0"), sigOf(1))
	assert.False(t, ok, "exactly the least-recently-used key is evicted")
	for i := 1; i <= capacity; i++ {
		_, ok := m.Lookup(NewKey(fmt.Sprintf("/f%d", i)), sigOf(1))
		assert.True(t, ok)
	}
}

func TestMemoryInvalidatePathRemovesAllProjections(t *testing.T) {
	m := NewMemory[string](8)
	m.Store(NewKey("/p.csv"), sigOf(1), "full")
	m.Store(NewKey("/p.csv", "ticker"), sigOf(1), "proj1")
	m.Store(NewKey("/p.csv", "ticker", "close"), sigOf(1), "proj2")
	m.Store(NewKey("/other.csv"), sigOf(1), "other")

	m.InvalidatePath("/p.csv")

	assert.Equal(t, 1, m.Len())
	_, ok := m.Lookup(NewKey("/other.csv"), sigOf(1))
	assert.True(t, ok)
}

func TestMemoryInvalidatePathHitsCompositeDependents(t *testing.T) {
	m := NewMemory[string](8)
	composite := signature.Composite{
		{Path: "/results/a.json", Sig: signature.Signature{ModTimeNanos: 1, Size: 1}},
		{Path: "/results/b.json", Sig: signature.Signature{ModTimeNanos: 2, Size: 2}},
	}
	m.Store(NewKey("glob:/results/*.json"), composite, "listing")

	m.InvalidatePath("/results/b.json")
	assert.Equal(t, 0, m.Len())
}

func TestMemoryCloneProtectsCaller(t *testing.T) {
	m := NewMemory[[]string](4, WithClone(func(v []string) []string {
		return append([]string(nil), v...)
	}))
	m.Store(NewKey("/a"), sigOf(1), []string{"x"})

	val, ok := m.Lookup(NewKey("/a"), sigOf(1))
	require.True(t, ok)
	val[0] = "mutated"

	again, ok := m.Lookup(NewKey("/a"), sigOf(1))
	require.True(t, ok)
	assert.Equal(t, "x", again[0], "caller mutation must not leak into the cache")
}

func TestMemoryLookupSharedSkipsClone(t *testing.T) {
	clones := 0
	m := NewMemory[[]string](4, WithClone(func(v []string) []string {
		clones++
		return append([]string(nil), v...)
	}))
	m.Store(NewKey("/a"), sigOf(1), []string{"x"})

	_, ok := m.LookupShared(NewKey("/a"), sigOf(1))
	require.True(t, ok)
	assert.Zero(t, clones)

	_, ok = m.Lookup(NewKey("/a"), sigOf(1))
	require.True(t, ok)
	assert.Equal(t, 1, clones)
}

func TestNewMemoryPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { NewMemory[int](0) })
}
