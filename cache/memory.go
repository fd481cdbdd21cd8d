package cache

import (
	"container/list"
	"sync"

	"github.com/quantmill/marketcache/signature"
)

type memoryEntry[T any] struct {
	key Key
	sig signature.Composite
	val T
}

// Memory is a bounded, signature-validated LRU for one payload category.
// All methods are safe for concurrent use; the mutex is held only for map
// and list bookkeeping, never across I/O.
type Memory[T any] struct {
	mu       sync.Mutex
	entries  map[Key]*list.Element
	order    *list.List // front = most recently used
	capacity int
	clone    func(T) T
}

// MemoryOption configures a Memory instance.
type MemoryOption[T any] func(*Memory[T])

// WithClone sets the defensive-copy function applied to payloads returned by
// Lookup. Without it, Lookup behaves like LookupShared.
func WithClone[T any](fn func(T) T) MemoryOption[T] {
	return func(m *Memory[T]) { m.clone = fn }
}

// NewMemory creates a memory tier with the given entry capacity.
// Panics if capacity < 1.
func NewMemory[T any](capacity int, opts ...MemoryOption[T]) *Memory[T] {
	if capacity < 1 {
		panic("cache: NewMemory requires capacity >= 1")
	}
	m := &Memory[T]{
		entries:  make(map[Key]*list.Element),
		order:    list.New(),
		capacity: capacity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lookup returns the payload stored under key if its signature equals live.
// A hit moves the entry to the most-recently-used position and returns a
// defensive copy when a clone function is configured. A signature mismatch
// is a miss; the stale entry stays in place until the next Store replaces it.
func (m *Memory[T]) Lookup(key Key, live signature.Composite) (T, bool) {
	val, ok := m.lookup(key, live)
	if ok && m.clone != nil {
		val = m.clone(val)
	}
	return val, ok
}

// LookupShared is Lookup without the defensive copy. The caller must not
// mutate the returned payload; doing so is a caller bug, not a cache bug.
func (m *Memory[T]) LookupShared(key Key, live signature.Composite) (T, bool) {
	return m.lookup(key, live)
}

func (m *Memory[T]) lookup(key Key, live signature.Composite) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	entry := elem.Value.(*memoryEntry[T])
	if !entry.sig.Equal(live) {
		var zero T
		return zero, false
	}
	m.order.MoveToFront(elem)
	return entry.val, true
}

// Store inserts or replaces the payload under key. Replacement discards the
// old value outright. Inserting beyond capacity first evicts the
// least-recently-used entry.
func (m *Memory[T]) Store(key Key, sig signature.Composite, val T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		entry := elem.Value.(*memoryEntry[T])
		entry.sig = sig
		entry.val = val
		m.order.MoveToFront(elem)
		return
	}

	if m.order.Len() >= m.capacity {
		oldest := m.order.Back()
		if oldest == nil {
			panic("cache: LRU order list empty at capacity")
		}
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memoryEntry[T]).key)
	}

	m.entries[key] = m.order.PushFront(&memoryEntry[T]{key: key, sig: sig, val: val})
}

// InvalidatePath removes every entry whose key path matches or whose
// composite signature depends on path, across all projections.
func (m *Memory[T]) InvalidatePath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, elem := range m.entries {
		entry := elem.Value.(*memoryEntry[T])
		if key.Path == path || entry.sig.Contains(path) {
			m.order.Remove(elem)
			delete(m.entries, key)
		}
	}
}

// Len returns the current number of entries.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
