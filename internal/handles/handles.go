// Package handles provides a thread-safe table mapping opaque keys to Go values.
//
// Keys are handed to code that must not hold a direct pointer (a WASM guest,
// a bridge that may outlive its request). Keys are never reused, so a stale
// key resolves to nothing instead of to an unrelated value.
package handles

import (
	"sync"
)

// Key identifies a value in a Table. The zero Key is never issued.
type Key = uint64

// Table stores values of type T under monotonically increasing keys.
type Table[T any] struct {
	mu      sync.RWMutex
	entries map[Key]T
	nextID  Key
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{
		entries: make(map[Key]T),
		nextID:  1,
	}
}

// Register stores v and returns its key.
func (t *Table[T]) Register(v T) Key {
	return t.Add(func(Key) T { return v })
}

// Add reserves a key, builds the value with it and stores the result.
// build runs under the table lock and must not call back into the table.
func (t *Table[T]) Add(build func(Key) T) Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.entries[id] = build(id)
	return id
}

// Update replaces the value under key if key is still live.
func (t *Table[T]) Update(key Key, v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		return false
	}
	t.entries[key] = v
	return true
}

// Lookup returns the value stored under key.
func (t *Table[T]) Lookup(key Key) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// Release removes key and returns the value it held.
// Releasing an unknown key is a no-op.
func (t *Table[T]) Release(key Key) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return v, ok
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Keys returns the live keys in no particular order.
func (t *Table[T]) Keys() []Key {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		out = append(out, k)
	}
	return out
}

// Snapshot returns the live values in no particular order.
func (t *Table[T]) Snapshot() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.entries))
	for _, v := range t.entries {
		out = append(out, v)
	}
	return out
}
