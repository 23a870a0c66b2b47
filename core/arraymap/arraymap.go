// Package arraymap provides a small, fixed-capacity, insertion-ordered map
// backed by a slice. Lookups are linear scans, which beats hashing for the
// handful of entries a request header block or a route parameter list holds.
package arraymap

import "iter"

// Entry is one key/value pair of an ArrayMap.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// ArrayMap is a fixed-capacity ordered map.
//
// Once the map holds Cap() entries, further inserts of new keys are rejected
// and the value is handed back to the caller. Overflow is not an error.
type ArrayMap[K, V any] struct {
	entries []Entry[K, V]
	limit   int
	equal   func(a, b K) bool
}

// New creates an ArrayMap comparing keys with ==.
func New[K comparable, V any](capacity int) *ArrayMap[K, V] {
	return NewFunc[K, V](capacity, func(a, b K) bool { return a == b })
}

// NewFunc creates an ArrayMap that compares keys with equal.
func NewFunc[K, V any](capacity int, equal func(a, b K) bool) *ArrayMap[K, V] {
	if capacity < 0 {
		capacity = 0
	}
	return &ArrayMap[K, V]{
		entries: make([]Entry[K, V], 0, capacity),
		limit:   capacity,
		equal:   equal,
	}
}

func (m *ArrayMap[K, V]) index(key K) int {
	for i := range m.entries {
		if m.equal(m.entries[i].Key, key) {
			return i
		}
	}
	return -1
}

// Insert stores value under key.
//
// If key is present its value is replaced and the previous value is
// returned with true. If the map is full the new value is not stored and is
// returned with true. Otherwise the entry is appended and the zero value is
// returned with false.
func (m *ArrayMap[K, V]) Insert(key K, value V) (V, bool) {
	if i := m.index(key); i >= 0 {
		old := m.entries[i].Value
		m.entries[i].Value = value
		return old, true
	}
	if len(m.entries) >= m.limit {
		return value, true
	}
	m.entries = append(m.entries, Entry[K, V]{Key: key, Value: value})
	var zero V
	return zero, false
}

// Append adds a new entry even if key is already present. It reports false
// when the map is full and the entry was dropped.
func (m *ArrayMap[K, V]) Append(key K, value V) bool {
	if len(m.entries) >= m.limit {
		return false
	}
	m.entries = append(m.entries, Entry[K, V]{Key: key, Value: value})
	return true
}

// Get returns the first value stored under key.
func (m *ArrayMap[K, V]) Get(key K) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	if i := m.index(key); i >= 0 {
		return m.entries[i].Value, true
	}
	var zero V
	return zero, false
}

// GetAll returns every value stored under key in insertion order.
func (m *ArrayMap[K, V]) GetAll(key K) []V {
	if m == nil {
		return nil
	}
	var out []V
	for i := range m.entries {
		if m.equal(m.entries[i].Key, key) {
			out = append(out, m.entries[i].Value)
		}
	}
	return out
}

// Contains reports whether key is present.
func (m *ArrayMap[K, V]) Contains(key K) bool {
	return m != nil && m.index(key) >= 0
}

// Remove deletes every entry stored under key and returns the first
// removed value.
func (m *ArrayMap[K, V]) Remove(key K) (V, bool) {
	var (
		first V
		found bool
	)
	kept := m.entries[:0]
	for _, e := range m.entries {
		if m.equal(e.Key, key) {
			if !found {
				first, found = e.Value, true
			}
			continue
		}
		kept = append(kept, e)
	}
	clear(m.entries[len(kept):])
	m.entries = kept
	return first, found
}

// Len returns the number of entries.
func (m *ArrayMap[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Cap returns the fixed capacity.
func (m *ArrayMap[K, V]) Cap() int {
	if m == nil {
		return 0
	}
	return m.limit
}

// At returns the i-th entry in insertion order.
func (m *ArrayMap[K, V]) At(i int) Entry[K, V] {
	return m.entries[i]
}

// All iterates over the entries in insertion order.
func (m *ArrayMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil {
			return
		}
		for _, e := range m.entries {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

// Reset empties the map but keeps its capacity.
func (m *ArrayMap[K, V]) Reset() {
	clear(m.entries)
	m.entries = m.entries[:0]
}
