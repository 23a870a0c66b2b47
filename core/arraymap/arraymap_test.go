package arraymap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAndGet(t *testing.T) {
	m := New[string, int](4)

	old, displaced := m.Insert("a", 1)
	assert.False(t, displaced)
	assert.Zero(t, old)

	m.Insert("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = m.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestInsertReplacesExistingKey(t *testing.T) {
	m := New[string, int](2)
	m.Insert("a", 1)

	old, displaced := m.Insert("a", 10)
	assert.True(t, displaced)
	assert.Equal(t, 1, old)

	v, _ := m.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, m.Len())
}

func TestCapacityOverflowReturnsValue(t *testing.T) {
	const n = 32
	m := New[int, string](n)

	for i := 0; i < n; i++ {
		_, displaced := m.Insert(i, "v")
		require.False(t, displaced)
	}

	assert.NotPanics(t, func() {
		rejected, displaced := m.Insert(n, "overflow")
		assert.True(t, displaced)
		assert.Equal(t, "overflow", rejected)
	})
	assert.Equal(t, n, m.Len())
	assert.False(t, m.Contains(n))

	// Overwriting an existing key still works when full.
	old, displaced := m.Insert(0, "new")
	assert.True(t, displaced)
	assert.Equal(t, "v", old)
}

func TestAppendKeepsDuplicates(t *testing.T) {
	m := NewFunc[string, string](3, strings.EqualFold)

	assert.True(t, m.Append("Accept", "text/html"))
	assert.True(t, m.Append("accept", "application/xml"))
	assert.True(t, m.Append("Host", "h"))
	assert.False(t, m.Append("X-Extra", "dropped"))

	assert.Equal(t, []string{"text/html", "application/xml"}, m.GetAll("ACCEPT"))
	first, ok := m.Get("accept")
	require.True(t, ok)
	assert.Equal(t, "text/html", first)
}

func TestRemove(t *testing.T) {
	m := NewFunc[string, int](4, strings.EqualFold)
	m.Append("a", 1)
	m.Append("b", 2)
	m.Append("A", 3)

	v, ok := m.Remove("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, "b", m.At(0).Key)

	_, ok = m.Remove("a")
	assert.False(t, ok)
}

func TestAllPreservesOrder(t *testing.T) {
	m := New[string, int](8)
	for i, k := range []string{"z", "y", "x"} {
		m.Insert(k, i)
	}

	var keys []string
	for k := range m.All() {
		keys = append(keys, k)
	}
	assert.Equal(t, []string{"z", "y", "x"}, keys)

	m.Reset()
	assert.Zero(t, m.Len())
	assert.Equal(t, 8, m.Cap())
}

func TestNilMapReads(t *testing.T) {
	var m *ArrayMap[string, int]

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
	assert.False(t, m.Contains("a"))
	for range m.All() {
		t.Fatal("nil map yielded an entry")
	}
}

func BenchmarkArrayMapGet(b *testing.B) {
	m := NewFunc[string, string](32, strings.EqualFold)
	for _, k := range []string{"Host", "User-Agent", "Accept", "Accept-Encoding", "Connection"} {
		m.Append(k, "value")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Get("connection")
	}
}
