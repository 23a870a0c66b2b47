package http

import (
	"iter"
	"strings"

	"github.com/searchktools/archive-server/core/arraymap"
)

// Header names used by the engine.
const (
	HeaderAcceptEncoding   = "Accept-Encoding"
	HeaderConnection       = "Connection"
	HeaderContentEncoding  = "Content-Encoding"
	HeaderContentLength    = "Content-Length"
	HeaderContentType      = "Content-Type"
	HeaderHost             = "Host"
	HeaderLocation         = "Location"
	HeaderServer           = "Server"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderUserAgent        = "User-Agent"
	HeaderVary             = "Vary"
)

// Header block capacities. Entries beyond the capacity are dropped.
const (
	RequestHeaderCapacity  = 32
	ResponseHeaderCapacity = 64
)

// Headers is an ordered header block with case-insensitive names.
// Duplicate names keep separate entries.
type Headers struct {
	m *arraymap.ArrayMap[string, string]
}

// NewHeaders creates a header block holding at most capacity entries.
func NewHeaders(capacity int) *Headers {
	return &Headers{m: arraymap.NewFunc[string, string](capacity, strings.EqualFold)}
}

// Get returns the first value for name.
func (h *Headers) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	return h.m.Get(name)
}

// Value returns the first value for name or "".
func (h *Headers) Value(name string) string {
	v, _ := h.Get(name)
	return v
}

// Values returns every value for name in order.
func (h *Headers) Values(name string) []string {
	if h == nil {
		return nil
	}
	return h.m.GetAll(name)
}

// Add appends an entry. It reports false if the block is full.
func (h *Headers) Add(name, value string) bool {
	return h.m.Append(name, value)
}

// Set replaces every entry for name with a single one.
func (h *Headers) Set(name, value string) bool {
	h.m.Remove(name)
	return h.m.Append(name, value)
}

// Del removes every entry for name.
func (h *Headers) Del(name string) {
	h.m.Remove(name)
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	return h != nil && h.m.Contains(name)
}

// Len returns the number of entries.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return h.m.Len()
}

// All iterates over the entries in insertion order.
func (h *Headers) All() iter.Seq2[string, string] {
	if h == nil {
		return func(func(string, string) bool) {}
	}
	return h.m.All()
}
