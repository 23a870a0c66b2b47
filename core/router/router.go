package router

import (
	"github.com/searchktools/archive-server/core/arraymap"
	"github.com/searchktools/archive-server/core/http"
)

// Table keeps one PathTree per request method.
type Table[T any] struct {
	trees *arraymap.ArrayMap[http.Method, *PathTree[T]]
}

// NewTable creates an empty route table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		trees: arraymap.New[http.Method, *PathTree[T]](len(http.Methods)),
	}
}

// Add registers data for method and pattern.
func (t *Table[T]) Add(method http.Method, pattern string, data T) {
	tree, ok := t.trees.Get(method)
	if !ok {
		tree = NewPathTree[T]()
		t.trees.Insert(method, tree)
	}
	tree.Insert(pattern, data)
}

// Find looks up path in the tree for method.
func (t *Table[T]) Find(method http.Method, path string) (T, []Param, bool) {
	tree, ok := t.trees.Get(method)
	if !ok {
		var zero T
		return zero, nil, false
	}
	return tree.Find(path)
}

// Allowed returns the methods that have a route matching path.
func (t *Table[T]) Allowed(path string) []http.Method {
	var out []http.Method
	for method, tree := range t.trees.All() {
		if _, _, ok := tree.Find(path); ok {
			out = append(out, method)
		}
	}
	return out
}
