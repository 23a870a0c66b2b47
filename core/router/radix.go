package router

import "strings"

type nodeType uint8

const (
	static   nodeType = iota // default
	param                    // :param
	catchAll                 // *param
)

// Param is one captured route parameter.
type Param struct {
	Key   string
	Value string
}

// PathTree is a compressed trie mapping path patterns to values of type T.
//
// Patterns are made of literal text, ":name" parameters that capture up to
// the next '/', and a trailing "*name" catch-all that captures the rest of
// the path. A parameter may start in the middle of a segment, as in
// "/opds/root.:ext".
//
// A PathTree is not safe for concurrent Insert. Find may be called
// concurrently once insertion is complete.
type PathTree[T any] struct {
	root      *node[T]
	maxParams int
}

type node[T any] struct {
	nType    nodeType
	path     string // static nodes only
	indices  []byte
	children []*node[T]

	data    T
	hasData bool
	params  []string
}

// NewPathTree creates an empty tree whose root is the static node "/".
func NewPathTree[T any]() *PathTree[T] {
	return &PathTree[T]{root: &node[T]{path: "/"}}
}

// Insert registers data under pattern. Registering the same pattern twice
// replaces the earlier value.
func (t *PathTree[T]) Insert(pattern string, data T) {
	path := strings.TrimLeft(pattern, "/")

	n := t.root
	var names []string

	for path != "" {
		i := strings.IndexAny(path, ":*")
		if i < 0 {
			n = n.addStatic(path)
			break
		}
		if i > 0 {
			n = n.addStatic(path[:i])
		}

		wildcard, rest := path[i], path[i+1:]
		if wildcard == '*' {
			n = n.addDynamic('*', catchAll)
			names = append(names, rest)
			break
		}

		n = n.addDynamic(':', param)
		if end := strings.IndexAny(rest, "*/"); end >= 0 {
			names = append(names, rest[:end])
			path = rest[end:]
		} else {
			names = append(names, rest)
			path = ""
		}
	}

	n.data = data
	n.hasData = true
	n.params = names
	if len(names) > t.maxParams {
		t.maxParams = len(names)
	}
}

// Find returns the value registered for the first pattern matching path and
// the captured parameters in pattern order.
func (t *PathTree[T]) Find(path string) (T, []Param, bool) {
	var zero T

	values := make([]string, 0, t.maxParams)
	n := t.root.find(path, &values)
	if n == nil {
		return zero, nil, false
	}

	count := min(len(n.params), len(values))
	if count == 0 {
		return n.data, nil, true
	}
	params := make([]Param, count)
	for i := 0; i < count; i++ {
		params[i] = Param{Key: n.params[i], Value: values[i]}
	}
	return n.data, params, true
}

func (n *node[T]) childIndex(c byte) int {
	for i, b := range n.indices {
		if b == c {
			return i
		}
	}
	return -1
}

func (n *node[T]) addChild(c byte, child *node[T]) *node[T] {
	n.indices = append(n.indices, c)
	n.children = append(n.children, child)
	return child
}

// addStatic extends the static child starting with text[0], or creates one.
func (n *node[T]) addStatic(text string) *node[T] {
	if i := n.childIndex(text[0]); i >= 0 {
		return n.children[i].insert(text)
	}
	return n.addChild(text[0], &node[T]{nType: static, path: text})
}

// addDynamic returns the param or catch-all child keyed by c, creating it
// when missing. There is at most one such child per node.
func (n *node[T]) addDynamic(c byte, kind nodeType) *node[T] {
	if i := n.childIndex(c); i >= 0 {
		return n.children[i]
	}
	return n.addChild(c, &node[T]{nType: kind})
}

// insert walks text into the subtree rooted at n and returns the node where
// text ends.
func (n *node[T]) insert(text string) *node[T] {
	switch n.nType {
	case catchAll:
		return n
	case param:
		return n.addStatic(text)
	}

	if n.path == "" {
		n.path = text
		return n
	}

	l := longestCommonPrefix(n.path, text)

	// Split edge
	if l < len(n.path) {
		child := &node[T]{
			nType:    static,
			path:     n.path[l:],
			indices:  n.indices,
			children: n.children,
			data:     n.data,
			hasData:  n.hasData,
			params:   n.params,
		}
		var zero T
		*n = node[T]{
			nType:    static,
			path:     n.path[:l],
			indices:  []byte{child.path[0]},
			children: []*node[T]{child},
			data:     zero,
		}
	}

	if l == len(text) {
		return n
	}
	return n.addStatic(text[l:])
}

// find matches path against the subtree rooted at n, appending captures to
// values. Captures from abandoned branches are truncated before the next
// sibling is tried.
func (n *node[T]) find(path string, values *[]string) *node[T] {
	switch n.nType {
	case catchAll:
		*values = append(*values, path)
		return n

	case param:
		end := strings.IndexByte(path, '/')
		if end < 0 {
			if !n.hasData {
				return nil
			}
			*values = append(*values, path)
			return n
		}
		i := n.childIndex('/')
		if i < 0 {
			return nil
		}
		*values = append(*values, path[:end])
		return n.children[i].find(path[end:], values)
	}

	l := longestCommonPrefix(n.path, path)
	if l == 0 || l < len(n.path) {
		return nil
	}

	if l == len(path) {
		if n.hasData {
			return n
		}
		// A bare prefix ending in '/' falls through to its catch-all.
		if len(n.indices) > 0 && strings.HasSuffix(n.path, "/") {
			if i := n.childIndex('*'); i >= 0 {
				*values = append(*values, "")
				return n.children[i]
			}
		}
		return nil
	}

	rest := path[l:]
	mark := len(*values)

	if i := n.childIndex(rest[0]); i >= 0 && rest[0] != ':' && rest[0] != '*' {
		if m := n.children[i].find(rest, values); m != nil {
			return m
		}
		*values = (*values)[:mark]
	}
	if i := n.childIndex(':'); i >= 0 {
		if m := n.children[i].find(rest, values); m != nil {
			return m
		}
		*values = (*values)[:mark]
	}
	if i := n.childIndex('*'); i >= 0 {
		return n.children[i].find(rest, values)
	}
	return nil
}

func longestCommonPrefix(a, b string) int {
	i := 0
	n := min(len(a), len(b))
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
