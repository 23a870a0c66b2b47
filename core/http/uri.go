package http

import "strings"

// Resource is a request target split into its components.
// An empty Query or Fragment means the component was absent or empty.
// Percent-decoding is left to consumers.
type Resource struct {
	Path     string
	Query    string
	Fragment string
}

// ParseResource splits a request URI at the first '?' and the first '#'.
// A '?' that appears after the '#' belongs to the fragment.
func ParseResource(uri string) Resource {
	var res Resource

	q := strings.IndexByte(uri, '?')
	h := strings.IndexByte(uri, '#')

	switch {
	case h >= 0 && (q < 0 || h < q):
		res.Path = uri[:h]
		res.Fragment = uri[h+1:]
	case q >= 0 && h >= 0:
		res.Path = uri[:q]
		res.Query = uri[q+1 : h]
		res.Fragment = uri[h+1:]
	case q >= 0:
		res.Path = uri[:q]
		res.Query = uri[q+1:]
	default:
		res.Path = uri
	}

	if res.Path == "" {
		res.Path = "/"
	}
	return res
}

// String reassembles the resource.
func (r Resource) String() string {
	var b strings.Builder
	b.Grow(len(r.Path) + len(r.Query) + len(r.Fragment) + 2)
	b.WriteString(r.Path)
	if r.Query != "" {
		b.WriteByte('?')
		b.WriteString(r.Query)
	}
	if r.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(r.Fragment)
	}
	return b.String()
}
