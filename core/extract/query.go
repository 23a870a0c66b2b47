package extract

import (
	"net/url"
	"strings"

	"github.com/searchktools/archive-server/core/arraymap"
	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
)

// QueryCapacity bounds the number of distinct keys kept from a query string.
const QueryCapacity = 32

// QueryMap is the decoded query string of a request.
type QueryMap struct {
	*arraymap.ArrayMap[string, string]
}

// ParseQuery decodes a raw query string. Keys without '=' and empty keys
// are dropped, later duplicates overwrite earlier ones, and a segment that
// fails to percent-decode is kept verbatim.
func ParseQuery(raw string) QueryMap {
	m := arraymap.New[string, string](QueryCapacity)
	raw = strings.TrimPrefix(raw, "?")

	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			continue
		}
		m.Insert(unescape(name), unescape(value))
	}
	return QueryMap{m}
}

func unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if d, err := url.PathUnescape(s); err == nil {
		return d
	}
	return s
}

// queryOf decodes the query once per request and caches it in the request
// extensions.
func queryOf(req *http.Request) QueryMap {
	if q, ok := extensions.Get[QueryMap](req.Extensions); ok {
		return q
	}
	q := ParseQuery(req.Resource.Query)
	if req.Extensions != nil {
		extensions.Insert(req.Extensions, q)
	}
	return q
}

// Query yields a required query value.
func Query(name string) Func[string] {
	return func(req *http.Request) (string, error) {
		v, ok := queryOf(req).Get(name)
		if !ok {
			return "", &MissingError{Source: SourceQuery, Key: name}
		}
		return v, nil
	}
}

// OptionalQuery yields a query value if present.
func OptionalQuery(name string) Func[Optional[string]] {
	return func(req *http.Request) (Optional[string], error) {
		if v, ok := queryOf(req).Get(name); ok {
			return some(v), nil
		}
		return Optional[string]{}, nil
	}
}

// ParseQueryValue yields a query value converted to T.
func ParseQueryValue[T any](name string) Func[T] {
	return func(req *http.Request) (T, error) {
		return parseRequired[T](SourceQuery, name, queryOf(req).Get)
	}
}

// OptionalQueryValue yields a query value converted to T if present.
// A present value that does not parse still rejects the request.
func OptionalQueryValue[T any](name string) Func[Optional[T]] {
	return func(req *http.Request) (Optional[T], error) {
		raw, ok := queryOf(req).Get(name)
		if !ok {
			return Optional[T]{}, nil
		}
		v, err := ParseValue[T](raw)
		if err != nil {
			return Optional[T]{}, &ParseError{Source: SourceQuery, Key: name, Err: err}
		}
		return some(v), nil
	}
}

// Queries yields the whole decoded query.
func Queries() Func[QueryMap] {
	return func(req *http.Request) (QueryMap, error) {
		return queryOf(req), nil
	}
}

// RawQuery yields the undecoded query string. An empty query rejects.
func RawQuery() Func[string] {
	return func(req *http.Request) (string, error) {
		if req.Resource.Query == "" {
			return "", &MissingQueryError{}
		}
		return req.Resource.Query, nil
	}
}
