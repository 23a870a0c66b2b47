package extract

import (
	"github.com/searchktools/archive-server/core/arraymap"
	"github.com/searchktools/archive-server/core/http"
)

// Header yields the first value of a required header.
func Header(name string) Func[string] {
	return func(req *http.Request) (string, error) {
		v, ok := req.Header(name)
		if !ok {
			return "", &MissingError{Source: SourceHeader, Key: name}
		}
		return v, nil
	}
}

// OptionalHeader yields a header if present.
func OptionalHeader(name string) Func[Optional[string]] {
	return func(req *http.Request) (Optional[string], error) {
		if v, ok := req.Header(name); ok {
			return some(v), nil
		}
		return Optional[string]{}, nil
	}
}

// ParseHeader yields a required header converted to T.
func ParseHeader[T any](name string) Func[T] {
	return func(req *http.Request) (T, error) {
		return parseRequired[T](SourceHeader, name, req.Header)
	}
}

// Param yields a route parameter.
func Param(name string) Func[string] {
	return func(req *http.Request) (string, error) {
		v, ok := req.Param(name)
		if !ok {
			return "", &MissingError{Source: SourceParam, Key: name}
		}
		return v, nil
	}
}

// OptionalParam yields a route parameter if the matched pattern has one.
func OptionalParam(name string) Func[Optional[string]] {
	return func(req *http.Request) (Optional[string], error) {
		if v, ok := req.Param(name); ok {
			return some(v), nil
		}
		return Optional[string]{}, nil
	}
}

// ParseParam yields a route parameter converted to T.
func ParseParam[T any](name string) Func[T] {
	return func(req *http.Request) (T, error) {
		return parseRequired[T](SourceParam, name, req.Param)
	}
}

// Params yields all route parameters in pattern order.
func Params() Func[*arraymap.ArrayMap[string, string]] {
	return func(req *http.Request) (*arraymap.ArrayMap[string, string], error) {
		return req.Params, nil
	}
}

func parseRequired[T any](src Source, key string, lookup func(string) (string, bool)) (T, error) {
	raw, ok := lookup(key)
	if !ok {
		var zero T
		return zero, &MissingError{Source: src, Key: key}
	}
	v, err := ParseValue[T](raw)
	if err != nil {
		var zero T
		return zero, &ParseError{Source: src, Key: key, Err: err}
	}
	return v, nil
}
