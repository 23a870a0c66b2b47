// Package extract pulls typed values out of a request before a handler runs.
//
// A route declares an ordered list of extractors. Each one either yields a
// value or fails with a rejection that renders itself as a response; the
// first failure stops the pipeline. The handler receives the values in
// declaration order as Args.
package extract

import (
	"fmt"

	"github.com/searchktools/archive-server/core/http"
)

// Extractor reads one value from a request.
type Extractor interface {
	Extract(req *http.Request) (any, error)
}

// Func is a typed extractor.
type Func[T any] func(req *http.Request) (T, error)

// Extract implements Extractor.
func (f Func[T]) Extract(req *http.Request) (any, error) {
	return f(req)
}

// Args holds extracted values in declaration order.
type Args []any

// Arg returns the i-th extracted value as T. It panics if the value has a
// different type, which means the route and handler disagree.
func Arg[T any](args Args, i int) T {
	if i < 0 || i >= len(args) {
		panic(fmt.Sprintf("extract: argument %d out of range (have %d)", i, len(args)))
	}
	v, ok := args[i].(T)
	if !ok {
		var want T
		panic(fmt.Sprintf("extract: argument %d is %T, not %T", i, args[i], want))
	}
	return v
}

// Run applies extractors in order and stops at the first failure.
func Run(req *http.Request, extractors []Extractor) (Args, error) {
	if len(extractors) == 0 {
		return nil, nil
	}
	args := make(Args, 0, len(extractors))
	for _, ex := range extractors {
		v, err := ex.Extract(req)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// Optional is a value that may be absent.
type Optional[T any] struct {
	Value T
	Ok    bool
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Ok
}

// Or returns the value or fallback when absent.
func (o Optional[T]) Or(fallback T) T {
	if o.Ok {
		return o.Value
	}
	return fallback
}

func some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Ok: true}
}

// Request yields the request itself.
func Request() Func[*http.Request] {
	return func(req *http.Request) (*http.Request, error) {
		return req, nil
	}
}

// Method yields the request method.
func Method() Func[http.Method] {
	return func(req *http.Request) (http.Method, error) {
		return req.Method, nil
	}
}

// Path yields the request path.
func Path() Func[string] {
	return func(req *http.Request) (string, error) {
		return req.Path(), nil
	}
}
