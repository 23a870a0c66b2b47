package respond

import (
	"fmt"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/archive-server/core/http"
)

// Part adds response metadata, such as a header, on top of a body.
type Part interface {
	Apply(res *http.Response) error
}

// PartFunc adapts a function to Part.
type PartFunc func(res *http.Response) error

func (f PartFunc) Apply(res *http.Response) error { return f(res) }

// Header sets a response header, replacing earlier values.
func Header(name, value string) Part {
	return PartFunc(func(res *http.Response) error {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("invalid header name %q", name)
		}
		if !httpguts.ValidHeaderFieldValue(value) {
			return fmt.Errorf("invalid value for header %q", name)
		}
		if !res.Headers.Set(name, value) {
			return fmt.Errorf("header block full, dropped %q", name)
		}
		return nil
	})
}

// AddHeader appends a header entry, keeping earlier values.
func AddHeader(name, value string) Part {
	return PartFunc(func(res *http.Response) error {
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return fmt.Errorf("invalid header %q", name)
		}
		res.Headers.Add(name, value)
		return nil
	})
}

// With applies parts to the response produced by r. If a part fails, the
// result is a 500 naming the failure.
func With(r Responder, parts ...Part) Responder {
	return Func(func() *http.Response {
		res := Into(r)
		for _, part := range parts {
			if err := part.Apply(res); err != nil {
				return Error(http.StatusInternalServerError, err.Error()).Respond()
			}
		}
		return res
	})
}
