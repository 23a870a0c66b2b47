// Package respond converts handler results into HTTP responses.
package respond

import (
	"errors"
	"fmt"

	"github.com/searchktools/archive-server/core/http"
)

// Content types set by the typed responders.
const (
	ContentTypeText  = "text/plain; charset=utf-8"
	ContentTypeHTML  = "text/html; charset=utf-8"
	ContentTypeXML   = "application/xml; charset=utf-8"
	ContentTypeAtom  = "application/atom+xml; charset=utf-8"
	ContentTypeCSS   = "text/css; charset=utf-8"
	ContentTypeOctet = "application/octet-stream"
)

// Responder is anything that can be turned into a response.
// *http.Response is itself a Responder.
type Responder interface {
	Respond() *http.Response
}

// Func adapts a function to Responder.
type Func func() *http.Response

func (f Func) Respond() *http.Response { return f() }

// Text is a 200 plain text response.
type Text string

func (t Text) Respond() *http.Response {
	return body(ContentTypeText, []byte(t))
}

// Bytes is a 200 response carrying raw bytes.
type Bytes []byte

func (b Bytes) Respond() *http.Response {
	return body(ContentTypeOctet, b)
}

// HTML is a 200 HTML document.
type HTML string

func (h HTML) Respond() *http.Response {
	return body(ContentTypeHTML, []byte(h))
}

// XML is a 200 XML document.
type XML string

func (x XML) Respond() *http.Response {
	return body(ContentTypeXML, []byte(x))
}

// Atom is a 200 Atom feed.
type Atom string

func (a Atom) Respond() *http.Response {
	return body(ContentTypeAtom, []byte(a))
}

// CSS is a 200 stylesheet.
type CSS string

func (c CSS) Respond() *http.Response {
	return body(ContentTypeCSS, []byte(c))
}

func body(contentType string, b []byte) *http.Response {
	res := http.NewResponse(http.StatusOK)
	res.SetBody(contentType, b)
	return res
}

// Empty is a response with the given status and no body.
func Empty(status int) Responder {
	return Func(func() *http.Response { return http.NewResponse(status) })
}

// OK is an empty 200 response.
func OK() Responder {
	return Empty(http.StatusOK)
}

// Status overrides the status of r.
func Status(status int, r Responder) Responder {
	return Func(func() *http.Response {
		res := Into(r)
		res.Status = status
		return res
	})
}

// ContentType overrides the Content-Type of r.
func ContentType(contentType string, r Responder) Responder {
	return Func(func() *http.Response {
		res := Into(r)
		res.Headers.Set(http.HeaderContentType, contentType)
		return res
	})
}

// Redirect sends Location with a 3xx status.
func Redirect(status int, location string) Responder {
	return With(Empty(status), Header(http.HeaderLocation, location))
}

// Error renders a status with its reason phrase, or msg when given, as text.
func Error(status int, msg string) Responder {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return Status(status, Text(msg))
}

// NotFound is the default response for unmatched routes.
func NotFound() Responder {
	return Error(http.StatusNotFound, "")
}

// FromError renders err. Errors that implement Responder render themselves;
// anything else becomes a 503.
func FromError(err error) *http.Response {
	var r Responder
	if errors.As(err, &r) {
		return Into(r)
	}
	return Error(http.StatusServiceUnavailable, "").Respond()
}

// Result combines a fallible handler outcome into one responder.
func Result(r Responder, err error) Responder {
	if err != nil {
		return Func(func() *http.Response { return FromError(err) })
	}
	return r
}

// Into converts v into a response. It accepts a Responder, a string, a byte
// slice, an error or nil. nil yields an empty 200.
func Into(v any) *http.Response {
	switch v := v.(type) {
	case nil:
		return http.NewResponse(http.StatusOK)
	case *http.Response:
		if v == nil {
			return http.NewResponse(http.StatusOK)
		}
		return v
	case Responder:
		if res := v.Respond(); res != nil {
			return res
		}
		return http.NewResponse(http.StatusOK)
	case string:
		return Text(v).Respond()
	case []byte:
		return Bytes(v).Respond()
	case error:
		return FromError(v)
	}
	return Error(http.StatusServiceUnavailable, fmt.Sprintf("unsupported response type %T", v)).Respond()
}
