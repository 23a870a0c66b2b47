package http

import "github.com/searchktools/archive-server/core/extensions"

// Response is an HTTP response waiting to be written.
//
// A zero Version is replaced by the request's version when the response is
// written. A nil Body is sent as an empty body.
type Response struct {
	Version    Version
	Status     int
	Headers    *Headers
	Extensions *extensions.Extensions
	Body       []byte
}

// NewResponse creates an empty response with the given status.
func NewResponse(status int) *Response {
	return &Response{
		Status:     status,
		Headers:    NewHeaders(ResponseHeaderCapacity),
		Extensions: extensions.New(),
	}
}

// Respond returns r itself, so a *Response can be returned wherever a
// responder is expected.
func (r *Response) Respond() *Response {
	return r
}

// SetBody replaces the body and its content type.
func (r *Response) SetBody(contentType string, body []byte) {
	if contentType != "" {
		r.Headers.Set(HeaderContentType, contentType)
	}
	r.Body = body
}
