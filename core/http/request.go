package http

import (
	"net"
	"strings"
	"sync"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/archive-server/core/arraymap"
	"github.com/searchktools/archive-server/core/extensions"
)

// ParamCapacity bounds the number of route parameters kept per request.
const ParamCapacity = 32

// Request is one parsed HTTP request.
//
// Data is the app-wide store shared by every request and must be treated as
// read-only. Extensions is scratch space owned by this request.
type Request struct {
	Method   Method
	Resource Resource
	Version  Version
	Headers  *Headers
	Body     []byte

	Params     *arraymap.ArrayMap[string, string]
	Data       *extensions.Extensions
	Extensions *extensions.Extensions
	RemoteAddr net.Addr
}

var requestPool = sync.Pool{
	New: func() any {
		return &Request{
			Headers:    NewHeaders(RequestHeaderCapacity),
			Params:     arraymap.New[string, string](ParamCapacity),
			Extensions: extensions.New(),
		}
	},
}

// AcquireRequest returns an empty request from the pool.
func AcquireRequest() *Request {
	return requestPool.Get().(*Request)
}

// ReleaseRequest resets req and returns it to the pool. The request must not
// be used afterwards.
func ReleaseRequest(req *Request) {
	req.Reset()
	requestPool.Put(req)
}

// Reset clears the request but keeps its allocated storage.
func (r *Request) Reset() {
	r.Method = 0
	r.Resource = Resource{}
	r.Version = 0
	r.Headers.m.Reset()
	r.Body = nil
	r.Params.Reset()
	r.Data = nil
	r.Extensions.Clear()
	r.RemoteAddr = nil
}

// Path returns the request path.
func (r *Request) Path() string {
	return r.Resource.Path
}

// Header returns the first value of the named header.
func (r *Request) Header(name string) (string, bool) {
	return r.Headers.Get(name)
}

// Param returns the named route parameter.
func (r *Request) Param(name string) (string, bool) {
	return r.Params.Get(name)
}

// AcceptsDeflate reports whether the client listed deflate in
// Accept-Encoding.
func (r *Request) AcceptsDeflate() bool {
	for _, v := range r.Headers.Values(HeaderAcceptEncoding) {
		if strings.Contains(v, "deflate") {
			return true
		}
	}
	return false
}

// KeepAlive reports whether the connection may carry another request after
// this one.
func (r *Request) KeepAlive() bool {
	conn := r.Headers.Values(HeaderConnection)
	switch r.Version {
	case Version11:
		return !httpguts.HeaderValuesContainsToken(conn, "close")
	case Version10:
		return httpguts.HeaderValuesContainsToken(conn, "keep-alive")
	}
	return false
}
