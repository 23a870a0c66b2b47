package middleware

import (
	"time"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
)

// Middleware is a pair of hooks around a handler.
//
// Before runs ahead of extraction and may annotate the request. After
// receives the handler's response and returns the response to send, which
// may be the same value.
type Middleware interface {
	Before(req *http.Request)
	After(req *http.Request, res *http.Response) *http.Response
}

// RejectionObserver is implemented by middleware that must also see
// requests rejected during extraction, which skip the After hooks. It
// cannot change the response.
type RejectionObserver interface {
	Rejected(req *http.Request, res *http.Response)
}

// Funcs adapts plain functions to Middleware. Nil fields are skipped.
type Funcs struct {
	BeforeFunc func(req *http.Request)
	AfterFunc  func(req *http.Request, res *http.Response) *http.Response
}

func (f Funcs) Before(req *http.Request) {
	if f.BeforeFunc != nil {
		f.BeforeFunc(req)
	}
}

func (f Funcs) After(req *http.Request, res *http.Response) *http.Response {
	if f.AfterFunc != nil {
		return f.AfterFunc(req, res)
	}
	return res
}

// Chain runs middleware in registration order for both phases.
type Chain struct {
	handlers []Middleware
}

// NewChain creates a chain
func NewChain(mw ...Middleware) *Chain {
	c := &Chain{handlers: make([]Middleware, 0, 8)}
	return c.Use(mw...)
}

// Use appends middleware; nil entries are ignored.
func (c *Chain) Use(mw ...Middleware) *Chain {
	for _, m := range mw {
		if m != nil {
			c.handlers = append(c.handlers, m)
		}
	}
	return c
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.handlers)
}

// Before runs every Before hook.
func (c *Chain) Before(req *http.Request) {
	if c == nil {
		return
	}
	for _, m := range c.handlers {
		m.Before(req)
	}
}

// After threads res through every After hook. A hook returning nil keeps
// the previous response.
func (c *Chain) After(req *http.Request, res *http.Response) *http.Response {
	if c == nil {
		return res
	}
	for _, m := range c.handlers {
		if next := m.After(req, res); next != nil {
			res = next
		}
	}
	return res
}

// Rejected tells every RejectionObserver in the chain about res.
func (c *Chain) Rejected(req *http.Request, res *http.Response) {
	if c == nil {
		return
	}
	for _, m := range c.handlers {
		if o, ok := m.(RejectionObserver); ok {
			o.Rejected(req, res)
		}
	}
}

// Clone returns a copy that can be extended without touching c.
func (c *Chain) Clone() *Chain {
	if c == nil {
		return NewChain()
	}
	return NewChain(c.handlers...)
}

type startTime time.Time

// MarkStart records the time the request entered the pipeline unless an
// earlier middleware already did.
func MarkStart(req *http.Request) {
	if !extensions.Has[startTime](req.Extensions) {
		extensions.Insert(req.Extensions, startTime(time.Now()))
	}
}

// Elapsed returns the time since MarkStart, or zero if it never ran.
func Elapsed(req *http.Request) time.Duration {
	t, ok := extensions.Get[startTime](req.Extensions)
	if !ok {
		return 0
	}
	return time.Since(time.Time(t))
}
