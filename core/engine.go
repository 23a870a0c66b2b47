package core

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/extract"
	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/middleware"
	"github.com/searchktools/archive-server/core/respond"
	"github.com/searchktools/archive-server/core/router"
)

// HandlerFunc handles a matched request. It receives the values of the
// route's extractors in declaration order.
type HandlerFunc func(args extract.Args) (respond.Responder, error)

// route is one registered endpoint
type route struct {
	method     http.Method
	pattern    string
	handler    HandlerFunc
	extractors []extract.Extractor
}

// Engine collects routes, shared data and middleware. It is not safe for
// concurrent use; call Build once setup is complete.
type Engine struct {
	routes   []*route
	data     *extensions.Extensions
	chain    *middleware.Chain
	fallback *route
}

// NewEngine creates an engine whose default service answers 404.
func NewEngine() *Engine {
	return &Engine{
		data:  extensions.New(),
		chain: middleware.NewChain(),
		fallback: &route{
			pattern: "*",
			handler: func(extract.Args) (respond.Responder, error) {
				return respond.NotFound(), nil
			},
		},
	}
}

// Handle registers handler for method and pattern. Patterns use ":name"
// for one segment and a trailing "*name" for the rest of the path.
func (e *Engine) Handle(method http.Method, pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	if handler == nil {
		panic("core: nil handler for " + method.String() + " " + pattern)
	}
	if !strings.HasPrefix(pattern, "/") {
		panic("core: pattern must begin with '/': " + pattern)
	}
	e.routes = append(e.routes, &route{
		method:     method,
		pattern:    pattern,
		handler:    handler,
		extractors: extractors,
	})
	return e
}

// GET registers a GET route
func (e *Engine) GET(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodGet, pattern, handler, extractors...)
}

// POST registers a POST route
func (e *Engine) POST(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodPost, pattern, handler, extractors...)
}

// PUT registers a PUT route
func (e *Engine) PUT(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodPut, pattern, handler, extractors...)
}

// DELETE registers a DELETE route
func (e *Engine) DELETE(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodDelete, pattern, handler, extractors...)
}

// PATCH registers a PATCH route
func (e *Engine) PATCH(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodPatch, pattern, handler, extractors...)
}

// HEAD registers a HEAD route. Without one, HEAD requests use the GET
// route and the body is dropped on the wire.
func (e *Engine) HEAD(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodHead, pattern, handler, extractors...)
}

// OPTIONS registers an OPTIONS route
func (e *Engine) OPTIONS(pattern string, handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	return e.Handle(http.MethodOptions, pattern, handler, extractors...)
}

// Default replaces the service used when no route matches.
func (e *Engine) Default(handler HandlerFunc, extractors ...extract.Extractor) *Engine {
	e.fallback = &route{pattern: "*", handler: handler, extractors: extractors}
	return e
}

// Use appends middleware to the chain.
func (e *Engine) Use(mw ...middleware.Middleware) *Engine {
	e.chain.Use(mw...)
	return e
}

// Data registers app-wide shared data, keyed by its type T, and returns
// the value it replaced.
func Data[T any](e *Engine, value T) (T, bool) {
	return extensions.Insert(e.data, value)
}

// Build freezes the routes into an immutable app shared by all workers.
func (e *Engine) Build() *BuiltApp {
	table := router.NewTable[*route]()
	for _, r := range e.routes {
		table.Add(r.method, r.pattern, r)
	}
	return &BuiltApp{
		table:    table,
		data:     e.data,
		chain:    e.chain.Clone(),
		fallback: e.fallback,
		logger:   slog.New(slog.DiscardHandler),
	}
}

// BuiltApp is the read-only state every request is served from.
type BuiltApp struct {
	table    *router.Table[*route]
	data     *extensions.Extensions
	chain    *middleware.Chain
	fallback *route
	logger   *slog.Logger
}

func (a *BuiltApp) withLogger(logger *slog.Logger) *BuiltApp {
	cp := *a
	cp.logger = logger
	return &cp
}

// Handle routes req and runs the pipeline. It always returns a response.
//
// Before-middleware runs first. Extraction then runs in declaration order;
// the first rejection is rendered directly and skips the handler and the
// after-middleware. Middleware implementing middleware.RejectionObserver
// still sees the rejection. A panic anywhere in the pipeline is logged and
// answered with 503.
func (a *BuiltApp) Handle(req *http.Request) (res *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			a.logPanic("pipeline panic", req, r)
			res = respond.Error(http.StatusServiceUnavailable, "").Respond()
		}
	}()
	req.Data = a.data

	rt, matched := a.match(req)

	a.chain.Before(req)
	if aborted, ok := middleware.Aborted(req); ok {
		return a.chain.After(req, aborted)
	}

	args, err := extract.Run(req, rt.extractors)
	if err != nil {
		res = a.renderError(req, "extraction failed", err)
		a.chain.Rejected(req, res)
		return res
	}

	res = a.invoke(req, rt, args)
	if !matched {
		if allowed := a.table.Allowed(req.Path()); len(allowed) > 0 {
			res.Headers.Set("Allow", joinMethods(allowed))
		}
	}
	return a.chain.After(req, res)
}

func (a *BuiltApp) match(req *http.Request) (*route, bool) {
	path := req.Path()
	rt, params, ok := a.table.Find(req.Method, path)
	if !ok && req.Method == http.MethodHead {
		rt, params, ok = a.table.Find(http.MethodGet, path)
	}
	if !ok {
		a.logger.Debug("no route", "method", req.Method.String(), "path", path)
		return a.fallback, false
	}
	for _, p := range params {
		req.Params.Insert(p.Key, p.Value)
	}
	return rt, true
}

func (a *BuiltApp) invoke(req *http.Request, rt *route, args extract.Args) (res *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			a.logPanic("handler panic", req, r)
			res = respond.Error(http.StatusServiceUnavailable, "").Respond()
		}
	}()

	out, err := rt.handler(args)
	if err != nil {
		return a.renderError(req, "handler failed", err)
	}
	return respond.Into(out)
}

func (a *BuiltApp) logPanic(msg string, req *http.Request, r any) {
	a.logger.Error(msg,
		"method", req.Method.String(),
		"path", req.Path(),
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()),
	)
}

// renderError renders err. Errors that cannot render themselves are logged
// at error level, rejections at debug.
func (a *BuiltApp) renderError(req *http.Request, msg string, err error) *http.Response {
	var r respond.Responder
	if !errors.As(err, &r) {
		a.logger.Error(msg, "method", req.Method.String(), "path", req.Path(), "err", err)
	} else {
		a.logger.Debug(msg, "method", req.Method.String(), "path", req.Path(), "err", err)
	}
	return respond.FromError(err)
}

func joinMethods(methods []http.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}
