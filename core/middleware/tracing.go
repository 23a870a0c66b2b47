package middleware

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
)

const tracerName = "github.com/searchktools/archive-server/core/middleware"

type spanContext struct {
	ctx  context.Context
	span trace.Span
}

// Tracing starts a server span per request in Before and ends it in After.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing traces with tp, or the global provider when tp is nil.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer(tracerName)}
}

func (t *Tracing) Before(req *http.Request) {
	ctx, span := t.tracer.Start(context.Background(), req.Method.String()+" "+req.Path(),
		trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("http.method", req.Method.String()),
		attribute.String("http.target", req.Resource.String()),
		attribute.String("http.flavor", req.Version.String()),
	)
	if ua, ok := req.Header(http.HeaderUserAgent); ok {
		span.SetAttributes(attribute.String("http.user_agent", ua))
	}
	if req.RemoteAddr != nil {
		span.SetAttributes(attribute.String("net.peer.addr", req.RemoteAddr.String()))
	}
	extensions.Insert(req.Extensions, spanContext{ctx: ctx, span: span})
}

func (t *Tracing) After(req *http.Request, res *http.Response) *http.Response {
	t.end(req, res)
	return res
}

// Rejected ends the span of a request that failed extraction.
func (t *Tracing) Rejected(req *http.Request, res *http.Response) {
	t.end(req, res)
}

func (t *Tracing) end(req *http.Request, res *http.Response) {
	sc, ok := extensions.Remove[spanContext](req.Extensions)
	if !ok {
		return
	}
	sc.span.SetAttributes(attribute.Int("http.status_code", res.Status))
	if res.Status >= http.StatusInternalServerError {
		sc.span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(res.Status))
	} else {
		sc.span.SetStatus(codes.Ok, "")
	}
	sc.span.End()
}

// SpanContext returns the context carrying the request's span, for handlers
// that start child spans. Without Tracing it returns context.Background().
func SpanContext(req *http.Request) context.Context {
	if sc, ok := extensions.Get[spanContext](req.Extensions); ok {
		return sc.ctx
	}
	return context.Background()
}
