package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
)

// Common middleware implementations

// Logger logs one line per request with method, path, status and latency.
func Logger(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return Funcs{
		BeforeFunc: MarkStart,
		AfterFunc: func(req *http.Request, res *http.Response) *http.Response {
			level := slog.LevelInfo
			if res.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(context.Background(), level, "request",
				"method", req.Method.String(),
				"path", req.Path(),
				"status", res.Status,
				"elapsed", Elapsed(req),
			)
			return res
		},
	}
}

// HeaderRequestID carries the request identifier.
const HeaderRequestID = "X-Request-ID"

// RequestIDValue is the identifier RequestID stores in request extensions.
type RequestIDValue string

// RequestID reuses an incoming X-Request-ID or assigns a UUIDv7, and echoes
// it on the response.
func RequestID() Middleware {
	return Funcs{
		BeforeFunc: func(req *http.Request) {
			id, ok := req.Header(HeaderRequestID)
			if !ok || id == "" || len(id) > 128 {
				id = newRequestID()
			}
			extensions.Insert(req.Extensions, RequestIDValue(id))
		},
		AfterFunc: func(req *http.Request, res *http.Response) *http.Response {
			if id, ok := extensions.Get[RequestIDValue](req.Extensions); ok {
				res.Headers.Set(HeaderRequestID, string(id))
			}
			return res
		},
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// CORSOptions configures CORS.
type CORSOptions struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
}

// CORS adds CORS headers. A preflight OPTIONS request that no route served
// is answered with 204.
func CORS(opts CORSOptions) Middleware {
	if opts.AllowOrigin == "" {
		opts.AllowOrigin = "*"
	}
	if len(opts.AllowMethods) == 0 {
		opts.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(opts.AllowHeaders) == 0 {
		opts.AllowHeaders = []string{"Content-Type", "Authorization"}
	}
	methods := strings.Join(opts.AllowMethods, ", ")
	headers := strings.Join(opts.AllowHeaders, ", ")

	return Funcs{
		AfterFunc: func(req *http.Request, res *http.Response) *http.Response {
			if req.Method == http.MethodOptions && res.Status == http.StatusNotFound {
				res = http.NewResponse(http.StatusNoContent)
			}
			res.Headers.Set("Access-Control-Allow-Origin", opts.AllowOrigin)
			res.Headers.Set("Access-Control-Allow-Methods", methods)
			res.Headers.Set("Access-Control-Allow-Headers", headers)
			if opts.AllowOrigin != "*" {
				res.Headers.Add(http.HeaderVary, "Origin")
			}
			return res
		},
	}
}

// ServerHeader sets the Server header when the handler did not.
func ServerHeader(name string) Middleware {
	return Funcs{
		AfterFunc: func(_ *http.Request, res *http.Response) *http.Response {
			if !res.Headers.Has(http.HeaderServer) {
				res.Headers.Set(http.HeaderServer, name)
			}
			return res
		},
	}
}
