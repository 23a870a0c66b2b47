package middleware

import (
	"sync"
	"time"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/respond"
)

type aborted struct {
	res *http.Response
}

// Abort makes the pipeline skip extraction and the handler and use res as
// the handler result. The remaining Before hooks and all After hooks still
// run.
func Abort(req *http.Request, res *http.Response) {
	extensions.Insert(req.Extensions, aborted{res: res})
}

// Aborted returns the response passed to Abort, if any.
func Aborted(req *http.Request) (*http.Response, bool) {
	a, ok := extensions.Get[aborted](req.Extensions)
	if !ok || a.res == nil {
		return nil, false
	}
	return a.res, true
}

// RateLimiter allows requestsPerSecond requests per one-second window
// across all connections and answers the excess with 429.
func RateLimiter(requestsPerSecond int) Middleware {
	var (
		mu         sync.Mutex
		tokens     = requestsPerSecond
		lastRefill = time.Now()
	)

	return Funcs{
		BeforeFunc: func(req *http.Request) {
			mu.Lock()
			now := time.Now()
			if now.Sub(lastRefill) >= time.Second {
				tokens = requestsPerSecond
				lastRefill = now
			}
			allowed := tokens > 0
			if allowed {
				tokens--
			}
			mu.Unlock()

			if !allowed {
				Abort(req, respond.Error(http.StatusTooManyRequests, "").Respond())
			}
		},
	}
}
