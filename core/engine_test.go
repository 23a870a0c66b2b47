package core

import (
	"bytes"
	"errors"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/archive-server/core/extensions"
	"github.com/searchktools/archive-server/core/extract"
	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/middleware"
	"github.com/searchktools/archive-server/core/respond"
)

type catalog struct {
	titles map[int]string
}

func chapterHandler(args extract.Args) (respond.Responder, error) {
	id := extract.Arg[int](args, 0)
	chapter := extract.Arg[int](args, 1)
	c := extract.Arg[*catalog](args, 2)
	title, ok := c.titles[id]
	if !ok {
		return respond.NotFound(), nil
	}
	return respond.Text(title + " chapter " + strconv.Itoa(chapter)), nil
}

func newArchiveEngine() *Engine {
	e := NewEngine()
	Data(e, &catalog{titles: map[int]string{42: "Orbit"}})

	e.GET("/", func(extract.Args) (respond.Responder, error) {
		return respond.HTML("<h1>archive</h1>"), nil
	})
	e.GET("/story/:id/:chapter", chapterHandler,
		extract.ParseParam[int]("id"),
		extract.ParseParam[int]("chapter"),
		extract.Data[*catalog](),
	)
	e.GET("/opds/root.:ext", func(args extract.Args) (respond.Responder, error) {
		return respond.Atom("feed." + extract.Arg[string](args, 0)), nil
	}, extract.Param("ext"))
	e.GET("/static/*file", func(args extract.Args) (respond.Responder, error) {
		return respond.CSS(extract.Arg[string](args, 0)), nil
	}, extract.Param("file"))
	e.POST("/echo", func(args extract.Args) (respond.Responder, error) {
		return respond.Text(extract.Arg[string](args, 0)), nil
	}, extract.Text())
	e.GET("/fail", func(extract.Args) (respond.Responder, error) {
		return nil, errors.New("index unavailable")
	})
	e.GET("/panic", func(extract.Args) (respond.Responder, error) {
		panic("boom")
	})
	return e
}

func request(method http.Method, target string) *http.Request {
	req := http.AcquireRequest()
	req.Method = method
	req.Version = http.Version11
	req.Resource = http.ParseResource(target)
	return req
}

func handle(t *testing.T, app *BuiltApp, req *http.Request) *http.Response {
	t.Helper()
	t.Cleanup(func() { http.ReleaseRequest(req) })
	res := app.Handle(req)
	require.NotNil(t, res)
	return res
}

func TestHandleRoutes(t *testing.T) {
	app := newArchiveEngine().Build()

	tests := []struct {
		method http.Method
		target string
		status int
		body   string
		ctype  string
	}{
		{http.MethodGet, "/", 200, "<h1>archive</h1>", respond.ContentTypeHTML},
		{http.MethodGet, "/story/42/3", 200, "Orbit chapter 3", respond.ContentTypeText},
		{http.MethodGet, "/opds/root.xml", 200, "feed.xml", respond.ContentTypeAtom},
		{http.MethodGet, "/static/css/site.css", 200, "css/site.css", respond.ContentTypeCSS},
		{http.MethodGet, "/none", 404, "Not Found", respond.ContentTypeText},
		{http.MethodGet, "/story/7/1", 404, "Not Found", respond.ContentTypeText},
	}

	for _, tt := range tests {
		t.Run(tt.method.String()+" "+tt.target, func(t *testing.T) {
			res := handle(t, app, request(tt.method, tt.target))
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.body, string(res.Body))
			assert.Equal(t, tt.ctype, res.Headers.Value(http.HeaderContentType))
		})
	}
}

func TestHandleMissAdvertisesAllowedMethods(t *testing.T) {
	app := newArchiveEngine().Build()

	res := handle(t, app, request(http.MethodDelete, "/echo"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "POST", res.Headers.Value("Allow"))

	res = handle(t, app, request(http.MethodGet, "/nothing/here"))
	assert.False(t, res.Headers.Has("Allow"))
}

func TestHandleHeadUsesGetRoute(t *testing.T) {
	app := newArchiveEngine().Build()
	res := handle(t, app, request(http.MethodHead, "/"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "<h1>archive</h1>", string(res.Body))
}

func TestHandleExtractionFailure(t *testing.T) {
	e := newArchiveEngine()
	var before, after int
	e.Use(middleware.Funcs{
		BeforeFunc: func(*http.Request) { before++ },
		AfterFunc: func(_ *http.Request, res *http.Response) *http.Response {
			after++
			return res
		},
	})
	app := e.Build()

	res := handle(t, app, request(http.MethodGet, "/story/42/abc"))
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t,
		"HTTP request URL parameter with key `chapter` could not be parsed: strconv.Atoi: parsing \"abc\": invalid syntax",
		string(res.Body))
	assert.Equal(t, 1, before, "before runs ahead of extraction")
	assert.Zero(t, after, "a rejection skips the after hooks")

	handle(t, app, request(http.MethodGet, "/"))
	assert.Equal(t, 2, before)
	assert.Equal(t, 1, after)
}

func TestHandleErrorsAndPanics(t *testing.T) {
	app := newArchiveEngine().Build()

	res := handle(t, app, request(http.MethodGet, "/fail"))
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)

	res = handle(t, app, request(http.MethodGet, "/panic"))
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
}

func TestHandleMissingData(t *testing.T) {
	e := NewEngine()
	e.GET("/story/:id/:chapter", chapterHandler,
		extract.ParseParam[int]("id"),
		extract.ParseParam[int]("chapter"),
		extract.Data[*catalog](),
	)
	res := handle(t, e.Build(), request(http.MethodGet, "/story/1/1"))
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Contains(t, string(res.Body), "App data is not configured")
}

func TestHandleBody(t *testing.T) {
	app := newArchiveEngine().Build()
	req := request(http.MethodPost, "/echo")
	req.Body = []byte("hello archive")

	res := handle(t, app, req)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "hello archive", string(res.Body))
}

type tenant string

func TestBeforeMiddlewareFeedsExtractors(t *testing.T) {
	e := NewEngine()
	e.Use(middleware.Funcs{BeforeFunc: func(req *http.Request) {
		extensions.Insert(req.Extensions, tenant("fanfic"))
	}})
	e.GET("/whoami", func(args extract.Args) (respond.Responder, error) {
		who := extract.Arg[extract.Optional[tenant]](args, 0)
		return respond.Text(string(who.Or("anonymous"))), nil
	}, extract.Extension[tenant]())

	res := handle(t, e.Build(), request(http.MethodGet, "/whoami"))
	assert.Equal(t, "fanfic", string(res.Body))
}

func TestAfterMiddlewareOrderAndAbort(t *testing.T) {
	e := newArchiveEngine()
	e.Use(
		middleware.RateLimiter(1),
		middleware.ServerHeader("archive"),
	)
	app := e.Build()

	res := handle(t, app, request(http.MethodGet, "/"))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "archive", res.Headers.Value(http.HeaderServer))

	res = handle(t, app, request(http.MethodGet, "/"))
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "archive", res.Headers.Value(http.HeaderServer), "after hooks run on aborted requests")
}

func TestDefaultService(t *testing.T) {
	e := NewEngine()
	e.Default(func(args extract.Args) (respond.Responder, error) {
		return respond.Status(http.StatusGone, respond.Text("gone: "+extract.Arg[string](args, 0))), nil
	}, extract.Path())

	res := handle(t, e.Build(), request(http.MethodGet, "/old/link"))
	assert.Equal(t, http.StatusGone, res.Status)
	assert.Equal(t, "gone: /old/link", string(res.Body))
}

func TestDataReplace(t *testing.T) {
	e := NewEngine()
	_, replaced := Data(e, &catalog{})
	assert.False(t, replaced)
	_, replaced = Data(e, &catalog{})
	assert.True(t, replaced)
}

func TestBuildIsolatesLaterRegistrations(t *testing.T) {
	e := NewEngine()
	e.GET("/a", func(extract.Args) (respond.Responder, error) { return respond.OK(), nil })
	app := e.Build()

	e.GET("/b", func(extract.Args) (respond.Responder, error) { return respond.OK(), nil })
	e.Use(middleware.ServerHeader("late"))

	res := handle(t, app, request(http.MethodGet, "/b"))
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.False(t, res.Headers.Has(http.HeaderServer))
}

func TestHandleRejectsBadPatterns(t *testing.T) {
	e := NewEngine()
	assert.Panics(t, func() { e.GET("story", func(extract.Args) (respond.Responder, error) { return nil, nil }) })
	assert.Panics(t, func() { e.GET("/story", nil) })
}

func TestHandleMiddlewarePanics(t *testing.T) {
	tests := []struct {
		name string
		mw   middleware.Funcs
	}{
		{"before", middleware.Funcs{BeforeFunc: func(*http.Request) { panic("before") }}},
		{"after", middleware.Funcs{AfterFunc: func(*http.Request, *http.Response) *http.Response { panic("after") }}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newArchiveEngine()
			e.Use(tt.mw)
			var logs bytes.Buffer
			app := e.Build().withLogger(slog.New(slog.NewTextHandler(&logs, nil)))

			var res *http.Response
			assert.NotPanics(t, func() { res = handle(t, app, request(http.MethodGet, "/")) })
			assert.Equal(t, http.StatusServiceUnavailable, res.Status)
			assert.Contains(t, logs.String(), "pipeline panic")
			assert.Contains(t, logs.String(), "panic="+tt.name)
		})
	}
}

type rejectionRecorder struct {
	middleware.Funcs
	statuses []int
}

func (r *rejectionRecorder) Rejected(_ *http.Request, res *http.Response) {
	r.statuses = append(r.statuses, res.Status)
}

func TestHandleReportsRejections(t *testing.T) {
	rec := &rejectionRecorder{}
	e := newArchiveEngine()
	e.Use(rec)
	app := e.Build()

	handle(t, app, request(http.MethodGet, "/story/42/3"))
	assert.Empty(t, rec.statuses)

	handle(t, app, request(http.MethodGet, "/story/x/3"))
	assert.Equal(t, []int{http.StatusBadRequest}, rec.statuses)
}
