package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/middleware"
)

type testServer struct {
	srv    *Server
	addr   string
	served chan error
}

func startServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	return startApp(t, newArchiveEngine().Build(), opts...)
}

func startApp(t *testing.T, app *BuiltApp, opts ...Option) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	opts = append([]Option{
		WithWorkers(2),
		WithRecvTimeout(10 * time.Millisecond),
		WithReadTimeout(2 * time.Second),
		WithIdleTimeout(2 * time.Second),
	}, opts...)
	ts := &testServer{
		srv:    NewServer(app, opts...),
		addr:   ln.Addr().String(),
		served: make(chan error, 1),
	}
	go func() { ts.served <- ts.srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.srv.Shutdown(ctx)
	})
	return ts
}

func (ts *testServer) dial(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	c, err := net.Dial("tcp", ts.addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.SetDeadline(time.Now().Add(5*time.Second)))
	return c, bufio.NewReader(c)
}

func readResponse(t *testing.T, br *bufio.Reader, method string) (*nethttp.Response, string) {
	t.Helper()
	res, err := nethttp.ReadResponse(br, &nethttp.Request{Method: method})
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	res.Body.Close()
	return res, string(body)
}

func send(t *testing.T, c net.Conn, raw string) {
	t.Helper()
	_, err := io.WriteString(c, raw)
	require.NoError(t, err)
}

func assertClosed(t *testing.T, br *bufio.Reader) {
	t.Helper()
	_, err := br.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestServerKeepAlive(t *testing.T) {
	ts := startServer(t)
	c, br := ts.dial(t)

	send(t, c, "GET /story/42/3 HTTP/1.1\r\nHost: archive\r\n\r\n")
	res, body := readResponse(t, br, "GET")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "Orbit chapter 3", body)
	assert.Equal(t, "keep-alive", res.Header.Get("Connection"))
	assert.False(t, res.Close)
	assert.Equal(t, "HTTP/1.1", res.Proto)

	send(t, c, "GET /opds/root.xml HTTP/1.1\r\nHost: archive\r\nConnection: close\r\n\r\n")
	res, body = readResponse(t, br, "GET")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "feed.xml", body)
	assert.True(t, res.Close, "Connection: close is folded into res.Close")
	assertClosed(t, br)
}

func TestServerPipelinedRequests(t *testing.T) {
	ts := startServer(t)
	c, br := ts.dial(t)

	send(t, c, "GET / HTTP/1.1\r\n\r\n"+
		"POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"+
		"GET /none HTTP/1.1\r\nConnection: close\r\n\r\n")

	res, body := readResponse(t, br, "GET")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "<h1>archive</h1>", body)

	res, body = readResponse(t, br, "POST")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "hello", body)

	res, _ = readResponse(t, br, "GET")
	assert.Equal(t, 404, res.StatusCode)
	assertClosed(t, br)
}

func TestServerHTTP10(t *testing.T) {
	ts := startServer(t)

	c, br := ts.dial(t)
	send(t, c, "GET / HTTP/1.0\r\n\r\n")
	res, _ := readResponse(t, br, "GET")
	assert.Equal(t, "HTTP/1.0", res.Proto)
	assert.Equal(t, "close", res.Header.Get("Connection"))
	assertClosed(t, br)

	c, br = ts.dial(t)
	send(t, c, "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n")
	res, _ = readResponse(t, br, "GET")
	assert.Equal(t, "keep-alive", res.Header.Get("Connection"))
	send(t, c, "GET /none HTTP/1.0\r\n\r\n")
	res, _ = readResponse(t, br, "GET")
	assert.Equal(t, 404, res.StatusCode)
}

func TestServerRejectsMalformedRequests(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
	}{
		{"unknown method", "BREW /pot HTTP/1.1\r\n\r\n", 400},
		{"unknown version", "GET / HTTP/2.0\r\n\r\n", 400},
		{"bad header", "GET / HTTP/1.1\r\nno colon here\r\n\r\n", 400},
		{"bad length", "POST /echo HTTP/1.1\r\nContent-Length: -1\r\n\r\n", 400},
		{"chunked", "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", 501},
		{"body too large", "POST /echo HTTP/1.1\r\nContent-Length: 4096\r\n\r\n", 413},
	}

	ts := startServer(t, WithLimits(http.Limits{MaxHeaderBytes: 1024, MaxBodyBytes: 1024}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, br := ts.dial(t)
			send(t, c, tt.raw)
			res, _ := readResponse(t, br, "GET")
			assert.Equal(t, tt.status, res.StatusCode)
			assert.True(t, res.Close, "Connection: close is folded into res.Close")
			assertClosed(t, br)
		})
	}

	assert.Equal(t, uint64(len(tests)), ts.srv.Stats().ParseErrors)
}

func TestServerHeaderTooLarge(t *testing.T) {
	ts := startServer(t, WithLimits(http.Limits{MaxHeaderBytes: 256, MaxBodyBytes: 1024}))
	c, br := ts.dial(t)

	send(t, c, "GET / HTTP/1.1\r\nX-Padding: "+strings.Repeat("a", 512)+"\r\n\r\n")
	res, _ := readResponse(t, br, "GET")
	assert.Equal(t, 431, res.StatusCode)
}

func TestServerDeflate(t *testing.T) {
	ts := startServer(t)
	c, br := ts.dial(t)

	text := strings.Repeat("chapter ", 200)
	send(t, c, "POST /echo HTTP/1.1\r\nAccept-Encoding: gzip, deflate\r\nContent-Length: "+
		strconv.Itoa(len(text))+"\r\n\r\n"+text)
	res, body := readResponse(t, br, "POST")
	assert.Equal(t, "deflate", res.Header.Get("Content-Encoding"))
	assert.Less(t, len(body), len(text))

	plain, err := io.ReadAll(flate.NewReader(strings.NewReader(body)))
	require.NoError(t, err)
	assert.Equal(t, text, string(plain))
}

func TestServerCompressionDisabled(t *testing.T) {
	ts := startServer(t, WithCompression(false))
	c, br := ts.dial(t)

	send(t, c, "GET / HTTP/1.1\r\nAccept-Encoding: deflate\r\n\r\n")
	res, body := readResponse(t, br, "GET")
	assert.Empty(t, res.Header.Get("Content-Encoding"))
	assert.Equal(t, "<h1>archive</h1>", body)
}

func TestServerHead(t *testing.T) {
	ts := startServer(t)
	c, br := ts.dial(t)

	send(t, c, "HEAD / HTTP/1.1\r\n\r\n")
	res, body := readResponse(t, br, "HEAD")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, int64(len("<h1>archive</h1>")), res.ContentLength)
	assert.Empty(t, body)

	send(t, c, "GET / HTTP/1.1\r\n\r\n")
	_, body = readResponse(t, br, "GET")
	assert.Equal(t, "<h1>archive</h1>", body, "the HEAD response left no stray bytes")
}

func TestServerIdleTimeout(t *testing.T) {
	ts := startServer(t, WithIdleTimeout(50*time.Millisecond))
	c, br := ts.dial(t)

	send(t, c, "GET / HTTP/1.1\r\n\r\n")
	readResponse(t, br, "GET")
	assertClosed(t, br)
}

func TestServerShutdown(t *testing.T) {
	ts := startServer(t, WithIdleTimeout(time.Minute))
	c, br := ts.dial(t)

	send(t, c, "GET / HTTP/1.1\r\n\r\n")
	readResponse(t, br, "GET")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, ts.srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second, "idle keep-alive connections are woken")

	select {
	case err := <-ts.served:
		assert.ErrorIs(t, err, ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
	assertClosed(t, br)

	_, err := net.Dial("tcp", ts.addr)
	assert.Error(t, err)
	assert.ErrorIs(t, ts.srv.ListenAndServe("127.0.0.1:0"), ErrServerClosed)
}

func TestServerStats(t *testing.T) {
	ts := startServer(t)
	for range 3 {
		c, br := ts.dial(t)
		send(t, c, "GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
		readResponse(t, br, "GET")
		assertClosed(t, br)
	}

	st := ts.srv.Stats()
	assert.Equal(t, uint64(3), st.ConnectionsAccepted)
	assert.Equal(t, uint64(3), st.RequestsServed)
	assert.Equal(t, 2, st.Workers.NumWorkers)
	assert.Equal(t, uint64(3), st.Workers.TasksSubmitted)

	var decoded ServerStats
	require.NoError(t, json.Unmarshal([]byte(ts.srv.StatsJSON()), &decoded))
	assert.Equal(t, uint64(3), decoded.RequestsServed)
	assert.Contains(t, ts.srv.StatsText(), "Served:       3")
}

// syncBuffer is a bytes.Buffer safe for a logger writing from a worker.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServerMiddlewarePanic(t *testing.T) {
	e := newArchiveEngine()
	e.Use(middleware.Funcs{BeforeFunc: func(req *http.Request) {
		if req.Path() == "/boom" {
			panic("before hook failed")
		}
	}})
	var logs syncBuffer
	ts := startApp(t, e.Build(), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	c, br := ts.dial(t)

	send(t, c, "GET /boom HTTP/1.1\r\n\r\n")
	res, _ := readResponse(t, br, "GET")
	assert.Equal(t, 503, res.StatusCode)
	assert.False(t, res.Close, "the connection survives a pipeline panic")

	send(t, c, "GET / HTTP/1.1\r\n\r\n")
	res, body := readResponse(t, br, "GET")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "<h1>archive</h1>", body)

	assert.Contains(t, logs.String(), "pipeline panic")
	assert.Contains(t, logs.String(), "before hook failed")
	assert.Zero(t, ts.srv.Stats().Workers.Panics)
}

func TestServerSkipsCRLFAfterBody(t *testing.T) {
	ts := startServer(t)
	c, br := ts.dial(t)

	send(t, c, "POST /echo HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello\r\n"+
		"GET / HTTP/1.1\r\n\r\n")

	res, body := readResponse(t, br, "POST")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "hello", body)

	res, body = readResponse(t, br, "GET")
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "<h1>archive</h1>", body)
}

func TestServerShutdownWakesSilentConnections(t *testing.T) {
	for _, readTimeout := range []time.Duration{0, 3 * time.Second} {
		t.Run(readTimeout.String(), func(t *testing.T) {
			ts := startServer(t, WithReadTimeout(readTimeout))
			_, br := ts.dial(t)
			require.Eventually(t, func() bool {
				return ts.srv.Stats().ConnectionsActive == 1
			}, 2*time.Second, 5*time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			start := time.Now()
			require.NoError(t, ts.srv.Shutdown(ctx))
			assert.Less(t, time.Since(start), time.Second)
			assertClosed(t, br)
		})
	}
}

func TestServerBodylessStatus(t *testing.T) {
	e := newArchiveEngine()
	e.Use(middleware.CORS(middleware.CORSOptions{}))
	ts := startApp(t, e.Build())
	c, br := ts.dial(t)

	send(t, c, "OPTIONS /story/1 HTTP/1.1\r\n\r\nGET / HTTP/1.1\r\n\r\n")
	res, _ := readResponse(t, br, "OPTIONS")
	assert.Equal(t, 204, res.StatusCode)
	assert.Empty(t, res.Header.Values("Content-Length"))

	_, body := readResponse(t, br, "GET")
	assert.Equal(t, "<h1>archive</h1>", body)
}
