package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/pools"
	"github.com/searchktools/archive-server/core/respond"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	workers      int
	recvTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	limits       http.Limits
	compress     bool
}

// WithLogger sets the logger for connection and pipeline errors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRecvTimeout sets how long an idle worker waits for a connection
// before it checks the shutdown flag.
func WithRecvTimeout(d time.Duration) Option {
	return func(o *options) { o.recvTimeout = d }
}

// WithReadTimeout bounds the time to read one request. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = d }
}

// WithWriteTimeout bounds the time to write one response. Zero disables it.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = d }
}

// WithIdleTimeout bounds the wait for the next request on a keep-alive
// connection. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.idleTimeout = d }
}

// WithLimits sets the header and body size limits.
func WithLimits(limits http.Limits) Option {
	return func(o *options) { o.limits = limits }
}

// WithCompression enables or disables deflate responses.
func WithCompression(enabled bool) Option {
	return func(o *options) { o.compress = enabled }
}

// conn is one accepted connection
type conn struct {
	net.Conn
	state atomic.Int32
}

// Server accepts connections and hands each to the worker pool.
type Server struct {
	app  *BuiltApp
	opts options
	log  *slog.Logger
	pool *pools.WorkerPool[*conn]

	closed    atomic.Bool
	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[*conn]struct{}

	accepted    atomic.Uint64
	requests    atomic.Uint64
	parseErrors atomic.Uint64
}

// NewServer creates a server for app and starts its workers.
func NewServer(app *BuiltApp, opts ...Option) *Server {
	o := options{
		logger:       slog.New(slog.DiscardHandler),
		workers:      pools.DefaultWorkers,
		recvTimeout:  pools.DefaultRecvTimeout,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		idleTimeout:  DefaultIdleTimeout,
		compress:     true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		app:       app.withLogger(o.logger),
		opts:      o,
		log:       o.logger,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*conn]struct{}),
	}
	s.pool = pools.NewWorkerPool(o.workers, s.serveConn,
		pools.WithRecvTimeout(o.recvTimeout),
		pools.WithPanicHandler(func(r any) {
			s.log.Error("connection panic", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}),
	)
	return s
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns
// ErrServerClosed after a shutdown and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	s.log.Info("listening", "addr", ln.Addr().String(), "workers", s.opts.workers)

	var backoff time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			backoff = nextBackoff(backoff)
			s.log.Error("accept", "err", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		s.accepted.Add(1)

		if tc, ok := nc.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(tcpKeepAlive)
		}

		if !s.pool.Submit(&conn{Conn: nc}) {
			nc.Close()
			return ErrServerClosed
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptBackoff {
		d = maxAcceptBackoff
	}
	return d
}

// Shutdown stops accepting, lets queued and in-flight connections finish
// their current request, and waits for every worker to exit or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.closed.Swap(true) {
		return s.wait(ctx)
	}

	s.mu.Lock()
	for ln := range s.listeners {
		ln.Close()
	}
	s.mu.Unlock()

	s.pool.Shutdown()
	s.pool.Close()

	// Wake connections waiting for a request, fresh or kept alive; busy
	// ones stop after their current response.
	s.mu.Lock()
	for c := range s.conns {
		if c.state.Load() == StateIdle {
			c.SetReadDeadline(time.Now())
		}
	}
	s.mu.Unlock()

	s.log.Info("shutting down", "active_connections", s.activeConns())
	return s.wait(ctx)
}

func (s *Server) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pool.Join()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed.Load() {
			return false
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) trackConn(c *conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

func (s *Server) activeConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// serveConn runs on a worker. It serves requests on c one at a time until
// the peer closes, a request opts out of keep-alive, or an error occurs.
func (s *Server) serveConn(c *conn) {
	s.trackConn(c, true)
	defer s.trackConn(c, false)
	defer c.Close()

	br := bufio.NewReaderSize(c, readBufferSize)
	wait := s.opts.readTimeout
	for {
		if br.Buffered() == 0 && !s.awaitRequest(c, br, wait) {
			return
		}
		wait = s.opts.idleTimeout

		c.state.Store(StateReading)
		s.setReadDeadline(c, s.opts.readTimeout)

		req, err := http.Parse(br, s.opts.limits)
		if err != nil {
			s.rejectRequest(c, err)
			return
		}

		c.state.Store(StateProcessing)
		c.SetReadDeadline(time.Time{})
		req.RemoteAddr = c.RemoteAddr()

		keepAlive := s.serveRequest(c, req)
		http.ReleaseRequest(req)
		if !keepAlive {
			return
		}
	}
}

// awaitRequest parks c in StateIdle until the first byte of the next request
// arrives or timeout passes. It reports false when the peer closed, the wait
// timed out, or the server shut down with nothing pending on c.
func (s *Server) awaitRequest(c *conn, br *bufio.Reader, timeout time.Duration) bool {
	// The deadline is set before the state flips so a concurrent Shutdown
	// can still cut it short.
	s.setReadDeadline(c, timeout)
	c.state.Store(StateIdle)
	if s.closed.Load() {
		return inputPending(c.Conn)
	}

	more, err := peekConn(c.Conn, br)
	if err != nil {
		if !isTimeout(err) && !errors.Is(err, net.ErrClosed) {
			s.log.Debug("peek", "remote", c.RemoteAddr().String(), "err", err)
		}
		return false
	}
	return more
}

func (s *Server) serveRequest(c *conn, req *http.Request) bool {
	res := s.app.Handle(req)
	s.requests.Add(1)

	keepAlive := req.KeepAlive() && !s.closed.Load()
	if res.Version == 0 {
		res.Version = req.Version
	}
	if keepAlive {
		res.Headers.Set(http.HeaderConnection, "keep-alive")
	} else {
		res.Headers.Set(http.HeaderConnection, "close")
	}

	opts := http.WriteOptions{
		Compress: s.opts.compress && req.AcceptsDeflate(),
		OmitBody: req.Method == http.MethodHead,
	}
	s.setWriteDeadline(c)
	if err := http.WriteResponse(c, res, opts); err != nil {
		s.log.Error("write response", "remote", c.RemoteAddr().String(), "err", err)
		return false
	}
	return keepAlive
}

// rejectRequest answers a request that failed to parse and logs why. A
// peer that closed cleanly or stalled past the deadline gets no answer.
func (s *Server) rejectRequest(c *conn, err error) {
	switch {
	case errors.Is(err, http.ErrZeroBytesRead), errors.Is(err, net.ErrClosed):
		return
	case isTimeout(err):
		s.log.Debug("read timeout", "remote", c.RemoteAddr().String())
		return
	}

	s.parseErrors.Add(1)
	status := http.StatusForError(err)
	s.log.Error("parse request", "remote", c.RemoteAddr().String(), "status", status, "err", err)

	res := respond.Error(status, "").Respond()
	res.Version = http.Version11
	res.Headers.Set(http.HeaderConnection, "close")
	s.setWriteDeadline(c)
	if werr := http.WriteResponse(c, res, http.WriteOptions{}); werr != nil {
		s.log.Debug("write rejection", "remote", c.RemoteAddr().String(), "err", werr)
	}
}

func (s *Server) setReadDeadline(c *conn, d time.Duration) {
	if d > 0 {
		c.SetReadDeadline(time.Now().Add(d))
	} else {
		c.SetReadDeadline(time.Time{})
	}
}

func (s *Server) setWriteDeadline(c *conn) {
	if s.opts.writeTimeout > 0 {
		c.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
