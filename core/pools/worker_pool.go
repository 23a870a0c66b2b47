package pools

import (
	"sync"
	"sync/atomic"
	"time"
)

// Pool defaults.
const (
	DefaultWorkers     = 4
	DefaultRecvTimeout = 100 * time.Millisecond
)

// WorkerPool runs a fixed number of workers that take jobs from an
// unbounded queue.
//
// Each worker waits for a job with a receive timeout. When the timeout fires
// the worker checks the shutdown flag and exits if it is set, so queued jobs
// are still drained after Shutdown. Close stops the queue itself; workers then
// exit as soon as it is empty.
type WorkerPool[J any] struct {
	workers int
	timeout time.Duration
	handler func(J)
	onPanic func(any)

	in  chan J
	out chan J

	mu       sync.RWMutex
	inClosed bool
	shutdown atomic.Bool
	wg       sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64
	active    atomic.Int64
}

// Option configures a WorkerPool.
type Option func(*poolConfig)

type poolConfig struct {
	timeout time.Duration
	onPanic func(any)
}

// WithRecvTimeout sets how long a worker waits for a job before it checks the
// shutdown flag.
func WithRecvTimeout(d time.Duration) Option {
	return func(c *poolConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPanicHandler sets a function called with the value recovered from a
// panicking job. The worker keeps running either way.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(c *poolConfig) { c.onPanic = fn }
}

// NewWorkerPool starts workers goroutines that call handler for each job.
func NewWorkerPool[J any](workers int, handler func(J), opts ...Option) *WorkerPool[J] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	cfg := poolConfig{timeout: DefaultRecvTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &WorkerPool[J]{
		workers: workers,
		timeout: cfg.timeout,
		handler: handler,
		onPanic: cfg.onPanic,
		in:      make(chan J),
		out:     make(chan J),
	}

	go p.buffer()

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

// Submit queues a job. It reports false once the pool has been closed.
func (p *WorkerPool[J]) Submit(job J) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.inClosed {
		return false
	}
	p.submitted.Add(1)
	p.in <- job
	return true
}

// buffer moves jobs from in to out through a growable queue so Submit never
// waits for a free worker.
func (p *WorkerPool[J]) buffer() {
	defer close(p.out)

	var queue []J
	in := p.in
	for in != nil || len(queue) > 0 {
		var (
			out  chan J
			next J
		)
		if len(queue) > 0 {
			out = p.out
			next = queue[0]
		}

		select {
		case job, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, job)
		case out <- next:
			var zero J
			queue[0] = zero
			queue = queue[1:]
		}
	}
}

func (p *WorkerPool[J]) run() {
	defer p.wg.Done()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		timer.Reset(p.timeout)
		select {
		case job, ok := <-p.out:
			if !ok {
				return
			}
			p.process(job)
		case <-timer.C:
			if p.shutdown.Load() {
				return
			}
		}
	}
}

func (p *WorkerPool[J]) process(job J) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
		p.active.Add(-1)
		p.completed.Add(1)
	}()
	p.handler(job)
}

// Shutdown sets the shutdown flag. Workers exit at their next idle timeout.
func (p *WorkerPool[J]) Shutdown() {
	p.shutdown.Store(true)
}

// ShuttingDown reports whether Shutdown has been called.
func (p *WorkerPool[J]) ShuttingDown() bool {
	return p.shutdown.Load()
}

// Close stops accepting jobs. Jobs already queued are still handled.
func (p *WorkerPool[J]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inClosed {
		return
	}
	p.inClosed = true
	close(p.in)
}

// Join blocks until every worker has exited.
func (p *WorkerPool[J]) Join() {
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool[J]) Stats() WorkerPoolStats {
	submitted := p.submitted.Load()
	active := p.active.Load()
	completed := p.completed.Load()

	// The counters are read one at a time, so a job finishing in between
	// could push the difference below zero.
	var pending uint64
	if done := completed + uint64(max(active, 0)); submitted > done {
		pending = submitted - done
	}
	return WorkerPoolStats{
		NumWorkers:     p.workers,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPending:   pending,
		TasksActive:    active,
		Panics:         p.panics.Load(),
	}
}

// WorkerPoolStats contains pool statistics.
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksPending   uint64 `json:"tasks_pending"` // queued, not yet running
	TasksActive    int64  `json:"tasks_active"`
	Panics         uint64 `json:"panics"`
}
