package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when submitting work to a closed pool.
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool is a fixed set of goroutines pulling work from a shared backlog.
//
// Unlike a channel backed queue the backlog is unbounded so Submit never blocks.
// This keeps callers running on a frame loop from stalling when more work is
// submitted than workers can process.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	mu      sync.Mutex
	cond    sync.Cond
	backlog []func()
	closed  bool

	// running counts work items currently executing.
	running atomic.Int64
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &WorkerPool{workers: workers}
	p.cond.L = &p.mu
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		fn, ok := p.next()
		if !ok {
			return
		}
		fn()
		p.running.Add(-1)
	}
}

// next blocks until work is available. ok is false when the pool is closed
// and the backlog has been drained.
func (p *WorkerPool) next() (fn func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.backlog) == 0 {
		if p.closed {
			return nil, false
		}
		p.cond.Wait()
	}
	fn = p.backlog[0]
	p.backlog[0] = nil
	p.backlog = p.backlog[1:]
	if len(p.backlog) == 0 {
		// Let the backing array be collected after bursts.
		p.backlog = nil
	}
	p.running.Add(1)
	return fn, true
}

// Submit queues fn for execution. It never blocks on workers.
// Nil work is ignored. Submit returns [ErrPoolClosed] after Close was called.
func (p *WorkerPool) Submit(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if fn == nil {
		return nil
	}
	p.backlog = append(p.backlog, fn)
	p.cond.Signal()
	return nil
}

// Close stops accepting new work and waits for all queued and running work to
// complete before returning. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	if !alreadyClosed {
		p.wg.Wait()
	}
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Pending returns the number of work items queued or executing.
// This is an approximation as work may complete while counting.
func (p *WorkerPool) Pending() int {
	p.mu.Lock()
	n := len(p.backlog)
	p.mu.Unlock()
	return n + int(p.running.Load())
}
