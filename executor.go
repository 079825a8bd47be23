package asyncx

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Executor is the execution-substrate collaborator: a sink for deferred work.
// A continuation that captured an Executor is dispatched through it instead
// of running on whichever goroutine performed the completion, which is how a
// caller keeps continuations on a loop, a pool, or any other substrate with
// affinity semantics.
type Executor interface {
	Submit(fn func())
}

// Continuation describes what to run when a CompletionSource terminates:
// the callback, an opaque state value handed back to it, and where to run.
//
// Dispatch policy, in order:
//  1. Executor set  → submit to the captured substrate.
//  2. Async set     → run on a fresh goroutine.
//  3. otherwise     → run inline on the goroutine that completed the source.
//
// Inline is the cheapest and the default; primitives in this package rely on
// it to wake parked waiters without a hop. Callbacks that re-enter a lock or
// do real work should set Async or an Executor so the completing goroutine is
// not hijacked.
type Continuation struct {
	Fn       func(state any)
	State    any
	Executor Executor
	Async    bool
}

// invoke runs the callback inline, bypassing the dispatch policy. Used when
// the result is already available at attach time: the attaching goroutine is
// the caller itself, so there is nothing to hop off.
func (c *Continuation) invoke() {
	if c.Fn != nil {
		c.Fn(c.State)
	}
}

// dispatch applies the capture policy.
func (c *Continuation) dispatch() {
	switch {
	case c.Fn == nil:
	case c.Executor != nil:
		fn, state := c.Fn, c.State
		c.Executor.Submit(func() { fn(state) })
	case c.Async:
		go c.Fn(c.State)
	default:
		c.Fn(c.State)
	}
}

// WorkerPool is a general-purpose Executor that bounds how many submitted
// functions run concurrently. Submission never blocks the completing
// goroutine; excess work queues up behind the semaphore.
//
// The zero value and any size <= 0 run every submission on its own goroutine
// with no bound.
type WorkerPool struct {
	sem *semaphore.Weighted
}

// NewWorkerPool creates a pool running at most size functions concurrently.
func NewWorkerPool(size int64) *WorkerPool {
	p := &WorkerPool{}
	if size > 0 {
		p.sem = semaphore.NewWeighted(size)
	}
	return p
}

// Submit schedules fn. It returns immediately; fn starts once a slot frees up.
func (p *WorkerPool) Submit(fn func()) {
	if p.sem == nil {
		go fn()
		return
	}
	go func() {
		// Background ctx: acquisition only waits on slots, never fails.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		fn()
	}()
}
