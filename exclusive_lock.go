package asyncx

import (
	"context"
	"time"
)

// ExclusiveLock is an asynchronous mutex on the same wait-queue machinery as
// RWLock: waiting acquisitions suspend the goroutine cooperatively and are
// granted strictly in FIFO order; TryLock barges past the queue.
//
// Unlike sync.Mutex it supports cancellation, timeout, and disposal, and has
// no owner: any goroutine may release it.
type ExclusiveLock struct {
	_ noCopy
	q waitQueue

	// held is guarded by the region.
	held bool
}

// NewExclusiveLock creates an exclusive lock. concurrencyLevel semantics
// match NewRWLock.
func NewExclusiveLock(concurrencyLevel int) *ExclusiveLock {
	l := &ExclusiveLock{}
	l.q.init(l, concurrencyLevel)
	return l
}

func (l *ExclusiveLock) precheckLocked(lockMode) error { return nil }

func (l *ExclusiveLock) tryAcquireLocked(lockMode) bool {
	if l.held {
		return false
	}
	l.held = true
	return true
}

func (l *ExclusiveLock) revokeLocked(lockMode) {
	l.held = false
}

func (l *ExclusiveLock) readyToDisposeLocked() bool {
	return !l.held
}

// TryLock attempts to acquire the lock without waiting.
func (l *ExclusiveLock) TryLock() bool {
	return l.q.tryAcquire(modeExclusive)
}

// Lock acquires the lock, suspending until it is free. ctx cancels the wait;
// timeout bounds it (NoTimeout waits indefinitely, 0 fails immediately when
// the lock is busy).
func (l *ExclusiveLock) Lock(ctx context.Context, timeout time.Duration) error {
	return l.q.acquire(ctx, timeout, modeExclusive)
}

// Unlock releases the lock and grants the next queued waiter, if any.
// Releasing a free lock reports ErrNotHeld.
func (l *ExclusiveLock) Unlock() error {
	var batch []grant
	l.q.mu.Lock()
	if l.q.done {
		l.q.mu.Unlock()
		return ErrDisposed
	}
	if !l.held {
		l.q.mu.Unlock()
		return ErrNotHeld
	}
	l.held = false
	l.q.drainLocked(&batch)
	l.q.maybeFinishDisposeLocked()
	l.q.mu.Unlock()
	l.q.wake(batch)
	return nil
}

// IsHeld reports whether the lock is currently held.
func (l *ExclusiveLock) IsHeld() bool {
	l.q.mu.Lock()
	h := l.held
	l.q.mu.Unlock()
	return h
}

// Dispose requests disposal; semantics match RWLock.Dispose.
func (l *ExclusiveLock) Dispose() <-chan struct{} {
	return l.q.dispose()
}

// IsDisposed reports whether disposal has been requested.
func (l *ExclusiveLock) IsDisposed() bool {
	l.q.mu.Lock()
	d := l.q.disposing
	l.q.mu.Unlock()
	return d
}
