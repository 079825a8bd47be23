package asyncx

import (
	"context"
	"sync/atomic"
	"time"
)

// RWLock is an asynchronous upgradeable reader/writer lock.
//
// Acquisition modes:
//   - Read: any number of concurrent readers while no writer holds the lock.
//   - Upgrade: promote the caller's sole read hold to exclusive.
//   - Exclusive: sole ownership.
//
// Waiting acquisitions suspend the calling goroutine cooperatively (no
// thread is pinned) and are granted in FIFO order with one exception:
// contiguous queued readers at the head are granted as a batch. A reader
// queued behind a blocked writer waits; readers never starve writers. The
// non-waiting Try variants barge: they bypass the queue entirely and may
// overtake earlier-queued waiters.
//
// Every successful exclusive acquisition (including upgrades) advances the
// lock's write epoch by exactly one, which is what optimistic read stamps
// validate against.
//
// State layout:
//   - version (atomic, mutated only inside the region):
//     Bit 0:     exclusive held
//     Bits 1-63: write epoch
//   - readers: count of read holds; guarded by the region.
//
// Invariant: exclusive ⇒ readers == 0, and readers > 0 ⇒ not exclusive.
type RWLock struct {
	_ noCopy
	q waitQueue

	// version packs (writeEpoch << 1) | exclusiveBit. Atomic so stamps
	// validate with a single load; written only while the region is held.
	version atomic.Uint64

	// readers is guarded by the region.
	readers int64
}

// Stamp is an optimistic read token: a write-epoch snapshot plus whether the
// lock was read-stable when it was taken. It is a pure comparison key with no
// ownership semantics.
type Stamp struct {
	epoch uint64
	valid bool
}

// Valid reports whether the stamp was taken while no writer held the lock.
// An invalid stamp never validates.
func (s Stamp) Valid() bool { return s.valid }

// NewRWLock creates a reader/writer lock. concurrencyLevel > 0 preallocates
// wait bookkeeping for that many concurrent waiters and refuses more with
// ErrConcurrencyExceeded; concurrencyLevel <= 0 grows on demand.
func NewRWLock(concurrencyLevel int) *RWLock {
	l := &RWLock{}
	l.q.init(l, concurrencyLevel)
	return l
}

// precheckLocked rejects upgrading a lock with no read hold outstanding:
// the upgrade would wait forever for a read that does not exist. Exclusive
// implies readers == 0, so the readers check alone also covers a lock held
// by a writer.
func (l *RWLock) precheckLocked(mode lockMode) error {
	if mode == modeUpgrade && l.readers == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RWLock) tryAcquireLocked(mode lockMode) bool {
	v := l.version.Load()
	switch mode {
	case modeRead:
		if v&1 != 0 {
			return false
		}
		l.readers++
	case modeUpgrade:
		if v&1 != 0 || l.readers != 1 {
			return false
		}
		l.readers = 0
		l.version.Store(v + 3) // epoch+1, exclusive bit set
	default: // modeExclusive
		if v&1 != 0 || l.readers != 0 {
			return false
		}
		l.version.Store(v + 3)
	}
	return true
}

func (l *RWLock) revokeLocked(mode lockMode) {
	switch mode {
	case modeRead:
		l.readers--
	case modeUpgrade:
		// The upgrader still holds the read it was promoting.
		l.readers = 1
		l.version.Store(l.version.Load() - 3)
	default:
		l.version.Store(l.version.Load() - 3)
	}
}

func (l *RWLock) readyToDisposeLocked() bool {
	return l.version.Load()&1 == 0 && l.readers == 0
}

// TryRLock attempts a read acquisition without waiting.
func (l *RWLock) TryRLock() bool {
	return l.q.tryAcquire(modeRead)
}

// TryLock attempts an exclusive acquisition without waiting.
func (l *RWLock) TryLock() bool {
	return l.q.tryAcquire(modeExclusive)
}

// TryUpgrade attempts to promote the caller's sole read hold to exclusive
// without waiting. It fails when other readers are active, a writer holds
// the lock, or no read is held at all.
func (l *RWLock) TryUpgrade() bool {
	return l.q.tryAcquire(modeUpgrade)
}

// RLock acquires a read hold, suspending until no writer holds the lock.
// ctx cancels the wait; timeout bounds it (NoTimeout waits indefinitely,
// 0 fails immediately when the fast path does not succeed).
func (l *RWLock) RLock(ctx context.Context, timeout time.Duration) error {
	return l.q.acquire(ctx, timeout, modeRead)
}

// Lock acquires the lock exclusively, suspending until no reader or writer
// holds it. Timeout semantics match RLock.
func (l *RWLock) Lock(ctx context.Context, timeout time.Duration) error {
	return l.q.acquire(ctx, timeout, modeExclusive)
}

// Upgrade promotes the caller's read hold to exclusive, suspending until it
// is the only remaining hold. Upgrading with no read held reports ErrNotHeld.
// On success the read hold is consumed; a single Unlock releases everything.
func (l *RWLock) Upgrade(ctx context.Context, timeout time.Duration) error {
	return l.q.acquire(ctx, timeout, modeUpgrade)
}

// Unlock releases the caller's hold: the exclusive hold if a writer owns the
// lock, otherwise one read hold. Releasing a free lock reports ErrNotHeld.
func (l *RWLock) Unlock() error {
	var batch []grant
	l.q.mu.Lock()
	if l.q.done {
		l.q.mu.Unlock()
		return ErrDisposed
	}
	v := l.version.Load()
	switch {
	case v&1 != 0:
		l.version.Store(v &^ 1)
		l.readers = 0
	case l.readers > 0:
		l.readers--
	default:
		l.q.mu.Unlock()
		return ErrNotHeld
	}
	l.q.drainLocked(&batch)
	l.q.maybeFinishDisposeLocked()
	l.q.mu.Unlock()
	l.q.wake(batch)
	return nil
}

// Downgrade atomically converts the caller's exclusive hold into a single
// read hold, letting queued readers in while keeping queued writers out.
// Reports ErrNotHeld if the lock is not held exclusively.
func (l *RWLock) Downgrade() error {
	var batch []grant
	l.q.mu.Lock()
	if l.q.done {
		l.q.mu.Unlock()
		return ErrDisposed
	}
	v := l.version.Load()
	if v&1 == 0 {
		l.q.mu.Unlock()
		return ErrNotHeld
	}
	l.version.Store(v &^ 1)
	l.readers = 1
	l.q.drainLocked(&batch)
	l.q.mu.Unlock()
	l.q.wake(batch)
	return nil
}

// OptimisticRead takes a stamp without acquiring anything. The caller reads
// whatever it needs, then calls Validate; a true result proves no exclusive
// acquisition completed in between, so the reads were stable.
func (l *RWLock) OptimisticRead() Stamp {
	v := l.version.Load()
	return Stamp{epoch: v >> 1, valid: v&1 == 0}
}

// Validate reports whether the stamp is still current: it was taken
// read-stable and no exclusive acquisition has happened since.
func (l *RWLock) Validate(s Stamp) bool {
	return s.valid && s.epoch == l.version.Load()>>1
}

// WriteEpoch returns the number of exclusive acquisitions completed so far.
func (l *RWLock) WriteEpoch() uint64 {
	return l.version.Load() >> 1
}

// IsExclusive reports whether the lock is currently held exclusively.
func (l *RWLock) IsExclusive() bool {
	return l.version.Load()&1 != 0
}

// Readers returns the current number of read holds.
func (l *RWLock) Readers() int64 {
	l.q.mu.Lock()
	r := l.readers
	l.q.mu.Unlock()
	return r
}

// Dispose requests disposal. New acquisitions fail with ErrDisposed
// immediately; current holders and already-queued waiters finish normally.
// The returned channel is closed once the lock is quiescent and the queue is
// empty.
func (l *RWLock) Dispose() <-chan struct{} {
	return l.q.dispose()
}

// IsDisposed reports whether disposal has been requested.
func (l *RWLock) IsDisposed() bool {
	l.q.mu.Lock()
	d := l.q.disposing
	l.q.mu.Unlock()
	return d
}
