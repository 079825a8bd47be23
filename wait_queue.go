package asyncx

import (
	"context"
	"time"
)

// queueOwner is the concrete primitive on top of a waitQueue. All three hooks
// are called with the queue's region held.
type queueOwner interface {
	// precheckLocked validates a waiting acquisition before it is queued;
	// a non-nil error aborts it (usage errors like upgrading a lock with
	// no read held).
	precheckLocked(mode lockMode) error

	// tryAcquireLocked attempts the non-waiting state transition for mode,
	// mutating the guarded state on success.
	tryAcquireLocked(mode lockMode) bool

	// revokeLocked undoes a tryAcquireLocked that was reserved for a
	// queued waiter which turned out to be canceled or timed out before
	// the grant reached it.
	revokeLocked(mode lockMode)

	// readyToDisposeLocked reports that the guarded state is quiescent
	// (nothing held).
	readyToDisposeLocked() bool
}

// grant is one reserved acquisition collected by a drain pass: the state
// transition has already been applied under the region, and the completion
// is delivered after the region is exited. mode and epoch are captured at
// drain time because the node may be recycled the moment its waiter loses
// the completion race.
type grant struct {
	n     *waitNode
	epoch uint16
	mode  lockMode
}

// waitQueue is the queued synchronizer: an intrusive FIFO queue of wait
// nodes, the node pool, and the single fair region guarding them together
// with the owner's lock state. Concrete primitives embed it and provide the
// queueOwner hooks.
//
// Region discipline: the region is held only for O(queue length) pointer
// work plus O(1) racer arming, never across a suspension point. Completions
// (and therefore arbitrary continuations) are always dispatched after the
// region is exited.
type waitQueue struct {
	mu         TicketLock
	head, tail *waitNode
	pool       nodePool
	owner      queueOwner

	disposing bool          // dispose requested; new acquisitions are refused
	done      bool          // disposal finished
	disposed  chan struct{} // closed when disposal finishes
}

// init wires the queue to its owner. concurrencyLevel > 0 preallocates a
// bounded node pool of that capacity; otherwise the pool grows on demand.
func (q *waitQueue) init(owner queueOwner, concurrencyLevel int) {
	q.owner = owner
	if concurrencyLevel > 0 {
		q.pool = newBoundedNodePool(concurrencyLevel)
	} else {
		q.pool = &heapNodePool{}
	}
	q.disposed = make(chan struct{})
}

// tryAcquire is the shared non-waiting fast path. It barges: a queued waiter
// that is not yet granted does not block it.
func (q *waitQueue) tryAcquire(mode lockMode) bool {
	q.mu.Lock()
	if q.disposing {
		q.mu.Unlock()
		return false
	}
	ok := q.owner.tryAcquireLocked(mode)
	q.mu.Unlock()
	return ok
}

// acquire is the shared waiting path: fast path first, then rent, arm, and
// enqueue a wait node, park until exactly one of {grant, cancel, timeout}
// resolves the wait, and reclaim the node.
func (q *waitQueue) acquire(ctx context.Context, timeout time.Duration, mode lockMode) error {
	if timeout < 0 && timeout != NoTimeout {
		return ErrInvalidTimeout
	}

	q.mu.Lock()
	if q.disposing {
		q.mu.Unlock()
		return ErrDisposed
	}
	if err := q.owner.precheckLocked(mode); err != nil {
		q.mu.Unlock()
		return err
	}
	// The non-waiting transition applies only when nobody is queued ahead:
	// waiting acquisitions never overtake the queue, that is reserved for
	// the barging Try variants.
	if q.head == nil && q.owner.tryAcquireLocked(mode) {
		q.mu.Unlock()
		return nil
	}
	if timeout == 0 {
		q.mu.Unlock()
		return context.DeadlineExceeded
	}
	n, err := q.pool.rent()
	if err != nil {
		q.mu.Unlock()
		return err
	}
	n.mode = mode
	// Arm before the node becomes visible in the queue: a drain from a
	// concurrent release must find it activated, or the grant would be
	// lost. Arming is O(1) and non-blocking.
	epoch, _ := n.source.PrepareWait(ctx, timeout)
	n.epoch = epoch
	_ = n.source.OnCompleted(n.wake, epoch)
	if n.pending() {
		q.enqueueLocked(n)
	}
	q.mu.Unlock()

	// Cooperative suspension point. Exactly one token arrives per armed
	// wait, whichever termination path won.
	<-n.signal
	_, werr := n.source.Consume(epoch)

	var batch []grant
	q.mu.Lock()
	if n.queued {
		q.unlinkLocked(n)
	}
	n.source.Reset()
	q.pool.recycle(n)
	if werr != nil {
		// A canceled waiter leaving the queue is a state change: it may
		// have been the head blocking compatible requests behind it.
		q.drainLocked(&batch)
	}
	q.maybeFinishDisposeLocked()
	q.mu.Unlock()
	q.wake(batch)
	return werr
}

func (q *waitQueue) enqueueLocked(n *waitNode) {
	n.queued = true
	n.prev = q.tail
	n.next = nil
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
}

func (q *waitQueue) unlinkLocked(n *waitNode) {
	if n.prev == nil {
		q.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		q.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.prev = nil
	n.next = nil
	n.queued = false
}

// drainLocked re-evaluates the queue after a state change. It walks from the
// head, discarding nodes that were already canceled or timed out, reserving
// the state transition for each grantable head and collecting it into batch.
// It stops at the first head the current state cannot satisfy: later-queued
// compatible requests are never granted past a blocked head (FIFO fairness
// over throughput). Contiguous read heads are granted together; granting a
// non-read head ends the pass.
func (q *waitQueue) drainLocked(batch *[]grant) {
	n := q.head
	for n != nil {
		next := n.next
		if !n.pending() {
			// Stale: resolved while queued. The waiter reclaims it.
			q.unlinkLocked(n)
			n = next
			continue
		}
		if !q.owner.tryAcquireLocked(n.mode) {
			break
		}
		q.unlinkLocked(n)
		*batch = append(*batch, grant{n: n, epoch: n.epoch, mode: n.mode})
		if n.mode != modeRead {
			break
		}
		n = next
	}
}

// wake delivers reserved grants outside the region. If a grant loses the
// completion race (the waiter was canceled between the drain pass and this
// delivery), the reserved transition is rolled back under the region and the
// queue is drained again, since the returned capacity may satisfy the next
// head.
func (q *waitQueue) wake(batch []grant) {
	for len(batch) > 0 {
		g := batch[0]
		batch = batch[1:]
		if g.n.source.TrySetResult(g.epoch, struct{}{}) {
			continue
		}
		q.mu.Lock()
		q.owner.revokeLocked(g.mode)
		q.drainLocked(&batch)
		q.maybeFinishDisposeLocked()
		q.mu.Unlock()
	}
}

// dispose requests disposal. New acquisitions are refused immediately;
// holders and already-queued waiters finish normally, and disposal completes
// once the owner is quiescent and the queue is empty. The returned channel is
// closed at that point.
func (q *waitQueue) dispose() <-chan struct{} {
	q.mu.Lock()
	q.disposing = true
	q.maybeFinishDisposeLocked()
	q.mu.Unlock()
	return q.disposed
}

func (q *waitQueue) maybeFinishDisposeLocked() {
	if q.disposing && !q.done && q.head == nil && q.owner.readyToDisposeLocked() {
		q.done = true
		close(q.disposed)
	}
}
