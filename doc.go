// Package asyncx provides building blocks for asynchronous synchronization
// primitives: locks that suspend logical callers instead of pinning threads,
// with cooperative cancellation, timeout, and pooled wait bookkeeping.
//
// The core pieces:
//
//   - CompletionSource: a reusable, epoch-guarded promise that represents one
//     pending result. Cancellation, timeout, and normal completion race on a
//     single packed state word; exactly one wins.
//   - Wait queues: FIFO intrusive queues of pooled wait nodes guarded by one
//     fair region per primitive. A drain pass after every state change grants
//     compatible head requests in arrival order.
//   - RWLock: an upgradeable asynchronous reader/writer lock with optimistic
//     read stamps, built on the pieces above.
//   - ExclusiveLock: an asynchronous mutex on the same machinery.
//
// All waiting operations accept a context for cancellation and an independent
// timeout. Pass NoTimeout to wait indefinitely; pass 0 to fail immediately
// when the fast path does not succeed.
package asyncx

import "time"

// NoTimeout makes a waiting acquisition wait until granted or canceled.
const NoTimeout time.Duration = -1
