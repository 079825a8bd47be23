package asyncx

import (
	"sync/atomic"
)

// TicketLock is a fair, FIFO (First-In-First-Out) spin-lock.
//
// It guards the wait queues in this package: every queue mutation is a short
// burst of pointer work, and strict arrival-order entry into the region keeps
// the queue discipline itself fair. Unlike sync.Mutex, which allows barging,
// TicketLock guarantees that goroutines acquire the lock in the exact order
// they called Lock().
//
// Implementation:
// The classic "ticket" algorithm.
//   - Lock(): Takes a ticket number. Spins/Sleeps until `serving` == `my_ticket`.
//   - Unlock(): Increments `serving`, allowing the next ticket holder to proceed.
//
// It is only suitable for very small critical sections (a few fields, a short
// list walk); never hold it across a suspension point.
type TicketLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
}

// Lock acquires the lock. Blocks until the lock is available.
func (m *TicketLock) Lock() {
	my := m.next.Add(1) - 1
	var spins int
	for {
		if m.serving.Load() == my {
			return
		}
		delay(&spins)
	}
}

// Unlock releases the lock.
func (m *TicketLock) Unlock() {
	m.serving.Add(1)
}
