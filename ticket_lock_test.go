package asyncx

import (
	"sync"
	"testing"
)

func TestTicketLock(t *testing.T) {
	var m TicketLock
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	var counter int64
	for range n {
		go func() {
			defer wg.Done()
			m.Lock()
			counter++
			m.Unlock()
		}()
	}
	wg.Wait()
	if counter != n {
		t.Fatalf("counter = %d, want %d", counter, n)
	}
}

func TestTicketLockFIFO(t *testing.T) {
	var m TicketLock
	m.Lock()

	order := make(chan int, 3)
	for i := range 3 {
		started := make(chan struct{})
		go func(i int) {
			close(started)
			m.Lock()
			order <- i
			m.Unlock()
		}(i)
		<-started
		// Give the goroutine time to take its ticket.
		for m.next.Load() != uint32(i+2) {
			var spins int
			delay(&spins)
		}
	}

	m.Unlock()
	for want := range 3 {
		if got := <-order; got != want {
			t.Fatalf("entry order[%d] = %d", want, got)
		}
	}
}
