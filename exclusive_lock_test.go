package asyncx

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

func TestExclusiveLock_Basics(t *testing.T) {
	l := NewExclusiveLock(0)

	if !l.TryLock() {
		t.Fatal("TryLock failed on free lock")
	}
	if !l.IsHeld() {
		t.Fatal("IsHeld = false after TryLock")
	}
	if l.TryLock() {
		t.Fatal("reentrant TryLock succeeded")
	}
	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
	if l.IsHeld() {
		t.Fatal("IsHeld = true after Unlock")
	}
	if err := l.Unlock(); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("Unlock on free lock err = %v, want ErrNotHeld", err)
	}
}

func TestExclusiveLock_FIFO(t *testing.T) {
	l := NewExclusiveLock(0)
	if !l.TryLock() {
		t.Fatal("TryLock failed")
	}

	order := make(chan int, 3)
	for i := range 3 {
		go func(i int) {
			if l.Lock(context.Background(), NoTimeout) == nil {
				order <- i
				if err := l.Unlock(); err != nil {
					t.Error(err)
				}
			}
		}(i)
		time.Sleep(20 * time.Millisecond)
	}

	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
	for want := range 3 {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("grant order[%d] = %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("waiter %d never granted", want)
		}
	}
}

func TestExclusiveLock_TimeoutAndCancel(t *testing.T) {
	l := NewExclusiveLock(0)
	if !l.TryLock() {
		t.Fatal("TryLock failed")
	}

	if err := l.Lock(context.Background(), 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if err := l.Lock(context.Background(), -time.Second); !errors.Is(err, ErrInvalidTimeout) {
		t.Fatalf("err = %v, want ErrInvalidTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Lock(ctx, NoTimeout)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}

	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
}

func TestExclusiveLock_Dispose(t *testing.T) {
	l := NewExclusiveLock(0)
	if !l.TryLock() {
		t.Fatal("TryLock failed")
	}
	done := l.Dispose()
	if !l.IsDisposed() {
		t.Fatal("IsDisposed = false")
	}
	if err := l.Lock(context.Background(), NoTimeout); !errors.Is(err, ErrDisposed) {
		t.Fatalf("err = %v, want ErrDisposed", err)
	}
	select {
	case <-done:
		t.Fatal("disposal finished while held")
	default:
	}
	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disposal never finished")
	}
}

func TestExclusiveLock_Stress(t *testing.T) {
	l := NewExclusiveLock(0)
	var held, total atomic.Int64
	ctx := context.Background()

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			for range 200 {
				if err := l.Lock(ctx, NoTimeout); err != nil {
					return err
				}
				if held.Add(1) != 1 {
					t.Error("mutual exclusion violated")
				}
				total.Add(1)
				held.Add(-1)
				if err := l.Unlock(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := total.Load(); n != 8*200 {
		t.Fatalf("acquisitions = %d, want %d", n, 8*200)
	}
}
