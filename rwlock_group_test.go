package asyncx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRWLockGroup_Basic(t *testing.T) {
	var g RWLockGroup[string]
	ctx := context.Background()
	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)

	// Concurrent readers on one key.
	for range n {
		go func() {
			defer wg.Done()
			if err := g.RLock(ctx, "key"); err != nil {
				t.Error(err)
				return
			}
			time.Sleep(time.Microsecond)
			if err := g.RUnlock("key"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// Writer exclusion.
	if err := g.Lock(ctx, "key"); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		if err := g.RLock(ctx, "key"); err != nil {
			t.Error(err)
			return
		}
		close(done)
		if err := g.RUnlock("key"); err != nil {
			t.Error(err)
		}
	}()

	select {
	case <-done:
		t.Fatal("RLock acquired while Lock held")
	case <-time.After(10 * time.Millisecond):
	}
	if err := g.Unlock("key"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RLock not acquired after Unlock")
	}
}

func TestRWLockGroup_KeyIsolation(t *testing.T) {
	var g RWLockGroup[int]
	ctx := context.Background()

	if err := g.Lock(ctx, 1); err != nil {
		t.Fatal(err)
	}
	// A different key is unaffected.
	if err := g.Lock(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := g.Unlock(2); err != nil {
		t.Fatal(err)
	}
	if err := g.Unlock(1); err != nil {
		t.Fatal(err)
	}
}

func TestRWLockGroup_Cleanup(t *testing.T) {
	var g RWLockGroup[int]
	ctx := context.Background()

	if err := g.RLock(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.m.Load(1); !ok {
		t.Fatal("entry missing while a hold is outstanding")
	}
	if err := g.RUnlock(1); err != nil {
		t.Fatal(err)
	}
	// Last reference gone: the entry is removed.
	if _, ok := g.m.Load(1); ok {
		t.Fatal("entry not removed after the last release")
	}
}

func TestRWLockGroup_CanceledWaiterReleasesReference(t *testing.T) {
	var g RWLockGroup[string]
	ctx := context.Background()

	if err := g.Lock(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	wctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- g.Lock(wctx, "k")
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}

	if err := g.Unlock("k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.m.Load("k"); ok {
		t.Fatal("entry leaked after a canceled waiter and the final release")
	}
}

func TestRWLockGroup_UnlockUnknownKey(t *testing.T) {
	var g RWLockGroup[string]
	if err := g.Unlock("nope"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("err = %v, want ErrNotHeld", err)
	}
	if err := g.RUnlock("nope"); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("err = %v, want ErrNotHeld", err)
	}
}
