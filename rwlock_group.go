package asyncx

import (
	"context"

	"github.com/llxisdsh/pb"
)

// RWLockGroup provides asynchronous reader/writer locking on arbitrary keys.
//
// Locks are created on first use and removed automatically once the last
// holder or waiter for a key releases, so the group stays small no matter how
// many distinct keys pass through it.
//
// Usage:
//
//	var group RWLockGroup[string]
//
//	// Readers
//	_ = group.RLock(ctx, "config")
//	read(config)
//	_ = group.RUnlock("config")
//
//	// Writer
//	_ = group.Lock(ctx, "config")
//	write(config)
//	_ = group.Unlock("config")
type RWLockGroup[K comparable] struct {
	_ noCopy
	m pb.MapOf[K, *groupLock]
}

// groupLock refcounts holders plus waiters for one key. ref is only touched
// inside ProcessEntry callbacks, which serialize per key.
type groupLock struct {
	lock *RWLock
	ref  int64
}

// retain fetches or creates the lock for k and takes a reference.
func (g *RWLockGroup[K]) retain(k K) *RWLock {
	var e *groupLock
	g.m.ProcessEntry(k, func(l *pb.EntryOf[K, *groupLock]) (*pb.EntryOf[K, *groupLock], *groupLock, bool) {
		if l != nil {
			e = l.Value
			e.ref++
			return l, e, true
		}
		e = &groupLock{lock: NewRWLock(0), ref: 1}
		return &pb.EntryOf[K, *groupLock]{Value: e}, e, false
	})
	return e.lock
}

// release drops one reference, deleting the entry when it was the last.
func (g *RWLockGroup[K]) release(k K) {
	g.m.ProcessEntry(k, func(l *pb.EntryOf[K, *groupLock]) (*pb.EntryOf[K, *groupLock], *groupLock, bool) {
		if l == nil {
			return nil, nil, false
		}
		l.Value.ref--
		if l.Value.ref <= 0 {
			return nil, nil, true // delete
		}
		return l, nil, false
	})
}

// RLock acquires a read hold on the lock for k, waiting if a writer holds it.
func (g *RWLockGroup[K]) RLock(ctx context.Context, k K) error {
	l := g.retain(k)
	if err := l.RLock(ctx, NoTimeout); err != nil {
		g.release(k)
		return err
	}
	return nil
}

// RUnlock releases a read hold on the lock for k.
func (g *RWLockGroup[K]) RUnlock(k K) error {
	e, ok := g.m.Load(k)
	if !ok {
		return ErrNotHeld
	}
	if err := e.lock.Unlock(); err != nil {
		return err
	}
	g.release(k)
	return nil
}

// Lock acquires the lock for k exclusively, waiting for readers and writers.
func (g *RWLockGroup[K]) Lock(ctx context.Context, k K) error {
	l := g.retain(k)
	if err := l.Lock(ctx, NoTimeout); err != nil {
		g.release(k)
		return err
	}
	return nil
}

// Unlock releases the exclusive hold on the lock for k.
func (g *RWLockGroup[K]) Unlock(k K) error {
	e, ok := g.m.Load(k)
	if !ok {
		return ErrNotHeld
	}
	if err := e.lock.Unlock(); err != nil {
		return err
	}
	g.release(k)
	return nil
}
