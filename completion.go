package asyncx

import (
	"context"
	"sync/atomic"
	"time"
)

// csStatus is the lifecycle position of a CompletionSource generation.
//
// External view (four states): idle → activated → completed → consumed.
// completing is a short-lived internal sub-state of "completed" during which
// the winning terminator publishes the payload; readers treat it as
// "result decided, not yet readable".
type csStatus uint32

const (
	statusIdle       csStatus = iota // reusable, waiting for activation
	statusActivated                  // armed; cancellation/timeout racers live
	statusCompleting                 // terminator won, payload being written
	statusCompleted                  // result available, not yet consumed
	statusConsumed                   // result observed; Reset may recycle
)

// The (epoch, status) pair lives in one packed word:
//
//	Bits 0-15:  epoch (generation counter, wraps)
//	Bits 16-18: status
//
// Reading or advancing the pair is a single atomic op, so "does this result
// belong to the wait I started" is answered in one indivisible step. The word
// is only ever advanced by compare-and-swap; whichever racer wins the swap is
// authoritative and every loser degrades to a no-op.
const csStatusShift = 16

func csPack(epoch uint16, st csStatus) uint32 {
	return uint32(epoch) | uint32(st)<<csStatusShift
}

func csUnpack(w uint32) (uint16, csStatus) {
	return uint16(w), csStatus(w >> csStatusShift)
}

// CompletionSource is a reusable, manually-driven promise: one pending
// asynchronous result of type T.
//
// A generation begins with PrepareWait, which arms an optional timeout and an
// optional cancellation signal. Exactly one of {TrySetResult, TrySetError,
// timeout, cancellation} then terminates the generation; the continuation (if
// attached) fires once, and Consume hands the payload to exactly one caller.
// Reset recycles the object for the next generation, bumping the epoch so any
// callback still carrying the previous epoch is rejected.
//
// It is zero-value usable and safe for concurrent use. Usage errors (stale
// epoch, wrong state) surface as ErrStaleToken; internal races resolve
// silently as no-ops.
type CompletionSource[T any] struct {
	_ noCopy

	// state is the packed (epoch, status) word; the sole arbiter of every
	// completion race.
	state atomic.Uint32

	// cont holds the attached continuation until a terminator claims it.
	cont atomic.Pointer[Continuation]

	// racer: internal timer and cancellation unsubscribe hook. Swapped to
	// nil on teardown so a double teardown is harmless.
	timer atomic.Pointer[time.Timer]
	unsub atomic.Pointer[func() bool]

	// value/err are written only by the terminator that won the state CAS,
	// strictly before the statusCompleted store publishes them.
	value T
	err   error
}

// Epoch returns the live generation counter.
func (s *CompletionSource[T]) Epoch() uint16 {
	e, _ := csUnpack(s.state.Load())
	return e
}

// Completed reports whether the given generation has terminated and its
// result is (or is about to become) consumable.
func (s *CompletionSource[T]) Completed(epoch uint16) bool {
	e, st := csUnpack(s.state.Load())
	return e == epoch && st >= statusCompleting
}

// PrepareWait arms the source for one wait.
//
// From idle it activates the source, subscribing to ctx (if non-nil and
// cancellable) and starting an internal timer (if timeout > 0). A zero
// timeout terminates immediately as timed out; an already-canceled ctx
// terminates immediately as canceled; in both cases the epoch is still
// returned and the result is consumable. If the source already holds an
// unconsumed result, the current epoch is returned so a late subscriber can
// still consume it. Any other state returns ok=false.
func (s *CompletionSource[T]) PrepareWait(ctx context.Context, timeout time.Duration) (epoch uint16, ok bool) {
	w := s.state.Load()
	epoch, st := csUnpack(w)
	switch st {
	case statusCompleting, statusCompleted:
		// Result already available, not yet consumed.
		return epoch, true
	case statusIdle:
	default:
		return 0, false
	}
	if !s.state.CompareAndSwap(w, csPack(epoch, statusActivated)) {
		return 0, false
	}
	var zero T
	if timeout == 0 {
		s.tryComplete(epoch, zero, context.DeadlineExceeded)
		return epoch, true
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			s.tryComplete(epoch, zero, context.Cause(ctx))
			return epoch, true
		}
	}
	s.armRacer(ctx, timeout, epoch)
	return epoch, true
}

// armRacer subscribes the timeout timer and the cancellation signal. Both
// funnel into tryComplete with the captured epoch: after a Reset the epoch no
// longer matches and the callback is a no-op.
func (s *CompletionSource[T]) armRacer(ctx context.Context, timeout time.Duration, epoch uint16) {
	if timeout > 0 {
		t := time.AfterFunc(timeout, func() {
			var zero T
			s.tryComplete(epoch, zero, context.DeadlineExceeded)
		})
		s.timer.Store(t)
	}
	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			var zero T
			s.tryComplete(epoch, zero, context.Cause(ctx))
		})
		s.unsub.Store(&stop)
	}
	// A racer may have fired while it was being armed, missing the stored
	// handles; if the source already left activated, tear down leftovers.
	if _, st := csUnpack(s.state.Load()); st != statusActivated {
		s.disarmRacer()
	}
}

// disarmRacer stops the timer and unsubscribes from the cancellation signal.
// Idempotent: handles are claimed by swap.
func (s *CompletionSource[T]) disarmRacer() {
	if t := s.timer.Swap(nil); t != nil {
		t.Stop()
	}
	if stop := s.unsub.Swap(nil); stop != nil {
		(*stop)()
	}
}

// TrySetResult terminates the given generation successfully. It reports false
// if that generation is not activated (already terminated, consumed, or
// reset), in which case nothing happens.
func (s *CompletionSource[T]) TrySetResult(epoch uint16, value T) bool {
	return s.tryComplete(epoch, value, nil)
}

// TrySetError terminates the given generation with err. Same no-op semantics
// as TrySetResult.
func (s *CompletionSource[T]) TrySetError(epoch uint16, err error) bool {
	var zero T
	return s.tryComplete(epoch, zero, err)
}

// tryComplete is the single termination path for success, fault, cancellation
// and timeout. The activated→completing CAS picks the winner; the winner
// publishes the payload, stores completed, tears down the racer, and
// dispatches the continuation, in that order, so a consumer woken by the
// continuation always observes the payload.
func (s *CompletionSource[T]) tryComplete(epoch uint16, value T, err error) bool {
	if !s.state.CompareAndSwap(csPack(epoch, statusActivated), csPack(epoch, statusCompleting)) {
		return false
	}
	s.value = value
	s.err = err
	s.state.Store(csPack(epoch, statusCompleted))
	s.disarmRacer()
	if c := s.cont.Swap(nil); c != nil {
		c.dispatch()
	}
	return true
}

// OnCompleted attaches the continuation that fires when the given generation
// terminates. If the result is already available it fires inline on the
// calling goroutine. Only one continuation may be attached per generation;
// a mismatched epoch, an idle source, or a second attach reports
// ErrStaleToken.
func (s *CompletionSource[T]) OnCompleted(c Continuation, epoch uint16) error {
	w := s.state.Load()
	e, st := csUnpack(w)
	if e != epoch {
		return ErrStaleToken
	}
	switch st {
	case statusActivated, statusCompleting:
		p := &c
		if !s.cont.CompareAndSwap(nil, p) {
			return ErrStaleToken
		}
		// The terminator may have swapped the slot before our store
		// landed; if the result is out and our continuation is still in
		// the slot, reclaim it and fire inline.
		if _, st := csUnpack(s.state.Load()); st >= statusCompleted {
			if s.cont.CompareAndSwap(p, nil) {
				c.invoke()
			}
		}
		return nil
	case statusCompleted:
		// Result ready; no need to suspend.
		c.invoke()
		return nil
	default:
		return ErrStaleToken
	}
}

// Consume hands out the terminal payload of the given generation to exactly
// one caller, advancing completed→consumed. A second Consume, a mismatched
// epoch, or an unterminated generation reports ErrStaleToken.
func (s *CompletionSource[T]) Consume(epoch uint16) (T, error) {
	var spins int
	for {
		w := s.state.Load()
		e, st := csUnpack(w)
		if e != epoch {
			var zero T
			return zero, ErrStaleToken
		}
		switch st {
		case statusCompleting:
			// Terminator is publishing the payload.
			delay(&spins)
		case statusCompleted:
			// Copy the payload before claiming it: a concurrent Reset
			// claims the word first and only then clears the payload,
			// so a successful CAS here proves the copy was sound.
			value, err := s.value, s.err
			if s.state.CompareAndSwap(w, csPack(epoch, statusConsumed)) {
				return value, err
			}
		default:
			var zero T
			return zero, ErrStaleToken
		}
	}
}

// Reset recycles the source for the next generation: bumps the epoch back to
// idle, then clears the payload and detaches any leftover racer. Legal only
// once the current generation has terminated; resetting a pending source
// panics (it would silently strand the waiter).
//
// Reset and the next PrepareWait belong to the owner of the source and must
// not be called concurrently with each other.
func (s *CompletionSource[T]) Reset() uint16 {
	var spins int
	for {
		w := s.state.Load()
		epoch, st := csUnpack(w)
		switch st {
		case statusCompleting:
			delay(&spins)
			continue
		case statusCompleted, statusConsumed:
		default:
			panic("asyncx: Reset of a pending CompletionSource")
		}
		next := epoch + 1 // wraps
		// Claim the word first: once the epoch is bumped, no straggler
		// (late racer callback, late Consume) can touch the payload.
		if s.state.CompareAndSwap(w, csPack(next, statusIdle)) {
			s.disarmRacer()
			s.cont.Store(nil)
			var zero T
			s.value = zero
			s.err = nil
			return next
		}
	}
}
