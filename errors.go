package asyncx

import "errors"

var (
	// ErrDisposed is reported by operations on a disposed primitive.
	ErrDisposed = errors.New("asyncx: primitive is disposed")

	// ErrNotHeld is reported when releasing, downgrading, or upgrading a
	// lock that the caller does not hold in the required mode.
	ErrNotHeld = errors.New("asyncx: lock is not held")

	// ErrInvalidTimeout is reported for a negative timeout other than
	// NoTimeout.
	ErrInvalidTimeout = errors.New("asyncx: negative timeout")

	// ErrStaleToken is reported when an epoch token does not match the
	// live generation of a CompletionSource, e.g. a result consumed twice
	// or a callback that outlived a Reset.
	ErrStaleToken = errors.New("asyncx: stale completion token")

	// ErrConcurrencyExceeded is reported when a bounded wait-node pool is
	// exhausted: more waiters than the configured concurrency level.
	ErrConcurrencyExceeded = errors.New("asyncx: concurrency level exceeded")
)
