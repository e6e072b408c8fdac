// Package store provides pluggable state backends for the admission limiters.
//
// Two backends ship with the module:
//   - Memory: mutex-guarded in-process maps, the default
//   - Redis: shared state for deployments with more than one instance
//
// The interface is operation-oriented rather than a raw key/value surface so
// that each backend can keep the read-modify-write of a check atomic: Memory
// holds a lock across the whole operation, Redis runs a server-side script.
package store

import (
	"context"
	"time"
)

// WindowResult reports the state of a sliding window after an operation.
type WindowResult struct {
	// Used is the number of requests still inside the window.
	Used int

	// Oldest is the timestamp of the oldest surviving request, zero when
	// the window is empty.
	Oldest time.Time
}

// LockoutState reports the state of a brute-force entry.
type LockoutState struct {
	// Failures is the number of failures in the current sequence.
	Failures int

	// Locked reports whether the key is currently locked out.
	Locked bool

	// LockedUntil is when the lockout expires; zero when not locked.
	LockedUntil time.Time
}

// Store is the state backend shared by the sliding window limiter, the token
// bucket limiter and the brute force guard. Every method must be atomic with
// respect to concurrent calls on the same key.
type Store interface {
	// TakeWindow purges entries older than now-window, then records the
	// current time if fewer than limit entries remain. It reports whether
	// the request was admitted and the resulting window state.
	TakeWindow(ctx context.Context, key string, limit int, window time.Duration) (bool, WindowResult, error)

	// WindowStatus performs the same purge without recording a request.
	WindowStatus(ctx context.Context, key string, window time.Duration) (WindowResult, error)

	// ResetWindow deletes the window for key outright.
	ResetWindow(ctx context.Context, key string) error

	// TakeTokens refills the bucket for key at rate tokens per second up to
	// capacity, then consumes cost tokens if the balance covers it. A denied
	// call changes the balance only by the refill.
	TakeTokens(ctx context.Context, key string, rate, capacity, cost float64) (bool, float64, error)

	// PeekTokens returns the refilled balance without consuming anything.
	PeekTokens(ctx context.Context, key string, rate, capacity float64) (float64, error)

	// AddFailure records a failed attempt for key. A failure arriving more
	// than resetWindow after the previous one starts a new sequence at 1.
	// Reaching maxFailures locks the key until now+lockout.
	AddFailure(ctx context.Context, key string, maxFailures int, lockout, resetWindow time.Duration) (LockoutState, error)

	// LockoutStatus returns the current state for key. An expired lock is
	// cleared before answering; the failure count survives until its own
	// reset window elapses.
	LockoutStatus(ctx context.Context, key string) (LockoutState, error)

	// ClearLockout deletes the brute-force entry for key entirely.
	ClearLockout(ctx context.Context, key string) error
}
