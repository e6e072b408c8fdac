package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/eventgate/admission/store"
)

// BruteForceGuard tracks authentication failures per key and locks a key
// out after too many failures in sequence. A sequence restarts when the gap
// since the previous failure exceeds the reset window. Lockout expiry clears
// only the lock; the failure count ages out through the reset window, so a
// key cannot dodge escalation by waiting out a single lockout.
type BruteForceGuard struct {
	store       store.Store
	maxFailures int
	lockout     time.Duration
	resetWindow time.Duration
	logger      *slog.Logger
	auditor     *Auditor
	now         func() time.Time
}

// BruteForceOption configures a BruteForceGuard.
type BruteForceOption func(*BruteForceGuard)

// WithGuardClock replaces the guard's time source. Used by tests.
func WithGuardClock(now func() time.Time) BruteForceOption {
	return func(g *BruteForceGuard) { g.now = now }
}

// WithGuardAuditor attaches an auditor; lockout transitions are then
// recorded as security events.
func WithGuardAuditor(a *Auditor) BruteForceOption {
	return func(g *BruteForceGuard) { g.auditor = a }
}

// NewBruteForceGuard creates a guard locking a key for lockout after
// maxFailures failures within resetWindow of each other.
func NewBruteForceGuard(st store.Store, maxFailures int, lockout, resetWindow time.Duration, logger *slog.Logger, opts ...BruteForceOption) *BruteForceGuard {
	if logger == nil {
		logger = slog.Default()
	}

	g := &BruteForceGuard{
		store:       st,
		maxFailures: maxFailures,
		lockout:     lockout,
		resetWindow: resetWindow,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RecordFailure registers a failed attempt for key and returns the number
// of attempts left before lockout, zero when the key is now locked.
func (g *BruteForceGuard) RecordFailure(ctx context.Context, key string) int {
	state, err := g.store.AddFailure(ctx, key, g.maxFailures, g.lockout, g.resetWindow)
	if err != nil {
		g.logger.Warn("brute force store unavailable",
			"key", key, "error", err)
		return g.maxFailures
	}

	if state.Locked {
		g.logger.Warn("brute force lockout engaged",
			"key", key,
			"failures", state.Failures,
			"locked_until", state.LockedUntil)
		if g.auditor != nil {
			g.auditor.LogLockout(key, state.Failures, state.LockedUntil)
		}
	}

	remaining := g.maxFailures - state.Failures
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// IsLocked reports whether key is currently locked out. Reading an expired
// lock transitions the key back to unlocked.
func (g *BruteForceGuard) IsLocked(ctx context.Context, key string) bool {
	state, err := g.store.LockoutStatus(ctx, key)
	if err != nil {
		g.logger.Warn("brute force store unavailable",
			"key", key, "error", err)
		return false
	}
	return state.Locked
}

// RecordSuccess clears all failure state for key.
func (g *BruteForceGuard) RecordSuccess(ctx context.Context, key string) {
	if err := g.store.ClearLockout(ctx, key); err != nil {
		g.logger.Warn("brute force clear failed",
			"key", key, "error", err)
	}
}

// LockoutRemaining returns how long key stays locked, zero when it is not.
func (g *BruteForceGuard) LockoutRemaining(ctx context.Context, key string) time.Duration {
	state, err := g.store.LockoutStatus(ctx, key)
	if err != nil || !state.Locked {
		return 0
	}

	remaining := state.LockedUntil.Sub(g.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxFailures returns the lockout threshold.
func (g *BruteForceGuard) MaxFailures() int { return g.maxFailures }
