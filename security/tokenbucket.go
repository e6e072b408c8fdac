package security

import (
	"context"
	"log/slog"

	"github.com/eventgate/admission/store"
)

// TokenBucketLimiter models a per-key quota that drains on use and refills
// continuously at a fixed rate, up to a burst capacity. Refill is computed
// lazily on access; there is no background timer and idle keys cost nothing.
type TokenBucketLimiter struct {
	store    store.Store
	rate     float64 // tokens per second
	capacity float64
	logger   *slog.Logger
}

// NewTokenBucket creates a limiter refilling at rate tokens per second up to
// capacity. New keys start with a full bucket.
func NewTokenBucket(st store.Store, rate, capacity float64, logger *slog.Logger) *TokenBucketLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenBucketLimiter{
		store:    st,
		rate:     rate,
		capacity: capacity,
		logger:   logger,
	}
}

// Check consumes one token for key, reporting whether the quota covered it.
func (l *TokenBucketLimiter) Check(ctx context.Context, key string) bool {
	return l.CheckN(ctx, key, 1)
}

// CheckN consumes cost tokens for key. A denied call leaves the balance
// unchanged beyond the lazy refill.
func (l *TokenBucketLimiter) CheckN(ctx context.Context, key string, cost float64) bool {
	allowed, remaining, err := l.store.TakeTokens(ctx, key, l.rate, l.capacity, cost)
	if err != nil {
		l.logger.Warn("token bucket store unavailable, allowing request",
			"key", key, "error", err)
		return true
	}

	if !allowed {
		l.logger.Warn("token bucket exhausted",
			"key", key,
			"cost", cost,
			"tokens", remaining)
	}
	return allowed
}

// Tokens returns the refilled balance for key without consuming anything.
// Unseen keys report a full bucket.
func (l *TokenBucketLimiter) Tokens(ctx context.Context, key string) float64 {
	tokens, err := l.store.PeekTokens(ctx, key, l.rate, l.capacity)
	if err != nil {
		l.logger.Warn("token bucket store unavailable",
			"key", key, "error", err)
		return l.capacity
	}
	return tokens
}

// Rate returns the refill rate in tokens per second.
func (l *TokenBucketLimiter) Rate() float64 { return l.rate }

// Capacity returns the burst capacity.
func (l *TokenBucketLimiter) Capacity() float64 { return l.capacity }
