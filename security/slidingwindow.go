package security

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eventgate/admission/store"
)

// windowPolicy is the configuration of one named sliding-window policy.
type windowPolicy struct {
	limit  int
	window time.Duration
}

// WindowStatus is the introspection view of one (policy, key) window.
type WindowStatus struct {
	// Used is the number of requests inside the current window.
	Used int

	// Limit is the policy's maximum requests per window.
	Limit int

	// Remaining is Limit minus Used, never negative.
	Remaining int

	// ResetAt is when the oldest surviving request leaves the window, or
	// now+window when the window is empty.
	ResetAt time.Time
}

// SlidingWindowLimiter counts requests per (policy, key) within a rolling
// window. Policies must be registered with Initialize before use; a check
// against an unregistered policy logs a warning and allows the request,
// since silently blocking all traffic over a missing config entry is worse
// than under-limiting.
type SlidingWindowLimiter struct {
	mu       sync.RWMutex
	policies map[string]windowPolicy

	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// SlidingWindowOption configures a SlidingWindowLimiter.
type SlidingWindowOption func(*SlidingWindowLimiter)

// WithWindowClock replaces the limiter's time source. Used by tests; the
// store keeps its own clock.
func WithWindowClock(now func() time.Time) SlidingWindowOption {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// NewSlidingWindow creates a limiter over the given store.
func NewSlidingWindow(st store.Store, logger *slog.Logger, opts ...SlidingWindowOption) *SlidingWindowLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	l := &SlidingWindowLimiter{
		policies: make(map[string]windowPolicy),
		store:    st,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize registers or replaces a named policy.
func (l *SlidingWindowLimiter) Initialize(policy string, maxRequests int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policies[policy] = windowPolicy{limit: maxRequests, window: window}
}

// Take performs an admission check for key under policy and returns the
// verdict together with the resulting window status.
func (l *SlidingWindowLimiter) Take(ctx context.Context, policy, key string) (bool, WindowStatus) {
	p, ok := l.policy(policy)
	if !ok {
		l.logger.Warn("sliding window policy not initialized, allowing request",
			"policy", policy)
		return true, WindowStatus{}
	}

	allowed, res, err := l.store.TakeWindow(ctx, l.storeKey(policy, key), p.limit, p.window)
	if err != nil {
		l.logger.Warn("sliding window store unavailable, allowing request",
			"policy", policy, "error", err)
		return true, WindowStatus{Limit: p.limit, Remaining: p.limit}
	}

	if !allowed {
		l.logger.Warn("rate limit exceeded",
			"policy", policy,
			"key", key,
			"used", res.Used,
			"limit", p.limit)
	}
	return allowed, l.status(p, res)
}

// Check reports whether a request for key is admitted under policy.
func (l *SlidingWindowLimiter) Check(ctx context.Context, policy, key string) bool {
	allowed, _ := l.Take(ctx, policy, key)
	return allowed
}

// Status returns the current window state for key without recording a
// request. The read still purges expired entries.
func (l *SlidingWindowLimiter) Status(ctx context.Context, policy, key string) WindowStatus {
	p, ok := l.policy(policy)
	if !ok {
		return WindowStatus{}
	}

	res, err := l.store.WindowStatus(ctx, l.storeKey(policy, key), p.window)
	if err != nil {
		l.logger.Warn("sliding window store unavailable",
			"policy", policy, "error", err)
		return WindowStatus{Limit: p.limit, Remaining: p.limit}
	}
	return l.status(p, res)
}

// Reset deletes the window for (policy, key) outright.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, policy, key string) {
	if err := l.store.ResetWindow(ctx, l.storeKey(policy, key)); err != nil {
		l.logger.Warn("sliding window reset failed",
			"policy", policy, "key", key, "error", err)
	}
}

func (l *SlidingWindowLimiter) policy(name string) (windowPolicy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.policies[name]
	return p, ok
}

func (l *SlidingWindowLimiter) status(p windowPolicy, res store.WindowResult) WindowStatus {
	st := WindowStatus{
		Used:      res.Used,
		Limit:     p.limit,
		Remaining: p.limit - res.Used,
	}
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	if res.Oldest.IsZero() {
		st.ResetAt = l.now().Add(p.window)
	} else {
		st.ResetAt = res.Oldest.Add(p.window)
	}
	return st
}

func (l *SlidingWindowLimiter) storeKey(policy, key string) string {
	return policy + ":" + key
}
