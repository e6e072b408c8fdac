package store

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultMaxKeys is the per-algorithm cap on tracked keys. Forwarded-for
	// values are attacker-controlled, so the key space must be bounded.
	DefaultMaxKeys = 10000

	// DefaultSweepInterval is how often the background sweep runs.
	DefaultSweepInterval = time.Minute
)

// windowEntry holds the request timestamps for one sliding-window key.
// stamps is ascending by insertion; window is the length recorded on the
// last access so the sweep can purge without knowing the policy.
type windowEntry struct {
	stamps []time.Time
	window time.Duration
	expiry time.Time
}

func (e *windowEntry) expiresAt() time.Time { return e.expiry }

// bucketEntry holds the token balance for one token-bucket key. A full idle
// bucket is indistinguishable from a fresh one, so it may be swept freely.
type bucketEntry struct {
	tokens   float64
	refilled time.Time
	expiry   time.Time
}

func (e *bucketEntry) expiresAt() time.Time { return e.expiry }

// lockoutEntry holds the brute-force state for one key.
type lockoutEntry struct {
	failures    int
	lastFailure time.Time
	locked      bool
	lockedUntil time.Time
	expiry      time.Time
}

func (e *lockoutEntry) expiresAt() time.Time { return e.expiry }

// Memory is the default in-process Store. All state lives behind a single
// mutex; the sweep goroutine takes the same lock as foreground calls.
//
// Memory is suitable for single-instance deployments only. Point the
// limiters at Redis when state must be shared across processes.
type Memory struct {
	mu       sync.Mutex
	windows  map[string]*windowEntry
	buckets  map[string]*bucketEntry
	lockouts map[string]*lockoutEntry

	maxKeys       int
	sweepInterval time.Duration
	now           func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// WithMaxKeys bounds the number of keys tracked per algorithm. When the
// bound is hit, the entry closest to expiry is evicted. Zero disables the
// bound.
func WithMaxKeys(n int) MemoryOption {
	return func(m *Memory) { m.maxKeys = n }
}

// WithSweepInterval changes how often expired entries are removed. Zero
// disables the background sweep; Sweep can still be called directly.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepInterval = d }
}

// NewMemory creates an in-process store. The sweep goroutine stops when ctx
// is cancelled.
func NewMemory(ctx context.Context, opts ...MemoryOption) *Memory {
	m := &Memory{
		windows:       make(map[string]*windowEntry),
		buckets:       make(map[string]*bucketEntry),
		lockouts:      make(map[string]*lockoutEntry),
		maxKeys:       DefaultMaxKeys,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.sweepInterval > 0 {
		go m.sweepLoop(ctx)
	}
	return m
}

var _ Store = (*Memory)(nil)

// TakeWindow implements Store.
func (m *Memory) TakeWindow(_ context.Context, key string, limit int, window time.Duration) (bool, WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.windows[key]
	if !ok {
		if m.maxKeys > 0 && len(m.windows) >= m.maxKeys {
			evictSoonest(m.windows)
		}
		e = &windowEntry{}
		m.windows[key] = e
	}

	e.window = window
	e.purge(now)

	if len(e.stamps) >= limit {
		e.touch(now)
		return false, e.result(), nil
	}

	e.stamps = append(e.stamps, now)
	e.touch(now)
	return true, e.result(), nil
}

// WindowStatus implements Store.
func (m *Memory) WindowStatus(_ context.Context, key string, window time.Duration) (WindowResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.windows[key]
	if !ok {
		return WindowResult{}, nil
	}

	e.window = window
	e.purge(m.now())
	e.touch(m.now())
	return e.result(), nil
}

// ResetWindow implements Store.
func (m *Memory) ResetWindow(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
	return nil
}

// TakeTokens implements Store.
func (m *Memory) TakeTokens(_ context.Context, key string, rate, capacity, cost float64) (bool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.buckets[key]
	if !ok {
		if m.maxKeys > 0 && len(m.buckets) >= m.maxKeys {
			evictSoonest(m.buckets)
		}
		e = &bucketEntry{tokens: capacity, refilled: now}
		m.buckets[key] = e
	}

	e.refill(now, rate, capacity)

	allowed := e.tokens >= cost
	if allowed {
		e.tokens -= cost
	}
	e.expiry = fullAt(now, e.tokens, rate, capacity)
	return allowed, e.tokens, nil
}

// PeekTokens implements Store.
func (m *Memory) PeekTokens(_ context.Context, key string, rate, capacity float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.buckets[key]
	if !ok {
		return capacity, nil
	}

	now := m.now()
	e.refill(now, rate, capacity)
	e.expiry = fullAt(now, e.tokens, rate, capacity)
	return e.tokens, nil
}

// AddFailure implements Store.
func (m *Memory) AddFailure(_ context.Context, key string, maxFailures int, lockout, resetWindow time.Duration) (LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.lockouts[key]
	switch {
	case !ok:
		if m.maxKeys > 0 && len(m.lockouts) >= m.maxKeys {
			evictSoonest(m.lockouts)
		}
		e = &lockoutEntry{failures: 1}
		m.lockouts[key] = e
	case now.Sub(e.lastFailure) > resetWindow:
		// New attempt sequence: the previous failures have aged out.
		e.failures = 1
	default:
		e.failures++
	}
	e.lastFailure = now

	if e.failures >= maxFailures {
		e.locked = true
		e.lockedUntil = now.Add(lockout)
	}

	e.expiry = e.lastFailure.Add(resetWindow)
	if e.lockedUntil.After(e.expiry) {
		e.expiry = e.lockedUntil
	}
	return e.state(), nil
}

// LockoutStatus implements Store.
func (m *Memory) LockoutStatus(_ context.Context, key string) (LockoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lockouts[key]
	if !ok {
		return LockoutState{}, nil
	}

	if e.locked && !e.lockedUntil.After(m.now()) {
		// Lock expired: clear it but keep the failure count so escalation
		// is governed solely by the reset window.
		e.locked = false
		e.lockedUntil = time.Time{}
	}
	return e.state(), nil
}

// ClearLockout implements Store.
func (m *Memory) ClearLockout(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lockouts, key)
	return nil
}

// Sweep removes every entry that has passed its expiry: empty window
// buckets, full idle token buckets, and lockout entries whose reset window
// and lockout have both elapsed.
func (m *Memory) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.windows {
		e.purge(now)
		if len(e.stamps) == 0 || !e.expiry.After(now) {
			delete(m.windows, key)
		}
	}
	for key, e := range m.buckets {
		if !e.expiry.After(now) {
			delete(m.buckets, key)
		}
	}
	for key, e := range m.lockouts {
		if !e.expiry.After(now) {
			delete(m.lockouts, key)
		}
	}
}

func (m *Memory) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func (e *windowEntry) purge(now time.Time) {
	cutoff := now.Add(-e.window)
	n := 0
	for _, t := range e.stamps {
		if t.After(cutoff) {
			e.stamps[n] = t
			n++
		}
	}
	e.stamps = e.stamps[:n]
}

func (e *windowEntry) touch(now time.Time) {
	if len(e.stamps) > 0 {
		e.expiry = e.stamps[len(e.stamps)-1].Add(e.window)
	} else {
		e.expiry = now
	}
}

func (e *windowEntry) result() WindowResult {
	res := WindowResult{Used: len(e.stamps)}
	if len(e.stamps) > 0 {
		res.Oldest = e.stamps[0]
	}
	return res
}

func (e *bucketEntry) refill(now time.Time, rate, capacity float64) {
	elapsed := now.Sub(e.refilled).Seconds()
	if elapsed > 0 {
		e.tokens += elapsed * rate
	}
	if e.tokens > capacity {
		e.tokens = capacity
	}
	e.refilled = now
}

// fullAt returns the moment the bucket will be full again, which is when the
// entry becomes reconstructable and therefore sweepable.
func fullAt(now time.Time, tokens, rate, capacity float64) time.Time {
	if rate <= 0 || tokens >= capacity {
		return now
	}
	wait := (capacity - tokens) / rate
	return now.Add(time.Duration(wait * float64(time.Second)))
}

func (e *lockoutEntry) state() LockoutState {
	return LockoutState{
		Failures:    e.failures,
		Locked:      e.locked,
		LockedUntil: e.lockedUntil,
	}
}

type expirable interface {
	expiresAt() time.Time
}

// evictSoonest drops the entry closest to expiry. Called only when the key
// bound is hit, so the linear scan stays off the common path.
func evictSoonest[E expirable](entries map[string]E) {
	var victim string
	var soonest time.Time
	first := true
	for key, e := range entries {
		if first || e.expiresAt().Before(soonest) {
			victim = key
			soonest = e.expiresAt()
			first = false
		}
	}
	if !first {
		delete(entries, victim)
	}
}
