package middleware

import (
	"container/list"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eventgate/admission/instrumentation"
	"github.com/eventgate/admission/internal/netutil"
	"github.com/eventgate/admission/security"
)

// Throttle defaults.
const (
	DefaultThrottleRate       = 20
	DefaultThrottleBurst      = 40
	DefaultThrottleMaxEntries = 10000
)

// throttleEntry tracks one client's limiter and its last access time.
type throttleEntry struct {
	key        string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ThrottleConfig configures a Throttle.
type ThrottleConfig struct {
	// Rate is requests per second per client; Burst the momentary excess.
	// Zero values take the defaults above.
	Rate  int
	Burst int

	// MaxEntries bounds the number of tracked clients; the least recently
	// used entry is evicted at the bound. Zero means the default, negative
	// disables the bound.
	MaxEntries int

	// Logger receives eviction and cleanup logs. Nil means slog.Default().
	Logger *slog.Logger

	// Auditor receives throttle denial events. Optional.
	Auditor *security.Auditor

	// Instrumentation records denial metrics. Optional.
	Instrumentation *instrumentation.Instrumentation
}

// Throttle is a coarse per-client request throttle sitting in front of the
// admission policies. It is deliberately memory-only: its job is shedding
// floods before they reach shared state, so cross-instance coordination
// would defeat the point. Loopback and private peers (load balancers, health
// checkers) bypass it.
type Throttle struct {
	mu       sync.Mutex
	limiters map[string]*list.Element
	lruList  *list.List

	rate       int
	burst      int
	maxEntries int
	logger     *slog.Logger
	auditor    *security.Auditor
	inst       *instrumentation.Instrumentation

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewThrottle creates a throttle and starts its idle-entry cleanup goroutine.
// Call Stop when done.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultThrottleRate
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultThrottleBurst
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultThrottleMaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Throttle{
		limiters:    make(map[string]*list.Element),
		lruList:     list.New(),
		rate:        cfg.Rate,
		burst:       cfg.Burst,
		maxEntries:  cfg.MaxEntries,
		logger:      cfg.Logger,
		auditor:     cfg.Auditor,
		inst:        cfg.Instrumentation,
		stopCleanup: make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Middleware returns the http middleware enforcing the throttle.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.bypass(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}

		key := security.ClientKey(r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
		if delay := t.Delay(key); delay > 0 {
			t.logger.Warn("request throttled",
				"key", key,
				"path", r.URL.Path,
				"retry_after", delay)
			t.auditor.LogThrottled(key)
			if t.inst != nil {
				t.inst.Metrics().RecordThrottleDenied(r.Context())
			}
			secs := int(math.Ceil(delay.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Delay reserves one request slot for key, creating and LRU-evicting limiters
// as needed. Zero means the request passes now; a positive delay means the
// request is rejected, the reservation is cancelled, and the caller should
// report the delay as the retry hint.
func (t *Throttle) Delay(key string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	var entry *throttleEntry
	if elem, ok := t.limiters[key]; ok {
		t.lruList.MoveToFront(elem)
		entry = elem.Value.(*throttleEntry)
		entry.lastAccess = time.Now()
	} else {
		if t.maxEntries > 0 && len(t.limiters) >= t.maxEntries {
			t.evictLRU()
		}
		entry = &throttleEntry{
			key:        key,
			limiter:    rate.NewLimiter(rate.Limit(t.rate), t.burst),
			lastAccess: time.Now(),
		}
		t.limiters[key] = t.lruList.PushFront(entry)
	}

	res := entry.limiter.Reserve()
	if d := res.Delay(); d > 0 {
		res.Cancel()
		return d
	}
	return 0
}

// Allow reports whether a request for key passes the throttle right now.
func (t *Throttle) Allow(key string) bool {
	return t.Delay(key) == 0
}

// Cleanup removes limiters idle for longer than maxIdleTime.
func (t *Throttle) Cleanup(maxIdleTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	removed := 0
	var next *list.Element
	for elem := t.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*throttleEntry)
		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(t.limiters, entry.key)
			t.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("throttle cleanup",
			"removed", removed,
			"remaining", len(t.limiters))
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stopCleanup) })
}

// Len returns the number of tracked clients.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}

// bypass reports whether remoteAddr is an internal peer exempt from the
// throttle.
func (t *Throttle) bypass(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, ok := netutil.ParseHost(host)
	return ok && netutil.IsInternal(addr)
}

// evictLRU removes the least recently used entry. Caller holds the lock.
func (t *Throttle) evictLRU() {
	elem := t.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*throttleEntry)
	delete(t.limiters, entry.key)
	t.lruList.Remove(elem)

	t.logger.Debug("throttle LRU eviction",
		"key", entry.key,
		"current_entries", len(t.limiters))
}

func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Cleanup(30 * time.Minute)
		case <-t.stopCleanup:
			return
		}
	}
}
