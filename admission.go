// Package admission is the request admission and trust-verification layer of
// the eventgate backend. It composes a sliding-window limiter, a token-bucket
// burst limiter and a brute-force guard behind named policies, and exposes
// the signature and signed-state primitives webhook and OAuth handlers verify
// payloads with.
//
// The façade is invoked in-process by the HTTP layer:
//
//	verdict := adm.Evaluate(ctx, admission.PolicyStandard, admission.Request{
//		IP:           r.RemoteAddr,
//		ForwardedFor: r.Header.Get("X-Forwarded-For"),
//		Path:         r.URL.Path,
//	})
//	if !verdict.Allowed {
//		// 429 with verdict.Headers
//	}
package admission

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/eventgate/admission/instrumentation"
	"github.com/eventgate/admission/internal/util"
	"github.com/eventgate/admission/security"
)

// maxLoggedPath bounds attacker-controlled path values in log records.
const maxLoggedPath = 200

// ErrStoreRequired is returned by New when Config.Store is nil.
var ErrStoreRequired = errors.New("admission: store is required")

// Admission binds named policies to limiter state and derives client keys
// from request metadata. One instance serves the whole process.
type Admission struct {
	policies map[string]Policy
	windows  *security.SlidingWindowLimiter
	bursts   map[string]*security.TokenBucketLimiter
	guard    *security.BruteForceGuard

	logger  *slog.Logger
	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
	now     func() time.Time
}

// New creates an Admission façade from cfg.
func New(cfg Config) (*Admission, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	cfg.applyDefaults()

	windows := security.NewSlidingWindow(cfg.Store, cfg.Logger,
		security.WithWindowClock(cfg.Clock))
	bursts := make(map[string]*security.TokenBucketLimiter)
	for name, p := range cfg.Policies {
		windows.Initialize(name, p.MaxRequests, p.Window)
		if p.BurstRate > 0 && p.BurstCapacity > 0 {
			bursts[name] = security.NewTokenBucket(cfg.Store, p.BurstRate, p.BurstCapacity, cfg.Logger)
		}
	}

	guard := security.NewBruteForceGuard(cfg.Store,
		cfg.MaxFailures, cfg.Lockout, cfg.ResetWindow, cfg.Logger,
		security.WithGuardClock(cfg.Clock),
		security.WithGuardAuditor(cfg.Auditor))

	return &Admission{
		policies: cfg.Policies,
		windows:  windows,
		bursts:   bursts,
		guard:    guard,
		logger:   cfg.Logger,
		auditor:  cfg.Auditor,
		inst:     cfg.Instrumentation,
		now:      cfg.Clock,
	}, nil
}

// Key derives the client key for req: first X-Forwarded-For entry, then the
// direct address, then "unknown". IPv6 keys collapse to their /64.
func (a *Admission) Key(req Request) string {
	return security.ClientKey(req.ForwardedFor, req.IP)
}

// Evaluate runs the admission check for req under the named policy. A locked
// out key is denied before any limiter is consulted; an unknown policy is
// allowed with a warning.
func (a *Admission) Evaluate(ctx context.Context, policy string, req Request) Verdict {
	key := a.Key(req)

	if remaining := a.guard.LockoutRemaining(ctx, key); remaining > 0 {
		a.logger.Warn("request denied, key locked out",
			"policy", policy,
			"key", key,
			"path", util.SafeTruncate(req.Path, maxLoggedPath),
			"retry_after", remaining)
		a.recordDenial(ctx, policy, "lockout")
		var headers map[string]string
		if _, known := a.policies[policy]; known {
			headers = rateLimitHeaders(a.windows.Status(ctx, policy, key))
		}
		return deniedVerdict(remaining, headers)
	}

	p, known := a.policies[policy]
	if !known {
		a.logger.Warn("unknown admission policy, allowing request",
			"policy", policy, "path", util.SafeTruncate(req.Path, maxLoggedPath))
		a.recordCheck(ctx, policy, true)
		return Verdict{Allowed: true, Headers: map[string]string{}}
	}

	allowed, status := a.windows.Take(ctx, policy, key)
	headers := rateLimitHeaders(status)

	if !allowed {
		a.audit(policy, key, status.Used, p.MaxRequests)
		a.recordDenial(ctx, policy, "sliding_window")
		return deniedVerdict(a.retryAfter(status.ResetAt), headers)
	}

	if burst, ok := a.bursts[policy]; ok && !burst.Check(ctx, policy+":"+key) {
		a.audit(policy, key, status.Used, p.MaxRequests)
		a.recordDenial(ctx, policy, "token_bucket")
		return deniedVerdict(tokenWait(burst.Rate()), headers)
	}

	a.recordCheck(ctx, policy, true)
	return Verdict{Allowed: true, Headers: headers}
}

// RecordFailure reports a failed credential attempt for req's client key and
// returns the attempts left before lockout.
func (a *Admission) RecordFailure(ctx context.Context, req Request) int {
	return a.guard.RecordFailure(ctx, a.Key(req))
}

// RecordSuccess clears the failure state for req's client key.
func (a *Admission) RecordSuccess(ctx context.Context, req Request) {
	a.guard.RecordSuccess(ctx, a.Key(req))
}

// Locked reports whether req's client key is locked out.
func (a *Admission) Locked(ctx context.Context, req Request) bool {
	return a.guard.IsLocked(ctx, a.Key(req))
}

// Guard exposes the underlying brute force guard for handlers that key
// failures by something other than client IP.
func (a *Admission) Guard() *security.BruteForceGuard {
	return a.guard
}

func (a *Admission) audit(policy, key string, used, limit int) {
	if policy == PolicyWebhook {
		// Webhook traffic is machine-generated; sustained denial here is
		// the clearest attack signal this layer sees.
		a.auditor.LogWebhookAbuse(key, used, limit)
		return
	}
	a.auditor.LogRateLimitExceeded(policy, key, used, limit)
}

func (a *Admission) recordCheck(ctx context.Context, policy string, allowed bool) {
	if a.inst != nil {
		a.inst.Metrics().RecordAdmissionCheck(ctx, policy, allowed)
	}
}

func (a *Admission) recordDenial(ctx context.Context, policy, limiterType string) {
	if a.inst != nil {
		a.inst.Metrics().RecordAdmissionCheck(ctx, policy, false)
		a.inst.Metrics().RecordRateLimitExceeded(ctx, policy, limiterType)
	}
}

// retryAfter converts a window reset time into a wait, at least one second so
// a denied client never retries immediately.
func (a *Admission) retryAfter(resetAt time.Time) time.Duration {
	d := resetAt.Sub(a.now())
	if d < time.Second {
		d = time.Second
	}
	return d
}

// tokenWait is how long one token takes to accrue at rate.
func tokenWait(rate float64) time.Duration {
	if rate <= 0 {
		return time.Second
	}
	d := time.Duration(float64(time.Second) / rate)
	if d < time.Second {
		d = time.Second
	}
	return d
}

func deniedVerdict(retryAfter time.Duration, headers map[string]string) Verdict {
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Retry-After"] = strconv.Itoa(retrySeconds(retryAfter))
	return Verdict{RetryAfter: retryAfter, Headers: headers}
}

func retrySeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func rateLimitHeaders(status security.WindowStatus) map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(status.Limit),
		"X-RateLimit-Used":      strconv.Itoa(status.Used),
		"X-RateLimit-Remaining": strconv.Itoa(status.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(status.ResetAt.Unix(), 10),
	}
}
