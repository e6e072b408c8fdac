package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor emits structured security events through a slog.Logger. Events are
// ordinary log records carrying an "event" attribute, so any slog handler
// (JSON shipping, alerting pipelines) consumes them without extra plumbing.
//
// A nil *Auditor is safe to call and logs nothing, which lets callers wire
// auditing in optionally.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates an auditor writing to logger. A nil logger falls back to
// slog.Default().
func NewAuditor(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: true}
}

// Enabled reports whether the auditor emits events.
func (a *Auditor) Enabled() bool {
	return a != nil && a.enabled
}

// LogEvent records a generic security event at warn level.
func (a *Auditor) LogEvent(event string, attrs ...any) {
	if !a.Enabled() {
		return
	}
	a.logger.Warn("security event", append([]any{"event", event}, attrs...)...)
}

// LogRateLimitExceeded records a policy denial for key.
func (a *Auditor) LogRateLimitExceeded(policy, key string, used, limit int) {
	if !a.Enabled() {
		return
	}
	a.logger.Warn("security event",
		"event", EventRateLimitExceeded,
		"policy", policy,
		"key", key,
		"used", used,
		"limit", limit)
}

// LogWebhookAbuse records a webhook policy denial. Webhook traffic is
// machine-generated and retried aggressively, so a denial here is raised at
// error level for alerting.
func (a *Auditor) LogWebhookAbuse(key string, used, limit int) {
	if !a.Enabled() {
		return
	}
	a.logger.Error("security event",
		"event", EventWebhookAbuse,
		"key", key,
		"used", used,
		"limit", limit)
}

// LogLockout records a brute force lockout for key.
func (a *Auditor) LogLockout(key string, failures int, until time.Time) {
	if !a.Enabled() {
		return
	}
	a.logger.Error("security event",
		"event", EventBruteForceLockout,
		"key", key,
		"failures", failures,
		"locked_until", until)
}

// LogAuthFailure records a failed credential check. The identity is hashed
// before logging so usernames never land in log storage verbatim.
func (a *Auditor) LogAuthFailure(identity, key string) {
	if !a.Enabled() {
		return
	}
	a.logger.Warn("security event",
		"event", EventAuthFailure,
		"identity", hashForLogging(identity),
		"key", key)
}

// LogSignatureFailure records a payload signature verification failure.
func (a *Auditor) LogSignatureFailure(key string, err error) {
	if !a.Enabled() {
		return
	}
	a.logger.Warn("security event",
		"event", EventSignatureInvalid,
		"key", key,
		"error", err)
}

// LogStateRejected records a rejected OAuth state parameter.
func (a *Auditor) LogStateRejected(key string, err error) {
	if !a.Enabled() {
		return
	}
	a.logger.Warn("security event",
		"event", EventStateRejected,
		"key", key,
		"error", err)
}

// LogThrottled records a connection-level throttle denial for key.
func (a *Auditor) LogThrottled(key string) {
	if !a.Enabled() {
		return
	}
	a.logger.Warn("security event",
		"event", EventThrottled,
		"key", key)
}

// hashForLogging returns a short SHA-256 digest prefix of value, enough to
// correlate repeat offenders in logs without storing the value itself.
func hashForLogging(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}
