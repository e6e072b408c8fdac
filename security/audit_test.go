package security

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestAuditor() (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewAuditor(logger), &buf
}

func TestAuditorRateLimitExceeded(t *testing.T) {
	a, buf := newTestAuditor()

	a.LogRateLimitExceeded("standard", "1.2.3.4", 101, 100)

	out := buf.String()
	if !strings.Contains(out, EventRateLimitExceeded) {
		t.Errorf("output missing event type: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("rate limit event not at warn level: %s", out)
	}
	if !strings.Contains(out, `"key":"1.2.3.4"`) {
		t.Errorf("output missing key: %s", out)
	}
}

func TestAuditorWebhookAbuseIsError(t *testing.T) {
	a, buf := newTestAuditor()

	a.LogWebhookAbuse("1.2.3.4", 1001, 1000)

	out := buf.String()
	if !strings.Contains(out, EventWebhookAbuse) {
		t.Errorf("output missing event type: %s", out)
	}
	if !strings.Contains(out, `"level":"ERROR"`) {
		t.Errorf("webhook abuse not raised at error level: %s", out)
	}
}

func TestAuditorLockoutIsError(t *testing.T) {
	a, buf := newTestAuditor()

	until := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	a.LogLockout("admin", 3, until)

	out := buf.String()
	if !strings.Contains(out, EventBruteForceLockout) {
		t.Errorf("output missing event type: %s", out)
	}
	if !strings.Contains(out, `"level":"ERROR"`) {
		t.Errorf("lockout not raised at error level: %s", out)
	}
	if !strings.Contains(out, `"failures":3`) {
		t.Errorf("output missing failure count: %s", out)
	}
}

func TestAuditorAuthFailureHashesIdentity(t *testing.T) {
	a, buf := newTestAuditor()

	a.LogAuthFailure("admin@example.com", "1.2.3.4")

	out := buf.String()
	if strings.Contains(out, "admin@example.com") {
		t.Errorf("identity logged verbatim: %s", out)
	}
	if !strings.Contains(out, EventAuthFailure) {
		t.Errorf("output missing event type: %s", out)
	}
	if !strings.Contains(out, hashForLogging("admin@example.com")) {
		t.Errorf("output missing hashed identity: %s", out)
	}
}

func TestAuditorSignatureAndState(t *testing.T) {
	a, buf := newTestAuditor()

	a.LogSignatureFailure("1.2.3.4", errors.New("invalid signature"))
	a.LogStateRejected("1.2.3.4", ErrOriginNotAllowed)

	out := buf.String()
	if !strings.Contains(out, EventSignatureInvalid) {
		t.Errorf("output missing signature event: %s", out)
	}
	if !strings.Contains(out, EventStateRejected) {
		t.Errorf("output missing state event: %s", out)
	}
}

func TestAuditorNilSafe(t *testing.T) {
	var a *Auditor

	if a.Enabled() {
		t.Error("nil auditor reports enabled")
	}
	// Must not panic.
	a.LogEvent("anything")
	a.LogRateLimitExceeded("p", "k", 1, 1)
	a.LogWebhookAbuse("k", 1, 1)
	a.LogLockout("k", 1, time.Time{})
	a.LogAuthFailure("id", "k")
	a.LogSignatureFailure("k", nil)
	a.LogStateRejected("k", nil)
	a.LogThrottled("k")
}
