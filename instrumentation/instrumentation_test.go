package instrumentation

import (
	"context"
	"testing"
)

func TestNewDefaults(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if inst.Metrics() == nil {
		t.Error("Metrics() returned nil")
	}
	if inst.Meter("admission") == nil {
		t.Error("Meter() returned nil")
	}
	if inst.Tracer("admission") == nil {
		t.Error("Tracer() returned nil")
	}
	if inst.ShouldLogClientIPs() {
		t.Error("LogClientIPs should default to false")
	}
}

func TestNewEnabled(t *testing.T) {
	inst, err := New(Config{
		ServiceName:    "test-service",
		ServiceVersion: "0.1.0",
		Enabled:        true,
		LogClientIPs:   true,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !inst.ShouldLogClientIPs() {
		t.Error("ShouldLogClientIPs = false, want true")
	}
}

func TestRecordingDoesNotPanic(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	m := inst.Metrics()
	m.RecordAdmissionCheck(ctx, "standard", true)
	m.RecordRateLimitExceeded(ctx, "webhook", "sliding_window")
	m.RecordLockout(ctx)
	m.RecordThrottleDenied(ctx)
	m.RecordSignatureVerification(ctx, false)
	m.RecordStateVerification(ctx, true)
	m.RecordHTTPRequest(ctx, "POST", "/webhooks/facebook", 200, 1.5)
}

func TestShutdownIdempotent(t *testing.T) {
	inst, err := New(Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("first Shutdown failed: %v", err)
	}
	if err := inst.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown failed: %v", err)
	}
}
