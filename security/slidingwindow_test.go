package security

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/eventgate/admission/store"
)

func newWindowFixture(t *testing.T) (*SlidingWindowLimiter, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	st := store.NewMemory(context.Background(),
		store.WithClock(clock.Now),
		store.WithSweepInterval(0))
	l := NewSlidingWindow(st, slog.Default(), WithWindowClock(clock.Now))
	return l, clock
}

func TestSlidingWindowScenario(t *testing.T) {
	ctx := context.Background()
	l, clock := newWindowFixture(t)
	l.Initialize("standard", 2, 1000*time.Millisecond)

	for i, want := range []bool{true, true, false} {
		if got := l.Check(ctx, "standard", "1.2.3.4"); got != want {
			t.Errorf("request %d: allowed = %v, want %v", i+1, got, want)
		}
	}

	// The first two requests fall out of the window; the key starts fresh.
	clock.Advance(1100 * time.Millisecond)

	allowed, status := l.Take(ctx, "standard", "1.2.3.4")
	if !allowed {
		t.Fatal("request after window expiry was denied")
	}
	if status.Used != 1 {
		t.Errorf("Used = %d, want 1 after expiry", status.Used)
	}
}

func TestSlidingWindowKeysIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newWindowFixture(t)
	l.Initialize("standard", 1, time.Minute)

	if !l.Check(ctx, "standard", "1.2.3.4") {
		t.Fatal("first key denied its first request")
	}
	if l.Check(ctx, "standard", "1.2.3.4") {
		t.Fatal("first key allowed over its limit")
	}
	if !l.Check(ctx, "standard", "5.6.7.8") {
		t.Error("second key was affected by the first key's usage")
	}
}

func TestSlidingWindowPoliciesIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newWindowFixture(t)
	l.Initialize("standard", 1, time.Minute)
	l.Initialize("webhook", 5, time.Minute)

	if !l.Check(ctx, "standard", "1.2.3.4") {
		t.Fatal("standard denied its first request")
	}
	if l.Check(ctx, "standard", "1.2.3.4") {
		t.Fatal("standard allowed over its limit")
	}
	if !l.Check(ctx, "webhook", "1.2.3.4") {
		t.Error("webhook usage coupled to standard usage for the same key")
	}
}

func TestSlidingWindowUnknownPolicyAllows(t *testing.T) {
	ctx := context.Background()
	l, _ := newWindowFixture(t)

	for i := 0; i < 100; i++ {
		if !l.Check(ctx, "nonexistent", "1.2.3.4") {
			t.Fatal("unregistered policy denied a request")
		}
	}
}

func TestSlidingWindowStatus(t *testing.T) {
	ctx := context.Background()
	l, clock := newWindowFixture(t)
	l.Initialize("standard", 3, time.Minute)

	start := clock.Now()
	l.Check(ctx, "standard", "1.2.3.4")
	l.Check(ctx, "standard", "1.2.3.4")

	status := l.Status(ctx, "standard", "1.2.3.4")
	if status.Used != 2 {
		t.Errorf("Used = %d, want 2", status.Used)
	}
	if status.Limit != 3 {
		t.Errorf("Limit = %d, want 3", status.Limit)
	}
	if status.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1", status.Remaining)
	}
	if want := start.Add(time.Minute); !status.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", status.ResetAt, want)
	}

	// Status must not consume.
	if l.Status(ctx, "standard", "1.2.3.4").Used != 2 {
		t.Error("Status consumed a request")
	}
}

func TestSlidingWindowStatusUnseenKey(t *testing.T) {
	l, clock := newWindowFixture(t)
	l.Initialize("standard", 3, time.Minute)

	status := l.Status(context.Background(), "standard", "9.9.9.9")
	if status.Used != 0 || status.Remaining != 3 {
		t.Errorf("unseen key status = %+v, want Used 0 Remaining 3", status)
	}
	if want := clock.Now().Add(time.Minute); !status.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", status.ResetAt, want)
	}
}

func TestSlidingWindowReset(t *testing.T) {
	ctx := context.Background()
	l, _ := newWindowFixture(t)
	l.Initialize("standard", 1, time.Minute)

	l.Check(ctx, "standard", "1.2.3.4")
	if l.Check(ctx, "standard", "1.2.3.4") {
		t.Fatal("allowed over limit before reset")
	}

	l.Reset(ctx, "standard", "1.2.3.4")
	if !l.Check(ctx, "standard", "1.2.3.4") {
		t.Error("denied after reset")
	}
}

func TestSlidingWindowReinitialize(t *testing.T) {
	ctx := context.Background()
	l, _ := newWindowFixture(t)
	l.Initialize("standard", 1, time.Minute)

	l.Check(ctx, "standard", "1.2.3.4")
	if l.Check(ctx, "standard", "1.2.3.4") {
		t.Fatal("allowed over the original limit")
	}

	// Raising the limit applies to existing keys on the next check.
	l.Initialize("standard", 5, time.Minute)
	if !l.Check(ctx, "standard", "1.2.3.4") {
		t.Error("denied under the raised limit")
	}
}
