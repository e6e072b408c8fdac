package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testRedis connects to a local Redis instance, skipping the test when none
// is reachable. Each test gets its own key prefix for isolation.
func testRedis(t *testing.T) *Redis {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: no Redis at %s: %v", addr, err)
	}

	prefix := fmt.Sprintf("admissiontest:%s:", t.Name())
	store := NewRedis(client, WithKeyPrefix(prefix))

	t.Cleanup(func() {
		cleanupKeys(t, client, prefix)
		client.Close()
	})
	cleanupKeys(t, client, prefix)
	return store
}

func cleanupKeys(t *testing.T, client *redis.Client, prefix string) {
	t.Helper()
	ctx := context.Background()

	iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		client.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		t.Logf("cleanup scan failed: %v", err)
	}
}

func TestRedis_TakeWindow(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, res, err := r.TakeWindow(ctx, "k", 3, time.Minute)
		if err != nil {
			t.Fatalf("TakeWindow() error: %v", err)
		}
		if !allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if res.Used != i+1 {
			t.Errorf("used = %d, want %d", res.Used, i+1)
		}
	}

	allowed, res, err := r.TakeWindow(ctx, "k", 3, time.Minute)
	if err != nil {
		t.Fatalf("TakeWindow() error: %v", err)
	}
	if allowed {
		t.Error("fourth request should be denied")
	}
	if res.Used != 3 {
		t.Errorf("used = %d, want 3", res.Used)
	}
	if res.Oldest.IsZero() {
		t.Error("oldest should be set")
	}
}

func TestRedis_WindowStatusAndReset(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()

	r.TakeWindow(ctx, "k", 10, time.Minute)
	r.TakeWindow(ctx, "k", 10, time.Minute)

	res, err := r.WindowStatus(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("WindowStatus() error: %v", err)
	}
	if res.Used != 2 {
		t.Errorf("used = %d, want 2", res.Used)
	}

	if err := r.ResetWindow(ctx, "k"); err != nil {
		t.Fatalf("ResetWindow() error: %v", err)
	}
	res, _ = r.WindowStatus(ctx, "k", time.Minute)
	if res.Used != 0 {
		t.Errorf("used after reset = %d, want 0", res.Used)
	}
}

func TestRedis_TakeTokens(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := r.TakeTokens(ctx, "k", 1, 2, 1)
		if err != nil {
			t.Fatalf("TakeTokens() error: %v", err)
		}
		if !allowed {
			t.Errorf("take %d should be allowed", i+1)
		}
	}

	allowed, remaining, err := r.TakeTokens(ctx, "k", 1, 2, 1)
	if err != nil {
		t.Fatalf("TakeTokens() error: %v", err)
	}
	if allowed {
		t.Error("empty bucket should deny")
	}
	if remaining >= 1 {
		t.Errorf("remaining = %v, want < 1", remaining)
	}

	tokens, err := r.PeekTokens(ctx, "k", 1, 2)
	if err != nil {
		t.Fatalf("PeekTokens() error: %v", err)
	}
	if tokens >= 1 {
		t.Errorf("peek = %v, want < 1", tokens)
	}
}

func TestRedis_Lockout(t *testing.T) {
	r := testRedis(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		state, err := r.AddFailure(ctx, "k", 3, time.Minute, time.Hour)
		if err != nil {
			t.Fatalf("AddFailure() error: %v", err)
		}
		if state.Failures != i {
			t.Errorf("failures = %d, want %d", state.Failures, i)
		}
		if locked := i >= 3; state.Locked != locked {
			t.Errorf("locked after %d failures = %v, want %v", i, state.Locked, locked)
		}
	}

	state, err := r.LockoutStatus(ctx, "k")
	if err != nil {
		t.Fatalf("LockoutStatus() error: %v", err)
	}
	if !state.Locked || state.LockedUntil.IsZero() {
		t.Errorf("status = %+v, want locked with deadline", state)
	}

	if err := r.ClearLockout(ctx, "k"); err != nil {
		t.Fatalf("ClearLockout() error: %v", err)
	}
	state, _ = r.LockoutStatus(ctx, "k")
	if state.Locked || state.Failures != 0 {
		t.Errorf("state after clear = %+v, want zero", state)
	}
}
