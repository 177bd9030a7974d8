package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedis_DisabledBypassesCalls(t *testing.T) {
	r := Disabled()
	ctx := context.Background()

	if r.Available() {
		t.Fatalf("disabled cache must not report available")
	}
	if err := r.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	var out map[string]int
	found, err := r.GetJSON(ctx, "k", &out)
	if found || err != nil {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if err := r.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok, err := r.SetIfNotExists(ctx, "k", "v", time.Minute); ok || err != nil {
		t.Fatalf("expected false without error, got %v %v", ok, err)
	}

	release, acquired, err := r.AcquireLock(ctx, "lock", time.Minute)
	if !acquired || err != nil {
		t.Fatalf("lock must be granted without redis, got %v %v", acquired, err)
	}
	release()
}

func TestRedis_NilReceiver(t *testing.T) {
	var r *Redis
	if r.Available() {
		t.Fatalf("nil cache must not report available")
	}
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}
