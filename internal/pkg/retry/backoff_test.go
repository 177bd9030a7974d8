package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff_RetriesUntilSuccess(t *testing.T) {
	b := Backoff{Attempts: 3, BaseDelay: time.Millisecond}
	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestBackoff_ReturnsLastError(t *testing.T) {
	b := Backoff{Attempts: 2, BaseDelay: time.Millisecond}
	want := errors.New("down")
	err := b.Do(context.Background(), func(ctx context.Context, attempt int) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestBackoff_PermanentStops(t *testing.T) {
	b := Backoff{Attempts: 5, BaseDelay: time.Millisecond}
	want := errors.New("fatal")
	calls := 0
	err := b.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return Permanent(want)
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if !errors.Is(err, want) || IsPermanent(err) {
		t.Fatalf("expected unwrapped %v, got %v", want, err)
	}
}

func TestBackoff_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Default().Do(ctx, func(ctx context.Context, attempt int) error {
		t.Fatalf("fn must not run on a canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff_DelayCapped(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	if d := b.Delay(0); d != time.Second {
		t.Fatalf("expected 1s, got %s", d)
	}
	if d := b.Delay(1); d != 2*time.Second {
		t.Fatalf("expected 2s, got %s", d)
	}
	if d := b.Delay(5); d != 3*time.Second {
		t.Fatalf("expected cap 3s, got %s", d)
	}
}
