package scraper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_SingleWorkerKeepsOrder(t *testing.T) {
	pool := NewWorkerPool[int](1, 2)
	results := pool.Run(context.Background())

	go func() {
		for i := 0; i < 10; i++ {
			n := i
			pool.Submit(func(ctx context.Context) (int, error) { return n, nil })
		}
		pool.Close()
	}()

	want := 0
	for res := range results {
		if res.Err != nil {
			t.Fatalf("unexpected err: %v", res.Err)
		}
		if res.Value != want {
			t.Fatalf("expected %d, got %d", want, res.Value)
		}
		want++
	}
	if want != 10 {
		t.Fatalf("expected 10 results, got %d", want)
	}
}

func TestWorkerPool_CollectsErrors(t *testing.T) {
	pool := NewWorkerPool[struct{}](3, 6)
	results := pool.Run(context.Background())

	var ran atomic.Int32
	boom := errors.New("boom")
	for i := 0; i < 6; i++ {
		fail := i%2 == 0
		pool.Submit(func(ctx context.Context) (struct{}, error) {
			ran.Add(1)
			if fail {
				return struct{}{}, boom
			}
			return struct{}{}, nil
		})
	}
	pool.Close()

	errs := 0
	for res := range results {
		if errors.Is(res.Err, boom) {
			errs++
		}
	}
	if ran.Load() != 6 || errs != 3 {
		t.Fatalf("expected 6 runs and 3 errors, got %d and %d", ran.Load(), errs)
	}
}

func TestWorkerPool_CloseIsIdempotent(t *testing.T) {
	pool := NewWorkerPool[int](1, 0)
	results := pool.Run(context.Background())
	pool.Close()
	pool.Close()
	for range results {
	}
}

func TestWorkerPool_RateLimitSpacesTaskStarts(t *testing.T) {
	pool := NewWorkerPool[time.Time](3, 3)
	pool.SetRateLimit(20)
	results := pool.Run(context.Background())

	start := time.Now()
	for i := 0; i < 3; i++ {
		pool.Submit(func(ctx context.Context) (time.Time, error) { return time.Now(), nil })
	}
	pool.Close()

	var last time.Time
	for res := range results {
		if res.Value.After(last) {
			last = res.Value
		}
	}
	// One token up front, then one every 50ms.
	if elapsed := last.Sub(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected rate-limited starts, last task started after %s", elapsed)
	}
}

func TestWorkerPool_ZeroRateRemovesLimit(t *testing.T) {
	pool := NewWorkerPool[int](2, 4)
	pool.SetRateLimit(1)
	pool.SetRateLimit(0)
	results := pool.Run(context.Background())

	start := time.Now()
	for i := 0; i < 4; i++ {
		pool.Submit(func(ctx context.Context) (int, error) { return 0, nil })
	}
	pool.Close()
	for range results {
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected unlimited pool, took %s", elapsed)
	}
}
