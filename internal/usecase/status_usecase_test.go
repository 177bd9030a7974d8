package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/repository/repotest"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestStatus_GetComputesAndCaches(t *testing.T) {
	store := repotest.NewPostingStore()
	seedSeen(store, "today", t0.Add(-time.Hour))
	seedSeen(store, "stale", t0.Add(-72*time.Hour))
	retired := t0.Add(-5 * time.Hour)
	store.Put(posting.Posting{NaturalID: "gone", LastSeen: t0.Add(-2 * time.Hour), RetiredAt: &retired, CreatedAt: t0.Add(-100 * time.Hour)})

	runs := repotest.NewRunStore()
	run, _ := runs.Create(context.Background(), posting.RunCrawl)
	_ = runs.Finish(context.Background(), run.ID, posting.RunFinished, "empty_streak", posting.RunCounts{Pages: 3})

	cache := newMemCache()
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	uc := NewStatusUsecase(store, runs, up, down, cache, 48*time.Hour, nil).WithClock(fixedClock(t0))
	st, err := uc.Get(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.Postings.Total != 3 || st.Postings.Live != 2 || st.Postings.Retired != 1 || st.Postings.Stale != 1 {
		t.Fatalf("unexpected stats %+v", st.Postings)
	}
	if st.Postings.SeenToday != 2 || st.Postings.ReactivationCandidates != 1 {
		t.Fatalf("unexpected stats %+v", st.Postings)
	}
	if !st.DatabaseHealthy || st.RedisHealthy {
		t.Fatalf("unexpected health db=%v redis=%v", st.DatabaseHealthy, st.RedisHealthy)
	}
	if r, ok := st.LatestRuns[posting.RunCrawl]; !ok || r.StopReason != "empty_streak" {
		t.Fatalf("expected latest crawl run, got %+v", st.LatestRuns)
	}
	if _, ok := st.LatestRuns[posting.RunValidate]; ok {
		t.Fatalf("no validate run exists")
	}
	if !cache.has(StatusCacheKey) {
		t.Fatalf("expected cached status")
	}

	seedSeen(store, "new", t0)
	cached, err := uc.Get(context.Background())
	if err != nil || cached.Postings.Total != 3 {
		t.Fatalf("expected cached snapshot, got %+v err=%v", cached.Postings, err)
	}

	uc.Invalidate(context.Background())
	fresh, err := uc.Get(context.Background())
	if err != nil || fresh.Postings.Total != 4 {
		t.Fatalf("expected fresh snapshot, got %+v err=%v", fresh.Postings, err)
	}
}
