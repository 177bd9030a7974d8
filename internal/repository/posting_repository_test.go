package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobpulse/internal/database/sqlite"
	"jobpulse/internal/domain/posting"
	"jobpulse/internal/repository"
)

func openStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSQLPostingRepository_InsertTouchBackfillOnly(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLPostingRepository(openStore(t))

	t0 := time.Date(2025, 8, 10, 9, 0, 0, 0, time.UTC)
	created, err := repo.Insert(ctx, posting.Candidate{NaturalID: "r1", Title: "Engineer", Company: ""}, t0)
	if err != nil || !created {
		t.Fatalf("insert: created=%v err=%v", created, err)
	}

	again, err := repo.Insert(ctx, posting.Candidate{NaturalID: "r1", Title: "Other"}, t0)
	if err != nil || again {
		t.Fatalf("second insert must be a no-op: created=%v err=%v", again, err)
	}

	t1 := t0.Add(time.Hour)
	if _, err := repo.Touch(ctx, posting.Candidate{NaturalID: "r1", Title: "Changed", Company: "Acme", PublicationDate: day(2025, 8, 9)}, t1); err != nil {
		t.Fatalf("touch: %v", err)
	}

	p, err := repo.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Title != "Engineer" {
		t.Fatalf("title must not be overwritten, got %q", p.Title)
	}
	if p.Company != "Acme" {
		t.Fatalf("empty company must be filled, got %q", p.Company)
	}
	if !p.LastSeen.Equal(t1) {
		t.Fatalf("expected last_seen %s, got %s", t1, p.LastSeen)
	}
	if p.PublicationDate == nil || p.PublicationDate.Day() != 9 {
		t.Fatalf("expected publication date filled, got %v", p.PublicationDate)
	}

	// An older sighting never moves last_seen backwards.
	if _, err := repo.Touch(ctx, posting.Candidate{NaturalID: "r1"}, t0); err != nil {
		t.Fatalf("touch: %v", err)
	}
	p, _ = repo.Get(ctx, "r1")
	if !p.LastSeen.Equal(t1) {
		t.Fatalf("last_seen regressed to %s", p.LastSeen)
	}
}

func TestSQLPostingRepository_ExistingIDs(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLPostingRepository(openStore(t))
	now := time.Now()
	for _, id := range []string{"a", "b"} {
		if _, err := repo.Insert(ctx, posting.Candidate{NaturalID: id}, now); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := repo.ExistingIDs(ctx, []string{"a", "c", "b"})
	if err != nil {
		t.Fatalf("existing: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 existing ids, got %v", got)
	}
	if _, ok := got["c"]; ok {
		t.Fatalf("c must not exist")
	}
}

func TestSQLPostingRepository_RetireSweepReactivate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLPostingRepository(openStore(t))
	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)

	mustInsert := func(id string, seen time.Time) {
		t.Helper()
		if _, err := repo.Insert(ctx, posting.Candidate{NaturalID: id}, seen); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	mustInsert("fresh", now.Add(-time.Hour))
	mustInsert("stale", now.Add(-72*time.Hour))

	cutoff := now.Add(-48 * time.Hour)
	n, err := repo.CountStale(ctx, cutoff)
	if err != nil || n != 1 {
		t.Fatalf("count stale: n=%d err=%v", n, err)
	}
	retired, err := repo.RetireStale(ctx, cutoff, now)
	if err != nil || retired != 1 {
		t.Fatalf("retire stale: n=%d err=%v", retired, err)
	}
	retired, err = repo.RetireStale(ctx, cutoff, now)
	if err != nil || retired != 0 {
		t.Fatalf("second sweep must be a no-op: n=%d err=%v", retired, err)
	}

	p, _ := repo.Get(ctx, "stale")
	if p.Live() {
		t.Fatalf("stale posting must be retired")
	}

	// Retired by the sweep, then seen again without the upsert clearing it.
	if _, err := repo.Retire(ctx, "fresh", now.Add(-30*time.Minute)); err != nil {
		t.Fatalf("retire: %v", err)
	}
	cands, err := repo.ListReactivationCandidates(ctx, 0)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %d", len(cands))
	}

	if _, err := repo.Touch(ctx, posting.Candidate{NaturalID: "stale"}, now.Add(time.Minute)); err != nil {
		t.Fatalf("touch: %v", err)
	}
	p, _ = repo.Get(ctx, "stale")
	if !p.Live() {
		t.Fatalf("touch must clear retired_at")
	}

	ok, err := repo.Reactivate(ctx, "fresh", now)
	if err != nil || ok {
		t.Fatalf("fresh was retired after its last sighting and must stay retired: ok=%v err=%v", ok, err)
	}
}

func TestSQLPostingRepository_ListLiveOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLPostingRepository(openStore(t))
	now := time.Now()

	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "new", PublicationDate: day(2025, 8, 10)}, now)
	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "old", PublicationDate: day(2025, 6, 1)}, now)
	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "undated"}, now)
	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "gone", PublicationDate: day(2025, 1, 1)}, now)
	_, _ = repo.Retire(ctx, "gone", now)

	live, err := repo.ListLive(ctx, 0)
	if err != nil {
		t.Fatalf("list live: %v", err)
	}
	want := []string{"undated", "old", "new"}
	if len(live) != len(want) {
		t.Fatalf("expected %d live, got %d", len(want), len(live))
	}
	for i, id := range want {
		if live[i].NaturalID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, live[i].NaturalID)
		}
	}
}

func TestSQLPostingRepository_MissingDetailsKeyset(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLPostingRepository(openStore(t))
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"p1", "p2", "p3"} {
		if _, err := repo.Insert(ctx, posting.Candidate{NaturalID: id}, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := repo.Insert(ctx, posting.Candidate{NaturalID: "full", Company: "A", CompanyURL: "https://a", Description: "d"}, base); err != nil {
		t.Fatalf("insert: %v", err)
	}

	page1, err := repo.ListMissingDetails(ctx, nil, 2)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1) != 2 || page1[0].NaturalID != "p3" || page1[1].NaturalID != "p2" {
		t.Fatalf("unexpected page1: %+v", page1)
	}
	last := page1[len(page1)-1]
	page2, err := repo.ListMissingDetails(ctx, &repository.Cursor{CreatedAt: last.CreatedAt, NaturalID: last.NaturalID}, 2)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2) != 1 || page2[0].NaturalID != "p1" {
		t.Fatalf("unexpected page2: %+v", page2)
	}

	changed, err := repo.Backfill(ctx, "p1", posting.Details{Company: "Acme", Title: ""}, base)
	if err != nil || !changed {
		t.Fatalf("backfill: changed=%v err=%v", changed, err)
	}
	changed, err = repo.Backfill(ctx, "p1", posting.Details{Company: "Other"}, base)
	if err != nil || changed {
		t.Fatalf("backfill must not overwrite: changed=%v err=%v", changed, err)
	}
	p, _ := repo.Get(ctx, "p1")
	if p.Company != "Acme" {
		t.Fatalf("expected Acme, got %q", p.Company)
	}
}

func TestSQLPostingRepository_GetMissing(t *testing.T) {
	repo := repository.NewSQLPostingRepository(openStore(t))
	_, err := repo.Get(context.Background(), "nope")
	if !errors.Is(err, repository.ErrPostingNotFound) {
		t.Fatalf("expected ErrPostingNotFound, got %v", err)
	}
}

func TestSQLPostingRepository_Stats(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewSQLPostingRepository(openStore(t))
	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
	dayStart := time.Date(2025, 8, 10, 0, 0, 0, 0, time.UTC)

	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "today"}, now)
	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "stale"}, now.Add(-72*time.Hour))
	_, _ = repo.Insert(ctx, posting.Candidate{NaturalID: "gone"}, now.Add(-24*time.Hour))
	_, _ = repo.Retire(ctx, "gone", now.Add(-30*time.Hour))

	st, err := repo.Stats(ctx, dayStart, now.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 3 || st.Live != 2 || st.Retired != 1 {
		t.Fatalf("unexpected totals: %+v", st)
	}
	if st.SeenToday != 1 || st.Stale != 1 || st.ReactivationCandidates != 1 {
		t.Fatalf("unexpected derived counts: %+v", st)
	}
}

func TestSQLRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	runs := repository.NewSQLRunRepository(openStore(t))

	run, err := runs.Create(ctx, posting.RunCrawl)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := runs.Log(ctx, run.ID, "error", "upsert failed natural_id=r1"); err != nil {
		t.Fatalf("log: %v", err)
	}
	counts := posting.RunCounts{Pages: 5, Seen: 30, Inserted: 20, Refreshed: 10}
	if err := runs.Finish(ctx, run.ID, posting.RunFinished, "empty_streak", counts); err != nil {
		t.Fatalf("finish: %v", err)
	}

	latest, err := runs.Latest(ctx, posting.RunCrawl)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != run.ID || latest.Status != posting.RunFinished || latest.Counts != counts || latest.FinishedAt == nil {
		t.Fatalf("unexpected run: %+v", latest)
	}
	if _, err := runs.Latest(ctx, posting.RunSweep); !errors.Is(err, repository.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}
