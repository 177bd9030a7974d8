package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/retry"
	"jobpulse/internal/repository/repotest"
)

var t0 = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func noDelay() retry.Backoff {
	return retry.Backoff{Attempts: 2}
}

func TestUpsertBatch_InsertsAndIsIdempotent(t *testing.T) {
	store := repotest.NewPostingStore()
	uc := NewUpsertUsecase(store, noDelay(), nil).WithClock(fixedClock(t0))

	batch := []posting.Candidate{
		{NaturalID: "a", Title: "A"},
		{NaturalID: "b", Title: "B"},
		{NaturalID: "a", Company: "Acme"},
	}

	res, err := uc.UpsertBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Seen != 2 || res.Inserted != 2 || res.Refreshed != 0 || res.Failed != 0 {
		t.Fatalf("unexpected first result %+v", res)
	}
	if p, _ := store.Snapshot("a"); p.Company != "Acme" || p.Title != "A" {
		t.Fatalf("duplicates in a batch must merge, got %+v", p)
	}

	// An older sighting replayed later must not move last_seen back.
	uc.WithClock(fixedClock(t0.Add(-time.Hour)))
	res, err = uc.UpsertBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Inserted != 0 || res.Refreshed != 2 {
		t.Fatalf("unexpected second result %+v", res)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", store.Len())
	}
	if p, _ := store.Snapshot("a"); !p.LastSeen.Equal(t0) {
		t.Fatalf("last_seen regressed to %s", p.LastSeen)
	}
}

func TestUpsertBatch_ResightingClearsRetirementAndBackfillsOnly(t *testing.T) {
	store := repotest.NewPostingStore()
	retired := t0.Add(-48 * time.Hour)
	store.Put(posting.Posting{
		NaturalID: "r1",
		Title:     "Original title",
		LastSeen:  t0.Add(-72 * time.Hour),
		RetiredAt: &retired,
		CreatedAt: t0.Add(-72 * time.Hour),
	})

	uc := NewUpsertUsecase(store, noDelay(), nil).WithClock(fixedClock(t0))
	res, err := uc.UpsertBatch(context.Background(), []posting.Candidate{{
		NaturalID: "r1",
		Title:     "New title",
		Company:   "Fjord ApS",
		Location:  "Odense",
	}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Refreshed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	p, _ := store.Snapshot("r1")
	if !p.Live() || !p.LastSeen.Equal(t0) {
		t.Fatalf("expected live posting seen now, got %+v", p)
	}
	if p.Title != "Original title" || p.Company != "Fjord ApS" || p.Location != "Odense" {
		t.Fatalf("unexpected fields %+v", p)
	}
}

func TestUpsertBatch_RecordFailureDoesNotAbort(t *testing.T) {
	store := repotest.NewPostingStore()
	store.FailWrite = func(id string) error {
		if id == "b" {
			return repotest.ErrInjected
		}
		return nil
	}

	uc := NewUpsertUsecase(store, noDelay(), nil).WithClock(fixedClock(t0))
	res, err := uc.UpsertBatch(context.Background(), []posting.Candidate{{NaturalID: "a"}, {NaturalID: "b"}, {NaturalID: "c"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Inserted != 2 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Errors[0].NaturalID != "b" || !errors.Is(res.Errors[0], repotest.ErrInjected) {
		t.Fatalf("unexpected record error %+v", res.Errors[0])
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", store.Len())
	}
}

func TestUpsertBatch_ExistenceCheckRetried(t *testing.T) {
	store := repotest.NewPostingStore()
	store.FailExisting = func(call int) error {
		if call == 1 {
			return repotest.ErrInjected
		}
		return nil
	}

	uc := NewUpsertUsecase(store, noDelay(), nil).WithClock(fixedClock(t0))
	res, err := uc.UpsertBatch(context.Background(), []posting.Candidate{{NaturalID: "a"}})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if store.ExistingCalls != 2 || res.Inserted != 1 {
		t.Fatalf("expected retry then insert, calls=%d res=%+v", store.ExistingCalls, res)
	}
}

func TestUpsertBatch_ExistenceCheckExhausted(t *testing.T) {
	store := repotest.NewPostingStore()
	store.FailExisting = func(int) error { return repotest.ErrInjected }

	uc := NewUpsertUsecase(store, noDelay(), nil)
	res, err := uc.UpsertBatch(context.Background(), []posting.Candidate{{NaturalID: "a"}, {NaturalID: "b"}})
	if !errors.Is(err, repotest.ErrInjected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if res.Failed != 2 || store.Len() != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUpsertResult_Add(t *testing.T) {
	var total UpsertResult
	total.Add(UpsertResult{Seen: 2, Inserted: 1, Refreshed: 1})
	total.Add(UpsertResult{Seen: 1, Failed: 1, Errors: []RecordError{{NaturalID: "x", Op: "insert", Err: repotest.ErrInjected}}})
	if total.Seen != 3 || total.Inserted != 1 || total.Refreshed != 1 || total.Failed != 1 || len(total.Errors) != 1 {
		t.Fatalf("unexpected total %+v", total)
	}
}
