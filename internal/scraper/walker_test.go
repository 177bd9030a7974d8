package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/retry"
)

const walkStart = "https://jobs.test/jobsoegning/kontor"

func listingPage(ids ...string) []byte {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<div id="jobad-wrapper-%s"><h4><a href="/vis-job/%s">Job %s</a></h4></div>`, id, id, id)
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

// pagedFetcher serves pages keyed by the "page" query value ("" is page 1).
func pagedFetcher(pages map[string][]byte, calls *[]string) FetcherFunc {
	return FetcherFunc{Label: "fake", Fn: func(ctx context.Context, raw string) (Page, error) {
		*calls = append(*calls, raw)
		u, _ := url.Parse(raw)
		n := u.Query().Get("page")
		if n == "" {
			n = "1"
		}
		html, ok := pages[n]
		if !ok {
			html = listingPage()
		}
		return Page{URL: raw, FinalURL: raw, StatusCode: 200, HTML: html}, nil
	}}
}

type collectSink struct {
	pages []int
	cands []posting.Candidate
}

func (c *collectSink) sink(_ context.Context, page int, cands []posting.Candidate) {
	c.pages = append(c.pages, page)
	c.cands = append(c.cands, cands...)
}

func testWalkerConfig() WalkerConfig {
	return WalkerConfig{
		StartURL:    walkStart,
		PathPrefix:  "/jobsoegning",
		MaxPages:    50,
		EmptyStreak: 2,
		IdleStreak:  50,
		Retry:       retry.Backoff{Attempts: 2},
	}
}

func TestWalker_StopsAfterEmptyStreak(t *testing.T) {
	var calls []string
	f := pagedFetcher(map[string][]byte{
		"1": listingPage("a1", "a2"),
		"2": listingPage("b1", "b2", "a1"),
		"3": listingPage("c1"),
	}, &calls)

	var got collectSink
	w := NewWalker(testWalkerConfig(), f, nil, PageParam{Param: "page"}, nil)
	res, err := w.Walk(context.Background(), got.sink)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.StopReason != StopEmptyStreak || res.Pages != 5 {
		t.Fatalf("expected stop after page 5 on empty streak, got %+v", res)
	}
	if len(calls) != 5 {
		t.Fatalf("expected 5 fetches, got %d", len(calls))
	}
	if res.Extracted != 6 || res.Unique != 5 {
		t.Fatalf("expected 6 extracted and 5 unique, got %+v", res)
	}

	ids := make([]string, 0, len(got.cands))
	for _, c := range got.cands {
		ids = append(ids, c.NaturalID)
	}
	if strings.Join(ids, ",") != "a1,a2,b1,b2,c1" {
		t.Fatalf("unexpected sink ids %v", ids)
	}
	if fmt.Sprint(got.pages) != "[1 2 3]" {
		t.Fatalf("unexpected sink pages %v", got.pages)
	}
}

func TestWalker_ForwardsLaterSightingsThatAddFields(t *testing.T) {
	var calls []string
	withCompany := []byte(`<html><body>
<div id="jobad-wrapper-a1"><h4><a href="/vis-job/a1">Job a1</a></h4><div class="company">Acme A/S</div></div>
<div id="jobad-wrapper-b1"><h4><a href="/vis-job/b1">Job b1</a></h4></div>
</body></html>`)
	f := pagedFetcher(map[string][]byte{
		"1": listingPage("a1", "a2"),
		"2": withCompany,
		"3": withCompany,
	}, &calls)
	cfg := testWalkerConfig()
	cfg.IdleStreak = 2
	cfg.LowYieldThreshold = 1

	var got collectSink
	res, err := NewWalker(cfg, f, nil, PageParam{Param: "page"}, nil).Walk(context.Background(), got.sink)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Unique != 3 || res.Enriched != 1 {
		t.Fatalf("expected 3 unique and 1 enriched, got %+v", res)
	}
	if fmt.Sprint(got.pages) != "[1 2]" {
		t.Fatalf("unchanged repeat must not reach the sink, pages %v", got.pages)
	}

	var a1 []posting.Candidate
	for _, c := range got.cands {
		if c.NaturalID == "a1" {
			a1 = append(a1, c)
		}
	}
	if len(a1) != 2 || a1[0].Company != "" || a1[1].Company != "Acme A/S" || a1[1].Title != "Job a1" {
		t.Fatalf("unexpected a1 sightings %+v", a1)
	}
	// Page 3 repeats page 2 exactly, so it yields nothing new and counts as idle.
	if res.StopReason != StopIdleStreak {
		t.Fatalf("expected idle stop, got %+v", res)
	}
}

func TestWalker_MaxPages(t *testing.T) {
	var calls []string
	pages := map[string][]byte{}
	for i := 1; i <= 10; i++ {
		pages[fmt.Sprint(i)] = listingPage(fmt.Sprintf("p%d", i))
	}
	cfg := testWalkerConfig()
	cfg.MaxPages = 3

	res, err := NewWalker(cfg, pagedFetcher(pages, &calls), nil, nil, nil).Walk(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.StopReason != StopMaxPages || res.Pages != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWalker_IdleStreakOnRepeatedContent(t *testing.T) {
	var calls []string
	same := listingPage("x1", "x2")
	pages := map[string][]byte{"1": same, "2": same, "3": same, "4": same}
	cfg := testWalkerConfig()
	cfg.IdleStreak = 2
	cfg.LowYieldThreshold = 1

	res, err := NewWalker(cfg, pagedFetcher(pages, &calls), nil, nil, nil).Walk(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.StopReason != StopIdleStreak || res.Pages != 3 || res.Unique != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWalker_PathDriftIsFatal(t *testing.T) {
	f := FetcherFunc{Label: "fake", Fn: func(ctx context.Context, raw string) (Page, error) {
		if strings.Contains(raw, "page=2") {
			return Page{URL: raw, FinalURL: "https://jobs.test/login", HTML: listingPage("z1")}, nil
		}
		return Page{URL: raw, FinalURL: raw, HTML: listingPage("a1")}, nil
	}}

	var got collectSink
	res, err := NewWalker(testWalkerConfig(), f, nil, nil, nil).Walk(context.Background(), got.sink)
	if !errors.Is(err, ErrPathDrift) {
		t.Fatalf("expected ErrPathDrift, got %v", err)
	}
	if res.StopReason != StopPathDrift || res.Pages != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(got.cands) != 1 || got.cands[0].NaturalID != "a1" {
		t.Fatalf("drifted page must not reach the sink: %+v", got.cands)
	}
}

func TestWalker_CycleGuard(t *testing.T) {
	html := []byte(`<div id="jobad-wrapper-a1"><h4>A</h4></div>
	<div class="pagination"><a href="/jobsoegning/kontor?page=2">Næste</a></div>`)
	back := []byte(`<div id="jobad-wrapper-b1"><h4>B</h4></div>
	<div class="pagination"><a href="/jobsoegning/kontor">Næste</a></div>`)

	f := FetcherFunc{Label: "fake", Fn: func(ctx context.Context, raw string) (Page, error) {
		if strings.Contains(raw, "page=2") {
			return Page{URL: raw, FinalURL: raw, HTML: back}, nil
		}
		return Page{URL: raw, FinalURL: raw, HTML: html}, nil
	}}

	res, err := NewWalker(testWalkerConfig(), f, nil, DefaultNextLink(), nil).Walk(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.StopReason != StopCycle || res.Pages != 2 || res.Unique != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWalker_RetryExhaustionCountsAsEmpty(t *testing.T) {
	attempts := map[string]int{}
	f := FetcherFunc{Label: "fake", Fn: func(ctx context.Context, raw string) (Page, error) {
		attempts[raw]++
		if strings.Contains(raw, "page=2") {
			return Page{}, ErrBadStatus
		}
		if strings.Contains(raw, "page=") {
			return Page{URL: raw, FinalURL: raw, HTML: listingPage()}, nil
		}
		return Page{URL: raw, FinalURL: raw, HTML: listingPage("a1")}, nil
	}}

	res, err := NewWalker(testWalkerConfig(), f, nil, nil, nil).Walk(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.FailedPages != 1 || res.StopReason != StopEmptyStreak || res.Pages != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if attempts[walkStart+"?page=2"] != 2 {
		t.Fatalf("expected 2 attempts on failing page, got %v", attempts)
	}
}

func TestWalker_NoContinuation(t *testing.T) {
	f := FetcherFunc{Label: "fake", Fn: func(ctx context.Context, raw string) (Page, error) {
		return Page{URL: raw, FinalURL: raw, HTML: listingPage("a1")}, nil
	}}
	res, err := NewWalker(testWalkerConfig(), f, nil, DefaultNextLink(), nil).Walk(context.Background(), nil)
	if err != nil || res.StopReason != StopNoContinuation || res.Pages != 1 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}

func TestWalker_CanceledBeforeNextPage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := FetcherFunc{Label: "fake", Fn: func(ctx context.Context, raw string) (Page, error) {
		return Page{URL: raw, FinalURL: raw, HTML: listingPage("a1")}, nil
	}}
	sink := func(ctx context.Context, page int, cands []posting.Candidate) { cancel() }

	res, err := NewWalker(testWalkerConfig(), f, nil, nil, nil).WithClock(func() time.Time {
		return time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	}).Walk(ctx, sink)
	if !errors.Is(err, context.Canceled) || res.StopReason != StopCanceled || res.Pages != 1 {
		t.Fatalf("unexpected result %+v err=%v", res, err)
	}
}
