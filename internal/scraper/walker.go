package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/pkg/retry"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	StopMaxPages       = "max_pages"
	StopEmptyStreak    = "empty_streak"
	StopIdleStreak     = "idle_streak"
	StopCycle          = "cycle"
	StopNoContinuation = "no_continuation"
	StopPathDrift      = "path_drift"
	StopCanceled       = "canceled"
)

type WalkerConfig struct {
	StartURL   string
	PathPrefix string

	MaxPages          int
	EmptyStreak       int
	IdleStreak        int
	LowYieldThreshold int

	Retry     retry.Backoff
	PageDelay time.Duration
}

// PageSink receives each page's candidates as soon as the page is parsed: ids
// first seen on this page, then earlier ids whose merged sighting gained fields.
type PageSink func(ctx context.Context, page int, cands []posting.Candidate)

type WalkResult struct {
	Pages       int
	Extracted   int
	Unique      int
	Enriched    int
	FailedPages int
	StopReason  string
	LastURL     string
}

// Walker visits listing pages one at a time until a stop condition holds.
type Walker struct {
	cfg       WalkerConfig
	fetcher   Fetcher
	extractor *Extractor
	next      Continuation
	limiter   *rate.Limiter
	now       func() time.Time
	log       *zap.Logger
}

func NewWalker(cfg WalkerConfig, fetcher Fetcher, extractor *Extractor, next Continuation, log *zap.Logger) *Walker {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1000
	}
	if cfg.EmptyStreak <= 0 {
		cfg.EmptyStreak = 2
	}
	if cfg.IdleStreak <= 0 {
		cfg.IdleStreak = 8
	}
	if cfg.LowYieldThreshold < 0 {
		cfg.LowYieldThreshold = 0
	}
	if extractor == nil {
		extractor = NewExtractor(DefaultSelectors())
	}
	if next == nil {
		next = PageParam{Param: "page"}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.PageDelay > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.PageDelay), 1)
	}
	return &Walker{
		cfg:       cfg,
		fetcher:   fetcher,
		extractor: extractor,
		next:      next,
		limiter:   lim,
		now:       time.Now,
		log:       logger.OrNop(log).Named("walker"),
	}
}

// WithClock overrides the reference time used for relative dates.
func (w *Walker) WithClock(now func() time.Time) *Walker {
	if now != nil {
		w.now = now
	}
	return w
}

// Walk runs the crawl. It returns ErrPathDrift if a page redirected outside
// the listing path, and ctx.Err() on cancellation; every other failure is
// absorbed into the stop conditions.
func (w *Walker) Walk(ctx context.Context, sink PageSink) (WalkResult, error) {
	var res WalkResult
	if w.fetcher == nil {
		return res, ErrNilFetcher
	}

	visited := map[string]struct{}{}
	sent := map[string]posting.Candidate{}
	emptyStreak, idleStreak := 0, 0
	current := strings.TrimSpace(w.cfg.StartURL)

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			res.StopReason = StopCanceled
			return res, err
		}

		key := canonicalURL(current)
		if _, ok := visited[key]; ok {
			res.StopReason = StopCycle
			break
		}
		visited[key] = struct{}{}

		if err := w.limiter.Wait(ctx); err != nil {
			res.StopReason = StopCanceled
			return res, ctx.Err()
		}

		res.Pages++
		res.LastURL = current
		page, err := w.fetchPage(ctx, current)
		var cands []posting.Candidate
		switch {
		case errors.Is(err, ErrPathDrift):
			res.StopReason = StopPathDrift
			w.log.Error("path drift", zap.Int("page", pageNum), zap.String("url", current), zap.Error(err))
			return res, err
		case err != nil && ctx.Err() != nil:
			res.StopReason = StopCanceled
			return res, ctx.Err()
		case err != nil:
			res.FailedPages++
			w.log.Warn("page fetch failed, counting as empty", zap.Int("page", pageNum), zap.String("url", current), zap.Error(err))
		default:
			if page.FinalURL != "" && canonicalURL(page.FinalURL) != key {
				if _, ok := visited[canonicalURL(page.FinalURL)]; ok {
					res.StopReason = StopCycle
					w.log.Info("redirected to a visited page", zap.Int("page", pageNum), zap.String("final_url", page.FinalURL))
					return res, nil
				}
				visited[canonicalURL(page.FinalURL)] = struct{}{}
				res.LastURL = page.FinalURL
			}
			cands, err = w.extractor.Extract(page.HTML, res.LastURL, w.now())
			if err != nil {
				w.log.Warn("page parse failed, counting as empty", zap.Int("page", pageNum), zap.Error(err))
				cands = nil
			}
		}

		var fresh, enriched []posting.Candidate
		for _, c := range posting.MergeByID(cands) {
			prev, ok := sent[c.NaturalID]
			if !ok {
				sent[c.NaturalID] = c
				fresh = append(fresh, c)
				continue
			}
			if m := prev.Merge(c); m != prev {
				sent[c.NaturalID] = m
				enriched = append(enriched, m)
			}
		}

		res.Extracted += len(cands)
		res.Unique += len(fresh)
		res.Enriched += len(enriched)
		if batch := append(fresh, enriched...); len(batch) > 0 && sink != nil {
			sink(ctx, pageNum, batch)
		}

		if len(cands) == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}
		if len(fresh) < w.cfg.LowYieldThreshold {
			idleStreak++
		} else {
			idleStreak = 0
		}

		w.log.Debug("page done",
			zap.Int("page", pageNum),
			zap.Int("extracted", len(cands)),
			zap.Int("unique", len(fresh)),
			zap.Int("enriched", len(enriched)),
			zap.Int("empty_streak", emptyStreak),
			zap.Int("idle_streak", idleStreak),
		)

		switch {
		case pageNum >= w.cfg.MaxPages:
			res.StopReason = StopMaxPages
		case emptyStreak >= w.cfg.EmptyStreak:
			res.StopReason = StopEmptyStreak
		case idleStreak >= w.cfg.IdleStreak:
			res.StopReason = StopIdleStreak
		}
		if res.StopReason != "" {
			break
		}

		nextURL, ok := w.next.Next(res.LastURL, page)
		if !ok {
			res.StopReason = StopNoContinuation
			break
		}
		current = nextURL
	}

	return res, nil
}

func (w *Walker) fetchPage(ctx context.Context, pageURL string) (Page, error) {
	var page Page
	err := w.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		p, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if attempt > 0 {
				w.log.Debug("page fetch retry failed", zap.Int("attempt", attempt+1), zap.Error(err))
			}
			return err
		}
		final := p.FinalURL
		if final == "" {
			final = pageURL
		}
		if !w.onListingPath(final) {
			return retry.Permanent(fmt.Errorf("%w: %s", ErrPathDrift, final))
		}
		page = p
		return nil
	})
	return page, err
}

func (w *Walker) onListingPath(raw string) bool {
	prefix := strings.TrimSpace(w.cfg.PathPrefix)
	if prefix == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, prefix)
}
