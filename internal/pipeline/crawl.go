package pipeline

import (
	"context"
	"fmt"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/scraper"
	"jobpulse/internal/usecase"

	"go.uber.org/zap"
)

const (
	crawlLockKey = "jobpulse:lock:crawl"

	// StopStoreUnavailable ends a crawl whose store stayed unreachable after retries.
	StopStoreUnavailable = "store_unavailable"
)

// FetcherOpener returns the fetcher for one crawl and the func that releases it.
type FetcherOpener func(ctx context.Context) (scraper.Fetcher, func(), error)

type CrawlDeps struct {
	Open         FetcherOpener
	Walker       scraper.WalkerConfig
	Extractor    *scraper.Extractor
	Continuation scraper.Continuation
	Upsert       *usecase.UpsertUsecase
	Clock        func() time.Time
}

type CrawlReport struct {
	RunID  string
	Walk   scraper.WalkResult
	Upsert usecase.UpsertResult
	Sweep  *usecase.SweepReport
}

// Crawl walks the listing, upserting each page while the next one is
// fetched, then sweeps stale postings if the walk was clean.
func (p *Pipeline) Crawl(ctx context.Context) (CrawlReport, error) {
	var report CrawlReport
	if p.crawl.Open == nil || p.crawl.Upsert == nil {
		return report, ErrNotConfigured
	}
	if !p.crawlMu.TryLock() {
		return report, ErrCrawlInProgress
	}
	defer p.crawlMu.Unlock()
	p.crawling.Store(true)
	defer p.crawling.Store(false)

	if p.locker != nil {
		release, ok, err := p.locker.AcquireLock(ctx, crawlLockKey, p.opts.LockTTL)
		if err != nil {
			return report, fmt.Errorf("acquire crawl lock: %w", err)
		}
		if !ok {
			p.log.Info("crawl skipped", zap.String("pipeline", "crawl"), zap.String("status", "locked"))
			return report, ErrCrawlInProgress
		}
		defer release()
	}

	run, err := p.track(ctx, posting.RunCrawl, func(ctx context.Context, runID string) (posting.RunCounts, string, error) {
		return p.runCrawl(ctx, runID, &report)
	})
	report.RunID = run.ID
	return report, err
}

// CrawlRunning reports whether this process is crawling right now.
func (p *Pipeline) CrawlRunning() bool {
	return p.crawling.Load()
}

func (p *Pipeline) runCrawl(ctx context.Context, runID string, report *CrawlReport) (posting.RunCounts, string, error) {
	log := p.log.With(zap.String("pipeline", "crawl"), zap.String("run_id", runID))

	fetcher, closeFetcher, err := p.crawl.Open(ctx)
	if err != nil {
		return posting.RunCounts{}, "", fmt.Errorf("open fetcher: %w", err)
	}
	defer closeFetcher()

	walker := scraper.NewWalker(p.crawl.Walker, fetcher, p.crawl.Extractor, p.crawl.Continuation, p.log)
	if p.crawl.Clock != nil {
		walker.WithClock(p.crawl.Clock)
	}

	// One worker keeps pages in order; the buffer bounds pages waiting to persist.
	pool := scraper.NewWorkerPool[usecase.UpsertResult](1, p.opts.UpsertInFlight)
	results := pool.Run(context.WithoutCancel(ctx))

	// A batch error means the store stayed unreachable; it stops the walk.
	walkCtx, stopWalk := context.WithCancel(ctx)
	defer stopWalk()
	var (
		total    usecase.UpsertResult
		storeErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			total.Add(r.Value)
			if r.Err == nil {
				continue
			}
			log.Error("page upsert failed", zap.String("step", "upsert"), zap.Error(r.Err))
			p.runLog(ctx, runID, "error", r.Err.Error())
			if storeErr == nil {
				storeErr = r.Err
				stopWalk()
			}
		}
	}()

	walk, walkErr := walker.Walk(walkCtx, func(_ context.Context, page int, cands []posting.Candidate) {
		pool.Submit(func(pctx context.Context) (usecase.UpsertResult, error) {
			if walkCtx.Err() != nil && ctx.Err() == nil {
				return usecase.UpsertResult{Seen: len(cands), Failed: len(cands)}, nil
			}
			res, err := p.crawl.Upsert.UpsertBatch(pctx, cands)
			if err != nil {
				err = fmt.Errorf("page %d: %w", page, err)
			}
			return res, err
		})
	})
	pool.Close()
	<-done

	if storeErr != nil {
		walk.StopReason = StopStoreUnavailable
		walkErr = fmt.Errorf("%w: %w", ErrStoreUnavailable, storeErr)
	}
	report.Walk = walk
	report.Upsert = total

	for i, recErr := range total.Errors {
		if i >= p.opts.MaxRunLogs {
			p.runLog(ctx, runID, "warn", fmt.Sprintf("%d more record errors not logged", len(total.Errors)-i))
			break
		}
		p.runLog(ctx, runID, "error", recErr.Error())
	}

	log.Info("walk finished",
		zap.String("step", "walk"),
		zap.String("stop_reason", walk.StopReason),
		zap.Int("pages", walk.Pages),
		zap.Int("seen", total.Seen),
		zap.Int("inserted", total.Inserted),
		zap.Int("refreshed", total.Refreshed),
		zap.Int("failed", total.Failed),
	)

	counts := posting.RunCounts{
		Pages:     walk.Pages,
		Seen:      total.Seen,
		Inserted:  total.Inserted,
		Refreshed: total.Refreshed,
		Errored:   total.Failed + walk.FailedPages,
	}

	switch {
	case walkErr != nil:
		log.Warn("sweep skipped", zap.String("step", "sweep"), zap.String("status", "skipped"), zap.Error(walkErr))
	case !p.opts.SweepAfterCrawl || p.retention == nil:
	case total.Seen == 0:
		log.Warn("sweep skipped, nothing seen", zap.String("step", "sweep"), zap.String("status", "skipped"))
	case total.Failed > 0:
		// A sighting that was not written still carries its old last_seen.
		log.Warn("sweep skipped, writes failed", zap.String("step", "sweep"), zap.String("status", "skipped"), zap.Int("failed", total.Failed))
		p.runLog(ctx, runID, "warn", fmt.Sprintf("sweep skipped: %d postings not written", total.Failed))
	default:
		sw, err := p.retention.Sweep(ctx, usecase.SweepParams{})
		if err != nil {
			log.Error("sweep failed", zap.String("step", "sweep"), zap.String("status", "error"), zap.Error(err))
			p.runLog(ctx, runID, "error", "sweep: "+err.Error())
			break
		}
		report.Sweep = &sw
		counts.Retired = int(sw.Retired)
	}

	return counts, walk.StopReason, walkErr
}
