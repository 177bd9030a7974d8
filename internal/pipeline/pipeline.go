package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/repository"
	"jobpulse/internal/usecase"

	"go.uber.org/zap"
)

var (
	ErrCrawlInProgress  = errors.New("crawl already running")
	ErrNotConfigured    = errors.New("pipeline step not configured")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Locker guards the crawl across processes.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Notifier is told about every finished run.
type Notifier interface {
	NotifyRunFinished(run posting.Run)
}

type StatusInvalidator interface {
	Invalidate(ctx context.Context)
}

// Pipeline runs every maintenance job with run bookkeeping.
type Pipeline struct {
	crawl        CrawlDeps
	validation   *usecase.ValidationUsecase
	retention    *usecase.RetentionUsecase
	reactivation *usecase.ReactivationUsecase
	backfill     *usecase.BackfillUsecase

	runs     repository.RunRepository
	locker   Locker
	notifier Notifier
	status   StatusInvalidator
	opts     Options
	log      *zap.Logger

	crawlMu  sync.Mutex
	crawling atomic.Bool

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

type Options struct {
	UpsertInFlight  int
	LockTTL         time.Duration
	SweepAfterCrawl bool
	MaxRunLogs      int
}

type Deps struct {
	Crawl        CrawlDeps
	Validation   *usecase.ValidationUsecase
	Retention    *usecase.RetentionUsecase
	Reactivation *usecase.ReactivationUsecase
	Backfill     *usecase.BackfillUsecase

	Runs     repository.RunRepository
	Locker   Locker
	Notifier Notifier
	Status   StatusInvalidator
	Logger   *zap.Logger
}

func New(d Deps, opts Options) *Pipeline {
	if opts.UpsertInFlight <= 0 {
		opts.UpsertInFlight = 2
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Hour
	}
	if opts.MaxRunLogs <= 0 {
		opts.MaxRunLogs = 100
	}
	base, stop := context.WithCancel(context.Background())
	return &Pipeline{
		crawl:        d.Crawl,
		validation:   d.Validation,
		retention:    d.Retention,
		reactivation: d.Reactivation,
		backfill:     d.Backfill,
		runs:         d.Runs,
		locker:       d.Locker,
		notifier:     d.Notifier,
		status:       d.Status,
		opts:         opts,
		log:          logger.OrNop(d.Logger).Named("pipeline"),
		baseCtx:      base,
		stop:         stop,
	}
}

// Go runs fn in the background on the pipeline's own context. Shutdown
// cancels that context and waits for fn to return.
func (p *Pipeline) Go(name string, fn func(ctx context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := fn(p.baseCtx); err != nil {
			p.log.Warn("background run ended with error", zap.String("pipeline", name), zap.Error(err))
		}
	}()
}

func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.stop()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) Validate(ctx context.Context, params usecase.ValidationParams) (usecase.ValidationReport, error) {
	if p.validation == nil {
		return usecase.ValidationReport{}, ErrNotConfigured
	}
	var report usecase.ValidationReport
	_, err := p.track(ctx, posting.RunValidate, func(ctx context.Context, _ string) (posting.RunCounts, string, error) {
		var err error
		report, err = p.validation.Run(ctx, params)
		counts := posting.RunCounts{
			Seen:    int(report.Checked),
			Retired: int(report.Retired),
			Errored: int(report.Failed),
		}
		return counts, "", err
	})
	return report, err
}

func (p *Pipeline) Sweep(ctx context.Context, params usecase.SweepParams) (usecase.SweepReport, error) {
	if p.retention == nil {
		return usecase.SweepReport{}, ErrNotConfigured
	}
	var report usecase.SweepReport
	_, err := p.track(ctx, posting.RunSweep, func(ctx context.Context, _ string) (posting.RunCounts, string, error) {
		var err error
		report, err = p.retention.Sweep(ctx, params)
		return posting.RunCounts{Seen: int(report.Candidates), Retired: int(report.Retired)}, dryRunReason(params.DryRun), err
	})
	return report, err
}

func (p *Pipeline) Reactivate(ctx context.Context, params usecase.ReactivationParams) (usecase.ReactivationReport, error) {
	if p.reactivation == nil {
		return usecase.ReactivationReport{}, ErrNotConfigured
	}
	var report usecase.ReactivationReport
	_, err := p.track(ctx, posting.RunReactivate, func(ctx context.Context, _ string) (posting.RunCounts, string, error) {
		var err error
		report, err = p.reactivation.Run(ctx, params)
		counts := posting.RunCounts{
			Seen:      report.Candidates,
			Refreshed: report.Reactivated,
			Errored:   report.Failed,
		}
		return counts, dryRunReason(params.DryRun), err
	})
	return report, err
}

func (p *Pipeline) Backfill(ctx context.Context, params usecase.BackfillParams) (usecase.BackfillReport, error) {
	if p.backfill == nil {
		return usecase.BackfillReport{}, ErrNotConfigured
	}
	var report usecase.BackfillReport
	_, err := p.track(ctx, posting.RunBackfill, func(ctx context.Context, _ string) (posting.RunCounts, string, error) {
		var err error
		report, err = p.backfill.Run(ctx, params)
		counts := posting.RunCounts{
			Seen:      int(report.Scanned),
			Refreshed: int(report.Updated),
			Errored:   int(report.Failed),
		}
		return counts, "", err
	})
	return report, err
}

func dryRunReason(dry bool) string {
	if dry {
		return "dry_run"
	}
	return ""
}

type stepFunc func(ctx context.Context, runID string) (posting.RunCounts, string, error)

// track wraps fn in a crawl_runs row and reports the outcome.
func (p *Pipeline) track(ctx context.Context, kind posting.RunKind, fn stepFunc) (posting.Run, error) {
	start := time.Now()
	log := p.log.With(zap.String("pipeline", string(kind)))
	log.Info("run started", zap.String("status", "started"))

	run, err := p.runs.Create(ctx, kind)
	if err != nil {
		log.Error("run bookkeeping failed", zap.String("status", "error"), zap.Error(err))
		return posting.Run{}, err
	}

	counts, reason, runErr := fn(ctx, run.ID)
	run = p.finish(ctx, run, statusFor(runErr), reason, counts)
	if runErr != nil {
		p.runLog(ctx, run.ID, "error", runErr.Error())
	}

	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.String("run_id", run.ID),
		zap.Duration("duration", time.Since(start)),
	)
	return run, runErr
}

func statusFor(err error) posting.RunStatus {
	switch {
	case err == nil:
		return posting.RunFinished
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return posting.RunCanceled
	default:
		return posting.RunFailed
	}
}

// finish writes the final run row on a context that outlives cancellation.
func (p *Pipeline) finish(ctx context.Context, run posting.Run, status posting.RunStatus, reason string, counts posting.RunCounts) posting.Run {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.runs.Finish(wctx, run.ID, status, reason, counts); err != nil {
		p.log.Error("run finish not recorded", zap.String("run_id", run.ID), zap.Error(err))
	}
	now := time.Now().UTC()
	run.Status = status
	run.StopReason = reason
	run.Counts = counts
	run.FinishedAt = &now

	if p.status != nil {
		p.status.Invalidate(wctx)
	}
	if p.notifier != nil {
		p.notifier.NotifyRunFinished(run)
	}
	return run
}

func (p *Pipeline) runLog(ctx context.Context, runID string, level string, msg string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.runs.Log(wctx, runID, level, msg); err != nil {
		p.log.Warn("run log not recorded", zap.String("run_id", runID), zap.Error(err))
	}
}
