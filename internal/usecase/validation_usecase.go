package usecase

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/repository"
	"jobpulse/internal/scraper"

	"go.uber.org/zap"
)

type ValidationParams struct {
	Limit        int
	BatchSize    int
	Concurrency  int
	BatchPause   time.Duration
	RecheckAfter time.Duration
	Rate         float64
	Force        bool
}

type ValidationReport struct {
	Checked  int64 `json:"checked"`
	Valid    int64 `json:"valid"`
	Expired  int64 `json:"expired"`
	Retired  int64 `json:"retired"`
	Skipped  int64 `json:"skipped"`
	Failed   int64 `json:"failed"`
	Canceled bool  `json:"canceled"`
}

// ValidationUsecase probes stored postings for the expiry marker and retires
// the expired ones. Strategies are tried in order; the first one that loads
// the page decides.
type ValidationUsecase struct {
	repo       repository.PostingRepository
	strategies []scraper.Fetcher
	cache      Cache
	template   string
	marker     string
	defaults   ValidationParams
	log        *zap.Logger
	now        func() time.Time
}

func NewValidationUsecase(repo repository.PostingRepository, strategies []scraper.Fetcher, cache Cache, cfg config.ValidatorConfig, detailTemplate string, log *zap.Logger) *ValidationUsecase {
	marker := strings.Join(strings.Fields(cfg.ExpiredMarker), " ")
	if marker == "" {
		marker = "Annoncen er udløbet!"
	}
	return &ValidationUsecase{
		repo:       repo,
		strategies: strategies,
		cache:      cache,
		template:   detailTemplate,
		marker:     marker,
		defaults: ValidationParams{
			Limit:        cfg.Limit,
			BatchSize:    cfg.BatchSize,
			Concurrency:  cfg.Concurrency,
			BatchPause:   cfg.BatchPause,
			RecheckAfter: cfg.RecheckAfter,
			Rate:         cfg.Rate,
		},
		log: logger.OrNop(log).Named("validator"),
		now: time.Now,
	}
}

func (u *ValidationUsecase) WithClock(now func() time.Time) *ValidationUsecase {
	if now != nil {
		u.now = now
	}
	return u
}

// Defaults returns the configured run parameters.
func (u *ValidationUsecase) Defaults() ValidationParams {
	return u.defaults
}

func (u *ValidationUsecase) DetailURL(naturalID string) string {
	return detailURL(u.template, naturalID)
}

// Check never fails: when no strategy can load the page the posting is
// reported Valid.
func (u *ValidationUsecase) Check(ctx context.Context, naturalID string) posting.Verdict {
	target := u.DetailURL(naturalID)
	for _, s := range u.strategies {
		if s == nil {
			continue
		}
		page, err := s.Fetch(ctx, target)
		if err != nil {
			u.log.Debug("strategy failed", zap.String("strategy", s.Name()), zap.String("natural_id", naturalID), zap.Error(err))
			continue
		}
		if u.expired(page) {
			u.log.Info("posting expired", zap.String("natural_id", naturalID), zap.String("strategy", s.Name()))
			return posting.Expired
		}
		return posting.Valid
	}
	u.log.Warn("all strategies failed, keeping posting", zap.String("natural_id", naturalID))
	return posting.Valid
}

func (u *ValidationUsecase) expired(page scraper.Page) bool {
	if page.Text != "" {
		return strings.Contains(strings.Join(strings.Fields(page.Text), " "), u.marker)
	}
	return bytes.Contains(page.HTML, []byte(u.marker))
}

// Run validates live postings in batches. Cancellation is honoured between
// batches; a started batch always completes.
func (u *ValidationUsecase) Run(ctx context.Context, p ValidationParams) (ValidationReport, error) {
	p = u.withDefaults(p)

	live, err := u.repo.ListLive(ctx, p.Limit)
	if err != nil {
		return ValidationReport{}, fmt.Errorf("list live postings: %w", err)
	}
	u.log.Info("validation started",
		zap.Int("postings", len(live)),
		zap.Int("batch_size", p.BatchSize),
		zap.Int("concurrency", p.Concurrency),
		zap.Float64("rate", p.Rate),
	)

	var checked, valid, expired, retired, skipped, failed atomic.Int64
	canceled := false

	for start := 0; start < len(live); start += p.BatchSize {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		end := min(start+p.BatchSize, len(live))
		batch := live[start:end]

		pool := scraper.NewWorkerPool[posting.Verdict](p.Concurrency, len(batch))
		pool.SetRateLimit(p.Rate)
		results := pool.Run(context.WithoutCancel(ctx))
		for _, post := range batch {
			id := post.NaturalID
			pool.Submit(func(wctx context.Context) (posting.Verdict, error) {
				if u.recentlyChecked(wctx, id, p) {
					skipped.Add(1)
					return posting.Valid, nil
				}

				v := u.Check(wctx, id)
				checked.Add(1)
				if v == posting.Valid {
					valid.Add(1)
					u.markChecked(wctx, id, p)
					return v, nil
				}

				expired.Add(1)
				ok, err := u.repo.Retire(wctx, id, u.now())
				if err != nil {
					failed.Add(1)
					u.log.Error("retire failed", zap.String("natural_id", id), zap.Error(err))
					return v, err
				}
				if ok {
					retired.Add(1)
				}
				return v, nil
			})
		}
		pool.Close()
		for range results {
		}

		u.log.Debug("batch validated", zap.Int("from", start), zap.Int("to", end))

		if end < len(live) && p.BatchPause > 0 {
			t := time.NewTimer(p.BatchPause)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	report := ValidationReport{
		Checked:  checked.Load(),
		Valid:    valid.Load(),
		Expired:  expired.Load(),
		Retired:  retired.Load(),
		Skipped:  skipped.Load(),
		Failed:   failed.Load(),
		Canceled: canceled,
	}
	u.log.Info("validation finished",
		zap.Int64("checked", report.Checked),
		zap.Int64("expired", report.Expired),
		zap.Int64("retired", report.Retired),
		zap.Int64("skipped", report.Skipped),
		zap.Bool("canceled", report.Canceled),
	)
	if canceled {
		return report, ctx.Err()
	}
	return report, nil
}

func (u *ValidationUsecase) withDefaults(p ValidationParams) ValidationParams {
	d := u.defaults
	if p.Limit <= 0 {
		p.Limit = d.Limit
	}
	if p.BatchSize <= 0 {
		p.BatchSize = d.BatchSize
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 3
	}
	if p.Concurrency <= 0 {
		p.Concurrency = d.Concurrency
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 3
	}
	if p.BatchPause <= 0 {
		p.BatchPause = d.BatchPause
	}
	if p.RecheckAfter <= 0 {
		p.RecheckAfter = d.RecheckAfter
	}
	if p.Rate <= 0 {
		p.Rate = d.Rate
	}
	return p
}

func (u *ValidationUsecase) recentlyChecked(ctx context.Context, id string, p ValidationParams) bool {
	if u.cache == nil || p.Force || p.RecheckAfter <= 0 {
		return false
	}
	var at time.Time
	found, err := u.cache.GetJSON(ctx, recheckKey(id), &at)
	return err == nil && found
}

func (u *ValidationUsecase) markChecked(ctx context.Context, id string, p ValidationParams) {
	if u.cache == nil || p.RecheckAfter <= 0 {
		return
	}
	if err := u.cache.SetJSON(ctx, recheckKey(id), u.now().UTC(), p.RecheckAfter); err != nil {
		u.log.Debug("recheck key not stored", zap.String("natural_id", id), zap.Error(err))
	}
}
