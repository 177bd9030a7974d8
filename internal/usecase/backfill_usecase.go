package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"jobpulse/internal/config"
	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/repository"
	"jobpulse/internal/scraper"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func detailURL(template string, naturalID string) string {
	if !strings.Contains(template, "%s") {
		template = "https://www.jobindex.dk/vis-job/%s"
	}
	return fmt.Sprintf(template, url.PathEscape(strings.TrimSpace(naturalID)))
}

type BackfillParams struct {
	Limit       int
	BatchSize   int
	Concurrency int
}

type BackfillReport struct {
	Scanned   int64 `json:"scanned"`
	Fetched   int64 `json:"fetched"`
	Updated   int64 `json:"updated"`
	Unchanged int64 `json:"unchanged"`
	Failed    int64 `json:"failed"`
}

// BackfillUsecase fills missing descriptive fields of live postings from
// their detail pages. Stored non-empty values are never replaced.
type BackfillUsecase struct {
	repo     repository.PostingRepository
	fetchers []scraper.Fetcher
	template string
	defaults BackfillParams
	log      *zap.Logger
	now      func() time.Time
}

func NewBackfillUsecase(repo repository.PostingRepository, fetchers []scraper.Fetcher, cfg config.BackfillConfig, detailTemplate string, log *zap.Logger) *BackfillUsecase {
	return &BackfillUsecase{
		repo:     repo,
		fetchers: fetchers,
		template: detailTemplate,
		defaults: BackfillParams{Limit: cfg.Limit, BatchSize: cfg.BatchSize, Concurrency: cfg.Concurrency},
		log:      logger.OrNop(log).Named("backfill"),
		now:      time.Now,
	}
}

func (u *BackfillUsecase) Run(ctx context.Context, p BackfillParams) (BackfillReport, error) {
	if p.Limit <= 0 {
		p.Limit = u.defaults.Limit
	}
	if p.BatchSize <= 0 {
		p.BatchSize = u.defaults.BatchSize
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	if p.Concurrency <= 0 {
		p.Concurrency = u.defaults.Concurrency
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 4
	}

	var scanned, fetched, updated, unchanged, failed atomic.Int64
	report := func() BackfillReport {
		return BackfillReport{
			Scanned:   scanned.Load(),
			Fetched:   fetched.Load(),
			Updated:   updated.Load(),
			Unchanged: unchanged.Load(),
			Failed:    failed.Load(),
		}
	}

	var cursor *repository.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return report(), err
		}
		size := p.BatchSize
		if p.Limit > 0 {
			left := p.Limit - int(scanned.Load())
			if left <= 0 {
				break
			}
			size = min(size, left)
		}

		batch, err := u.repo.ListMissingDetails(ctx, cursor, size)
		if err != nil {
			return report(), fmt.Errorf("list postings missing details: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		last := batch[len(batch)-1]
		cursor = &repository.Cursor{CreatedAt: last.CreatedAt, NaturalID: last.NaturalID}
		scanned.Add(int64(len(batch)))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.Concurrency)
		for _, post := range batch {
			id := post.NaturalID
			g.Go(func() error {
				d, ok := u.fetchDetails(gctx, id)
				if !ok {
					failed.Add(1)
					return nil
				}
				fetched.Add(1)
				changed, err := u.repo.Backfill(gctx, id, d, u.now())
				switch {
				case err != nil:
					failed.Add(1)
					u.log.Error("backfill write failed", zap.String("natural_id", id), zap.Error(err))
				case changed:
					updated.Add(1)
				default:
					unchanged.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		u.log.Debug("backfill batch done", zap.Int("size", len(batch)), zap.String("cursor", cursor.NaturalID))
		if len(batch) < size {
			break
		}
	}

	r := report()
	u.log.Info("backfill finished",
		zap.Int64("scanned", r.Scanned),
		zap.Int64("updated", r.Updated),
		zap.Int64("failed", r.Failed),
	)
	return r, nil
}

// fetchDetails tries each fetcher until one yields at least one field.
func (u *BackfillUsecase) fetchDetails(ctx context.Context, naturalID string) (posting.Details, bool) {
	target := detailURL(u.template, naturalID)
	for _, f := range u.fetchers {
		if f == nil {
			continue
		}
		page, err := f.Fetch(ctx, target)
		if err != nil {
			u.log.Debug("detail fetch failed", zap.String("fetcher", f.Name()), zap.String("natural_id", naturalID), zap.Error(err))
			continue
		}
		base := page.FinalURL
		if base == "" {
			base = target
		}
		d, err := scraper.ParseDetail(page.HTML, base)
		if err != nil || d.Empty() {
			continue
		}
		return d, true
	}
	return posting.Details{}, false
}
