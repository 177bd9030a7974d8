package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/repository"

	"go.uber.org/zap"
)

var ErrInvalidStaleAfter = errors.New("stale-after must be positive")

type SweepParams struct {
	StaleAfter time.Duration
	DryRun     bool
}

type SweepReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Candidates int64     `json:"candidates"`
	Retired    int64     `json:"retired"`
	DryRun     bool      `json:"dry_run"`
}

// RetentionUsecase retires live postings whose last sighting is older than
// the staleness window.
type RetentionUsecase struct {
	repo       repository.PostingRepository
	staleAfter time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewRetentionUsecase(repo repository.PostingRepository, staleAfter time.Duration, log *zap.Logger) *RetentionUsecase {
	if staleAfter <= 0 {
		staleAfter = 48 * time.Hour
	}
	return &RetentionUsecase{
		repo:       repo,
		staleAfter: staleAfter,
		log:        logger.OrNop(log).Named("retention"),
		now:        time.Now,
	}
}

func (u *RetentionUsecase) WithClock(now func() time.Time) *RetentionUsecase {
	if now != nil {
		u.now = now
	}
	return u
}

func (u *RetentionUsecase) StaleAfter() time.Duration {
	return u.staleAfter
}

func (u *RetentionUsecase) Sweep(ctx context.Context, p SweepParams) (SweepReport, error) {
	staleAfter := p.StaleAfter
	if staleAfter == 0 {
		staleAfter = u.staleAfter
	}
	if staleAfter < 0 {
		return SweepReport{}, ErrInvalidStaleAfter
	}

	now := u.now().UTC()
	report := SweepReport{Cutoff: now.Add(-staleAfter), DryRun: p.DryRun}

	n, err := u.repo.CountStale(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("count stale postings: %w", err)
	}
	report.Candidates = n

	if p.DryRun || n == 0 {
		u.log.Info("sweep checked",
			zap.Time("cutoff", report.Cutoff),
			zap.Int64("candidates", n),
			zap.Bool("dry_run", p.DryRun),
		)
		return report, nil
	}

	retired, err := u.repo.RetireStale(ctx, report.Cutoff, now)
	if err != nil {
		return report, fmt.Errorf("retire stale postings: %w", err)
	}
	report.Retired = retired
	u.log.Info("sweep finished", zap.Time("cutoff", report.Cutoff), zap.Int64("retired", retired))
	return report, nil
}
