package usecase

import (
	"context"
	"fmt"
	"time"

	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/repository"

	"go.uber.org/zap"
)

type ReactivationParams struct {
	Limit  int
	DryRun bool
}

type ReactivationReport struct {
	Candidates  int      `json:"candidates"`
	Reactivated int      `json:"reactivated"`
	Failed      int      `json:"failed"`
	DryRun      bool     `json:"dry_run"`
	IDs         []string `json:"ids,omitempty"`
}

type ReactivationStats struct {
	TotalRetired int64   `json:"total_retired"`
	Candidates   int64   `json:"candidates"`
	Percentage   float64 `json:"percentage"`
}

// ReactivationUsecase repairs retired postings that were sighted after
// their retirement.
type ReactivationUsecase struct {
	repo repository.PostingRepository
	log  *zap.Logger
	now  func() time.Time
}

func NewReactivationUsecase(repo repository.PostingRepository, log *zap.Logger) *ReactivationUsecase {
	return &ReactivationUsecase{
		repo: repo,
		log:  logger.OrNop(log).Named("reactivator"),
		now:  time.Now,
	}
}

func (u *ReactivationUsecase) WithClock(now func() time.Time) *ReactivationUsecase {
	if now != nil {
		u.now = now
	}
	return u
}

func (u *ReactivationUsecase) Run(ctx context.Context, p ReactivationParams) (ReactivationReport, error) {
	report := ReactivationReport{DryRun: p.DryRun}

	cands, err := u.repo.ListReactivationCandidates(ctx, p.Limit)
	if err != nil {
		return report, fmt.Errorf("list reactivation candidates: %w", err)
	}
	report.Candidates = len(cands)
	for _, c := range cands {
		report.IDs = append(report.IDs, c.NaturalID)
	}
	if p.DryRun || len(cands) == 0 {
		u.log.Info("reactivation checked", zap.Int("candidates", len(cands)), zap.Bool("dry_run", p.DryRun))
		return report, nil
	}

	now := u.now().UTC()
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ok, err := u.repo.Reactivate(ctx, c.NaturalID, now)
		if err != nil {
			report.Failed++
			u.log.Error("reactivate failed", zap.String("natural_id", c.NaturalID), zap.Error(err))
			continue
		}
		if ok {
			report.Reactivated++
		}
	}

	u.log.Info("reactivation finished",
		zap.Int("candidates", report.Candidates),
		zap.Int("reactivated", report.Reactivated),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (u *ReactivationUsecase) Stats(ctx context.Context) (ReactivationStats, error) {
	now := u.now().UTC()
	st, err := u.repo.Stats(ctx, now, now)
	if err != nil {
		return ReactivationStats{}, err
	}
	out := ReactivationStats{TotalRetired: st.Retired, Candidates: st.ReactivationCandidates}
	if st.Retired > 0 {
		out.Percentage = float64(st.ReactivationCandidates) / float64(st.Retired) * 100
	}
	return out, nil
}
