package scheduler

import (
	"context"
	"errors"

	"jobpulse/internal/config"
	"jobpulse/internal/pipeline"
	"jobpulse/internal/usecase"
)

// Runner is the subset of the pipeline the schedule drives.
type Runner interface {
	Crawl(ctx context.Context) (pipeline.CrawlReport, error)
	Validate(ctx context.Context, params usecase.ValidationParams) (usecase.ValidationReport, error)
	Sweep(ctx context.Context, params usecase.SweepParams) (usecase.SweepReport, error)
	Reactivate(ctx context.Context, params usecase.ReactivationParams) (usecase.ReactivationReport, error)
	Backfill(ctx context.Context, params usecase.BackfillParams) (usecase.BackfillReport, error)
}

// Register adds one job per configured spec, all running on ctx.
func Register(ctx context.Context, s *Scheduler, r Runner, cfg config.ScheduleConfig) error {
	jobs := []struct {
		name string
		spec string
		fn   JobFunc
	}{
		{"crawl", cfg.Crawl, func(ctx context.Context) error {
			_, err := r.Crawl(ctx)
			if errors.Is(err, pipeline.ErrCrawlInProgress) {
				return nil
			}
			return err
		}},
		{"validate", cfg.Validate, func(ctx context.Context) error {
			_, err := r.Validate(ctx, usecase.ValidationParams{})
			return err
		}},
		{"sweep", cfg.Sweep, func(ctx context.Context) error {
			_, err := r.Sweep(ctx, usecase.SweepParams{})
			return err
		}},
		{"reactivate", cfg.Reactivate, func(ctx context.Context) error {
			_, err := r.Reactivate(ctx, usecase.ReactivationParams{})
			return err
		}},
		{"backfill", cfg.Backfill, func(ctx context.Context) error {
			_, err := r.Backfill(ctx, usecase.BackfillParams{})
			return err
		}},
	}

	for _, j := range jobs {
		if err := s.Add(ctx, j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}
