package usecase

import (
	"context"
	"errors"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/repository"

	"go.uber.org/zap"
)

const statusCacheTTL = 30 * time.Second

type Status struct {
	Postings        posting.Stats                   `json:"postings"`
	StaleAfter      string                          `json:"stale_after"`
	LatestRuns      map[posting.RunKind]posting.Run `json:"latest_runs"`
	DatabaseHealthy bool                            `json:"database_healthy"`
	RedisHealthy    bool                            `json:"redis_healthy"`
	ServerTime      time.Time                       `json:"server_time"`
}

type StatusUsecase struct {
	postings   repository.PostingRepository
	runs       repository.RunRepository
	db         Pinger
	redis      Pinger
	cache      Cache
	staleAfter time.Duration
	log        *zap.Logger
	now        func() time.Time
}

func NewStatusUsecase(postings repository.PostingRepository, runs repository.RunRepository, db Pinger, redis Pinger, cache Cache, staleAfter time.Duration, log *zap.Logger) *StatusUsecase {
	if staleAfter <= 0 {
		staleAfter = 48 * time.Hour
	}
	return &StatusUsecase{
		postings:   postings,
		runs:       runs,
		db:         db,
		redis:      redis,
		cache:      cache,
		staleAfter: staleAfter,
		log:        logger.OrNop(log).Named("status"),
		now:        time.Now,
	}
}

func (u *StatusUsecase) WithClock(now func() time.Time) *StatusUsecase {
	if now != nil {
		u.now = now
	}
	return u
}

// Get returns the status snapshot, served from cache for a short while.
func (u *StatusUsecase) Get(ctx context.Context) (Status, error) {
	if u.cache != nil {
		var cached Status
		if found, err := u.cache.GetJSON(ctx, StatusCacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}

	now := u.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := u.postings.Stats(ctx, dayStart, now.Add(-u.staleAfter))
	if err != nil {
		return Status{}, err
	}

	latest := make(map[posting.RunKind]posting.Run)
	if u.runs != nil {
		for _, kind := range []posting.RunKind{posting.RunCrawl, posting.RunValidate, posting.RunSweep, posting.RunReactivate, posting.RunBackfill} {
			run, err := u.runs.Latest(ctx, kind)
			if err != nil {
				if !errors.Is(err, repository.ErrRunNotFound) {
					u.log.Warn("latest run lookup failed", zap.String("kind", string(kind)), zap.Error(err))
				}
				continue
			}
			latest[kind] = run
		}
	}

	st := Status{
		Postings:        stats,
		StaleAfter:      u.staleAfter.String(),
		LatestRuns:      latest,
		DatabaseHealthy: ping(ctx, u.db),
		RedisHealthy:    ping(ctx, u.redis),
		ServerTime:      now,
	}

	if u.cache != nil {
		if err := u.cache.SetJSON(ctx, StatusCacheKey, st, statusCacheTTL); err != nil {
			u.log.Debug("status not cached", zap.Error(err))
		}
	}
	return st, nil
}

// Invalidate drops the cached snapshot after a run changes the numbers.
func (u *StatusUsecase) Invalidate(ctx context.Context) {
	if u == nil || u.cache == nil {
		return
	}
	_ = u.cache.Delete(ctx, StatusCacheKey)
}

func ping(ctx context.Context, p Pinger) bool {
	if p == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Ping(pingCtx) == nil
}
