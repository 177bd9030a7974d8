package usecase

import (
	"context"
	"fmt"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/pkg/logger"
	"jobpulse/internal/pkg/retry"
	"jobpulse/internal/repository"

	"go.uber.org/zap"
)

// RecordError is one posting that could not be written after retries.
type RecordError struct {
	NaturalID string
	Op        string
	Err       error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.NaturalID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

type UpsertResult struct {
	Seen      int
	Inserted  int
	Refreshed int
	Failed    int
	Errors    []RecordError
}

// Add accumulates another batch's result into r.
func (r *UpsertResult) Add(o UpsertResult) {
	r.Seen += o.Seen
	r.Inserted += o.Inserted
	r.Refreshed += o.Refreshed
	r.Failed += o.Failed
	r.Errors = append(r.Errors, o.Errors...)
}

type UpsertUsecase struct {
	repo   repository.PostingRepository
	policy retry.Backoff
	log    *zap.Logger
	now    func() time.Time
}

func NewUpsertUsecase(repo repository.PostingRepository, policy retry.Backoff, log *zap.Logger) *UpsertUsecase {
	return &UpsertUsecase{
		repo:   repo,
		policy: policy,
		log:    logger.OrNop(log).Named("upsert"),
		now:    time.Now,
	}
}

func (u *UpsertUsecase) WithClock(now func() time.Time) *UpsertUsecase {
	if now != nil {
		u.now = now
	}
	return u
}

// UpsertBatch merges one page of candidates into the store. Only a failed
// existence check fails the batch; record failures are collected and the
// remaining records still run.
func (u *UpsertUsecase) UpsertBatch(ctx context.Context, cands []posting.Candidate) (UpsertResult, error) {
	merged := posting.MergeByID(cands)
	res := UpsertResult{Seen: len(merged)}
	if len(merged) == 0 {
		return res, nil
	}

	ids := make([]string, len(merged))
	for i, c := range merged {
		ids[i] = c.NaturalID
	}

	var existing map[string]struct{}
	err := u.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		existing, err = u.repo.ExistingIDs(ctx, ids)
		if err != nil {
			u.log.Warn("existence check failed", zap.Int("attempt", attempt+1), zap.Int("batch", len(ids)), zap.Error(err))
		}
		return err
	})
	if err != nil {
		res.Failed = len(merged)
		return res, fmt.Errorf("existence check: %w", err)
	}

	seenAt := u.now().UTC()
	for _, c := range merged {
		if _, ok := existing[c.NaturalID]; ok {
			u.refresh(ctx, c, seenAt, &res)
			continue
		}

		var inserted bool
		err := u.policy.Do(ctx, func(ctx context.Context, _ int) error {
			var err error
			inserted, err = u.repo.Insert(ctx, c, seenAt)
			return err
		})
		if err != nil {
			u.fail(&res, c.NaturalID, "insert", err)
			continue
		}
		if inserted {
			res.Inserted++
			continue
		}
		// Another writer inserted it between the existence check and now.
		u.refresh(ctx, c, seenAt, &res)
	}

	u.log.Debug("batch upserted",
		zap.Int("seen", res.Seen),
		zap.Int("inserted", res.Inserted),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (u *UpsertUsecase) refresh(ctx context.Context, c posting.Candidate, seenAt time.Time, res *UpsertResult) {
	var touched bool
	err := u.policy.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		touched, err = u.repo.Touch(ctx, c, seenAt)
		return err
	})
	if err != nil {
		u.fail(res, c.NaturalID, "refresh", err)
		return
	}
	if !touched {
		u.fail(res, c.NaturalID, "refresh", repository.ErrPostingNotFound)
		return
	}
	res.Refreshed++
}

func (u *UpsertUsecase) fail(res *UpsertResult, id string, op string, err error) {
	res.Failed++
	res.Errors = append(res.Errors, RecordError{NaturalID: id, Op: op, Err: err})
	u.log.Error("record write failed", zap.String("natural_id", id), zap.String("op", op), zap.Error(err))
}
