package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"jobpulse/internal/database"
	"jobpulse/internal/domain/posting"

	"github.com/google/uuid"
)

var ErrRunNotFound = errors.New("run not found")

// RunRepository keeps the crawl_runs/run_logs bookkeeping for every maintenance run.
type RunRepository interface {
	Create(ctx context.Context, kind posting.RunKind) (posting.Run, error)
	Finish(ctx context.Context, runID string, status posting.RunStatus, stopReason string, counts posting.RunCounts) error
	Log(ctx context.Context, runID string, level string, message string) error
	ListRecent(ctx context.Context, limit int) ([]posting.Run, error)
	Latest(ctx context.Context, kind posting.RunKind) (posting.Run, error)
}

type SQLRunRepository struct {
	db database.DB
}

func NewSQLRunRepository(db database.DB) *SQLRunRepository {
	return &SQLRunRepository{db: db}
}

func (r *SQLRunRepository) Create(ctx context.Context, kind posting.RunKind) (posting.Run, error) {
	id := uuid.New()
	now := storeTime(time.Now())
	_, err := r.db.Exec(ctx,
		`INSERT INTO crawl_runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, string(kind), string(posting.RunRunning), now,
	)
	if err != nil {
		return posting.Run{}, err
	}
	return posting.Run{ID: id.String(), Kind: kind, Status: posting.RunRunning, StartedAt: now}, nil
}

func (r *SQLRunRepository) Finish(ctx context.Context, runID string, status posting.RunStatus, stopReason string, counts posting.RunCounts) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return err
	}
	n, err := r.db.Exec(ctx,
		`UPDATE crawl_runs SET
			finished_at = $2, status = $3, stop_reason = $4,
			pages = $5, seen = $6, inserted = $7, refreshed = $8, retired = $9, errored = $10
		WHERE id = $1`,
		id, storeTime(time.Now()), string(status), nullableText(stopReason),
		counts.Pages, counts.Seen, counts.Inserted, counts.Refreshed, counts.Retired, counts.Errored,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *SQLRunRepository) Log(ctx context.Context, runID string, level string, message string) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return err
	}
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO run_logs (id, run_id, level, message, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), id, level, message, storeTime(time.Now()),
	)
	return err
}

const runColumns = `id, kind, status, started_at, finished_at, COALESCE(stop_reason, ''),
	pages, seen, inserted, refreshed, retired, errored`

func scanRun(row database.Row) (posting.Run, error) {
	var (
		run  posting.Run
		id   uuid.UUID
		kind string
		st   string
	)
	err := row.Scan(&id, &kind, &st, &run.StartedAt, &run.FinishedAt, &run.StopReason,
		&run.Counts.Pages, &run.Counts.Seen, &run.Counts.Inserted, &run.Counts.Refreshed,
		&run.Counts.Retired, &run.Counts.Errored,
	)
	if err != nil {
		return posting.Run{}, err
	}
	run.ID = id.String()
	run.Kind = posting.RunKind(kind)
	run.Status = posting.RunStatus(st)
	return run, nil
}

func (r *SQLRunRepository) ListRecent(ctx context.Context, limit int) ([]posting.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+runColumns+` FROM crawl_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]posting.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLRunRepository) Latest(ctx context.Context, kind posting.RunKind) (posting.Run, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+runColumns+` FROM crawl_runs WHERE kind = $1 ORDER BY started_at DESC LIMIT 1`,
		string(kind),
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return posting.Run{}, ErrRunNotFound
		}
		return posting.Run{}, err
	}
	return run, nil
}
