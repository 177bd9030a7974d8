package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobpulse/internal/database"
	"jobpulse/internal/domain/posting"
)

var ErrPostingNotFound = errors.New("posting not found")

// Cursor is a keyset position on (created_at DESC, natural_id DESC).
type Cursor struct {
	CreatedAt time.Time
	NaturalID string
}

// PostingRepository is the store contract. Every write is keyed by natural id
// and safe to repeat.
type PostingRepository interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	// Insert creates a live posting; false means the id already existed.
	Insert(ctx context.Context, c posting.Candidate, seenAt time.Time) (bool, error)
	// Touch records a re-sighting: last_seen never decreases, retired_at is
	// cleared and only empty descriptive fields are filled.
	Touch(ctx context.Context, c posting.Candidate, seenAt time.Time) (bool, error)
	Get(ctx context.Context, naturalID string) (posting.Posting, error)

	// ListLive returns live postings, unknown and oldest publication dates first.
	ListLive(ctx context.Context, limit int) ([]posting.Posting, error)
	Retire(ctx context.Context, naturalID string, at time.Time) (bool, error)
	CountStale(ctx context.Context, cutoff time.Time) (int64, error)
	RetireStale(ctx context.Context, cutoff time.Time, at time.Time) (int64, error)

	ListReactivationCandidates(ctx context.Context, limit int) ([]posting.Posting, error)
	Reactivate(ctx context.Context, naturalID string, at time.Time) (bool, error)

	ListMissingDetails(ctx context.Context, after *Cursor, limit int) ([]posting.Posting, error)
	Backfill(ctx context.Context, naturalID string, d posting.Details, at time.Time) (bool, error)

	Stats(ctx context.Context, dayStart time.Time, staleCutoff time.Time) (posting.Stats, error)
}

type SQLPostingRepository struct {
	db database.DB
}

func NewSQLPostingRepository(db database.DB) *SQLPostingRepository {
	return &SQLPostingRepository{db: db}
}

const postingColumns = `natural_id, COALESCE(title, ''), COALESCE(company, ''), COALESCE(company_url, ''),
	COALESCE(location, ''), COALESCE(description, ''), publication_date, last_seen, retired_at,
	created_at, updated_at, relevance_score, scored_at, content_hash, embedding_created_at, region`

func scanPosting(row database.Row) (posting.Posting, error) {
	var p posting.Posting
	err := row.Scan(
		&p.NaturalID, &p.Title, &p.Company, &p.CompanyURL,
		&p.Location, &p.Description, &p.PublicationDate, &p.LastSeen, &p.RetiredAt,
		&p.CreatedAt, &p.UpdatedAt, &p.RelevanceScore, &p.ScoredAt, &p.ContentHash, &p.EmbeddingCreatedAt, &p.Region,
	)
	return p, err
}

func (r *SQLPostingRepository) queryPostings(ctx context.Context, query string, args ...any) ([]posting.Posting, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]posting.Posting, 0)
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLPostingRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.Query(ctx,
		`SELECT natural_id FROM postings WHERE natural_id IN (`+strings.Join(ph, ", ")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLPostingRepository) Insert(ctx context.Context, c posting.Candidate, seenAt time.Time) (bool, error) {
	seenAt = storeTime(seenAt)
	n, err := r.db.Exec(ctx,
		`INSERT INTO postings (
			natural_id, title, company, company_url, location, description,
			publication_date, last_seen, retired_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $8, $8)
		ON CONFLICT (natural_id) DO NOTHING`,
		c.NaturalID,
		nullableText(c.Title),
		nullableText(c.Company),
		nullableText(c.CompanyURL),
		nullableText(c.Location),
		nullableText(c.Description),
		nullableDate(c.PublicationDate),
		seenAt,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLPostingRepository) Touch(ctx context.Context, c posting.Candidate, seenAt time.Time) (bool, error) {
	seenAt = storeTime(seenAt)
	n, err := r.db.Exec(ctx,
		`UPDATE postings SET
			last_seen = CASE WHEN last_seen < $2 THEN $2 ELSE last_seen END,
			retired_at = NULL,
			title = CASE WHEN COALESCE(title, '') = '' THEN $3 ELSE title END,
			company = CASE WHEN COALESCE(company, '') = '' THEN $4 ELSE company END,
			company_url = CASE WHEN COALESCE(company_url, '') = '' THEN $5 ELSE company_url END,
			location = CASE WHEN COALESCE(location, '') = '' THEN $6 ELSE location END,
			description = CASE WHEN COALESCE(description, '') = '' THEN $7 ELSE description END,
			publication_date = COALESCE(publication_date, $8),
			updated_at = $2
		WHERE natural_id = $1`,
		c.NaturalID,
		seenAt,
		nullableText(c.Title),
		nullableText(c.Company),
		nullableText(c.CompanyURL),
		nullableText(c.Location),
		nullableText(c.Description),
		nullableDate(c.PublicationDate),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLPostingRepository) Get(ctx context.Context, naturalID string) (posting.Posting, error) {
	row := r.db.QueryRow(ctx, `SELECT `+postingColumns+` FROM postings WHERE natural_id = $1`, naturalID)
	p, err := scanPosting(row)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return posting.Posting{}, ErrPostingNotFound
		}
		return posting.Posting{}, err
	}
	return p, nil
}

func (r *SQLPostingRepository) ListLive(ctx context.Context, limit int) ([]posting.Posting, error) {
	q := `SELECT ` + postingColumns + ` FROM postings
		WHERE retired_at IS NULL
		ORDER BY CASE WHEN publication_date IS NULL THEN 0 ELSE 1 END, publication_date, natural_id`
	if limit > 0 {
		return r.queryPostings(ctx, q+` LIMIT $1`, limit)
	}
	return r.queryPostings(ctx, q)
}

func (r *SQLPostingRepository) Retire(ctx context.Context, naturalID string, at time.Time) (bool, error) {
	at = storeTime(at)
	n, err := r.db.Exec(ctx,
		`UPDATE postings SET retired_at = $2, updated_at = $2 WHERE natural_id = $1 AND retired_at IS NULL`,
		naturalID, at,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLPostingRepository) CountStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	row := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM postings WHERE retired_at IS NULL AND last_seen < $1`,
		storeTime(cutoff),
	)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *SQLPostingRepository) RetireStale(ctx context.Context, cutoff time.Time, at time.Time) (int64, error) {
	at = storeTime(at)
	return r.db.Exec(ctx,
		`UPDATE postings SET retired_at = $1, updated_at = $1 WHERE retired_at IS NULL AND last_seen < $2`,
		at, storeTime(cutoff),
	)
}

func (r *SQLPostingRepository) ListReactivationCandidates(ctx context.Context, limit int) ([]posting.Posting, error) {
	q := `SELECT ` + postingColumns + ` FROM postings
		WHERE retired_at IS NOT NULL AND last_seen > retired_at
		ORDER BY last_seen DESC, natural_id`
	if limit > 0 {
		return r.queryPostings(ctx, q+` LIMIT $1`, limit)
	}
	return r.queryPostings(ctx, q)
}

func (r *SQLPostingRepository) Reactivate(ctx context.Context, naturalID string, at time.Time) (bool, error) {
	n, err := r.db.Exec(ctx,
		`UPDATE postings SET retired_at = NULL, updated_at = $2
		WHERE natural_id = $1 AND retired_at IS NOT NULL AND last_seen > retired_at`,
		naturalID, storeTime(at),
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLPostingRepository) ListMissingDetails(ctx context.Context, after *Cursor, limit int) ([]posting.Posting, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT ` + postingColumns + ` FROM postings
		WHERE retired_at IS NULL
		AND (COALESCE(company, '') = '' OR COALESCE(company_url, '') = '' OR COALESCE(description, '') = '')`
	args := []any{}
	if after != nil {
		q += ` AND (created_at < $1 OR (created_at = $1 AND natural_id < $2))`
		args = append(args, storeTime(after.CreatedAt), after.NaturalID)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, natural_id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)
	return r.queryPostings(ctx, q, args...)
}

func (r *SQLPostingRepository) Backfill(ctx context.Context, naturalID string, d posting.Details, at time.Time) (bool, error) {
	fields := []struct {
		col string
		val string
	}{
		{"title", d.Title},
		{"company", d.Company},
		{"company_url", d.CompanyURL},
		{"location", d.Location},
		{"description", d.Description},
	}

	args := []any{naturalID, storeTime(at)}
	sets := []string{}
	conds := []string{}
	for _, f := range fields {
		v := strings.TrimSpace(f.val)
		if v == "" {
			continue
		}
		args = append(args, v)
		ph := fmt.Sprintf("$%d", len(args))
		sets = append(sets, fmt.Sprintf("%s = CASE WHEN COALESCE(%s, '') = '' THEN %s ELSE %s END", f.col, f.col, ph, f.col))
		conds = append(conds, fmt.Sprintf("COALESCE(%s, '') = ''", f.col))
	}
	if len(sets) == 0 {
		return false, nil
	}

	n, err := r.db.Exec(ctx,
		`UPDATE postings SET `+strings.Join(sets, ", ")+`, updated_at = $2
		WHERE natural_id = $1 AND (`+strings.Join(conds, " OR ")+`)`,
		args...,
	)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLPostingRepository) Stats(ctx context.Context, dayStart time.Time, staleCutoff time.Time) (posting.Stats, error) {
	var s posting.Stats
	row := r.db.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN retired_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retired_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN last_seen >= $1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN created_at >= $1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retired_at IS NULL AND last_seen < $2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retired_at IS NOT NULL AND last_seen > retired_at THEN 1 ELSE 0 END), 0)
		FROM postings`,
		storeTime(dayStart), storeTime(staleCutoff),
	)
	if err := row.Scan(&s.Total, &s.Live, &s.Retired, &s.SeenToday, &s.CreatedToday, &s.Stale, &s.ReactivationCandidates); err != nil {
		return posting.Stats{}, err
	}
	return s, nil
}

// storeTime normalizes timestamps to UTC microseconds so both drivers compare them consistently.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func nullableText(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func nullableDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
