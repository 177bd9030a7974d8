// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"jobpulse/internal/domain/posting"
	"jobpulse/internal/repository"

	"github.com/google/uuid"
)

// PostingStore is an in-memory repository.PostingRepository with the same
// write semantics as the SQL implementation. Fail hooks inject errors.
type PostingStore struct {
	mu   sync.Mutex
	rows map[string]posting.Posting

	ExistingCalls int
	FailExisting  func(call int) error
	FailWrite     func(naturalID string) error
}

func NewPostingStore() *PostingStore {
	return &PostingStore{rows: map[string]posting.Posting{}}
}

// Put seeds or replaces a row verbatim.
func (s *PostingStore) Put(p posting.Posting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[p.NaturalID] = p
}

func (s *PostingStore) Snapshot(id string) (posting.Posting, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	return p, ok
}

func (s *PostingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *PostingStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rows))
	for id := range s.rows {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *PostingStore) ExistingIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExistingCalls++
	if s.FailExisting != nil {
		if err := s.FailExisting(s.ExistingCalls); err != nil {
			return nil, err
		}
	}
	out := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *PostingStore) failWrite(id string) error {
	if s.FailWrite == nil {
		return nil
	}
	return s.FailWrite(id)
}

func (s *PostingStore) Insert(_ context.Context, c posting.Candidate, seenAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(c.NaturalID); err != nil {
		return false, err
	}
	if _, ok := s.rows[c.NaturalID]; ok {
		return false, nil
	}
	seenAt = seenAt.UTC()
	s.rows[c.NaturalID] = posting.Posting{
		NaturalID:       c.NaturalID,
		Title:           strings.TrimSpace(c.Title),
		Company:         strings.TrimSpace(c.Company),
		CompanyURL:      strings.TrimSpace(c.CompanyURL),
		Location:        strings.TrimSpace(c.Location),
		Description:     strings.TrimSpace(c.Description),
		PublicationDate: c.PublicationDate,
		LastSeen:        seenAt,
		CreatedAt:       seenAt,
		UpdatedAt:       seenAt,
	}
	return true, nil
}

func fill(dst *string, v string) bool {
	v = strings.TrimSpace(v)
	if strings.TrimSpace(*dst) == "" && v != "" {
		*dst = v
		return true
	}
	return false
}

func (s *PostingStore) Touch(_ context.Context, c posting.Candidate, seenAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(c.NaturalID); err != nil {
		return false, err
	}
	p, ok := s.rows[c.NaturalID]
	if !ok {
		return false, nil
	}
	seenAt = seenAt.UTC()
	if p.LastSeen.Before(seenAt) {
		p.LastSeen = seenAt
	}
	p.RetiredAt = nil
	fill(&p.Title, c.Title)
	fill(&p.Company, c.Company)
	fill(&p.CompanyURL, c.CompanyURL)
	fill(&p.Location, c.Location)
	fill(&p.Description, c.Description)
	if p.PublicationDate == nil {
		p.PublicationDate = c.PublicationDate
	}
	p.UpdatedAt = seenAt
	s.rows[c.NaturalID] = p
	return true, nil
}

func (s *PostingStore) Get(_ context.Context, naturalID string) (posting.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[naturalID]
	if !ok {
		return posting.Posting{}, repository.ErrPostingNotFound
	}
	return p, nil
}

func (s *PostingStore) sorted(keep func(posting.Posting) bool, less func(a, b posting.Posting) bool, limit int) []posting.Posting {
	out := make([]posting.Posting, 0)
	for _, p := range s.rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *PostingStore) ListLive(_ context.Context, limit int) ([]posting.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(posting.Posting.Live, func(a, b posting.Posting) bool {
		switch {
		case a.PublicationDate == nil && b.PublicationDate != nil:
			return true
		case a.PublicationDate != nil && b.PublicationDate == nil:
			return false
		case a.PublicationDate != nil && !a.PublicationDate.Equal(*b.PublicationDate):
			return a.PublicationDate.Before(*b.PublicationDate)
		}
		return a.NaturalID < b.NaturalID
	}, limit), nil
}

func (s *PostingStore) Retire(_ context.Context, naturalID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(naturalID); err != nil {
		return false, err
	}
	p, ok := s.rows[naturalID]
	if !ok || p.RetiredAt != nil {
		return false, nil
	}
	at = at.UTC()
	p.RetiredAt = &at
	p.UpdatedAt = at
	s.rows[naturalID] = p
	return true, nil
}

func (s *PostingStore) CountStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.rows {
		if p.Live() && p.LastSeen.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (s *PostingStore) RetireStale(_ context.Context, cutoff time.Time, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at = at.UTC()
	var n int64
	for id, p := range s.rows {
		if p.Live() && p.LastSeen.Before(cutoff) {
			ts := at
			p.RetiredAt = &ts
			p.UpdatedAt = at
			s.rows[id] = p
			n++
		}
	}
	return n, nil
}

func reactivatable(p posting.Posting) bool {
	return p.RetiredAt != nil && p.LastSeen.After(*p.RetiredAt)
}

func (s *PostingStore) ListReactivationCandidates(_ context.Context, limit int) ([]posting.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(reactivatable, func(a, b posting.Posting) bool {
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.NaturalID < b.NaturalID
	}, limit), nil
}

func (s *PostingStore) Reactivate(_ context.Context, naturalID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(naturalID); err != nil {
		return false, err
	}
	p, ok := s.rows[naturalID]
	if !ok || !reactivatable(p) {
		return false, nil
	}
	p.RetiredAt = nil
	p.UpdatedAt = at.UTC()
	s.rows[naturalID] = p
	return true, nil
}

func missingDetails(p posting.Posting) bool {
	return p.Live() && (strings.TrimSpace(p.Company) == "" ||
		strings.TrimSpace(p.CompanyURL) == "" ||
		strings.TrimSpace(p.Description) == "")
}

func (s *PostingStore) ListMissingDetails(_ context.Context, after *repository.Cursor, limit int) ([]posting.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 200
	}
	keep := func(p posting.Posting) bool {
		if !missingDetails(p) {
			return false
		}
		if after == nil {
			return true
		}
		return p.CreatedAt.Before(after.CreatedAt) ||
			(p.CreatedAt.Equal(after.CreatedAt) && p.NaturalID < after.NaturalID)
	}
	return s.sorted(keep, func(a, b posting.Posting) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.NaturalID > b.NaturalID
	}, limit), nil
}

func (s *PostingStore) Backfill(_ context.Context, naturalID string, d posting.Details, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failWrite(naturalID); err != nil {
		return false, err
	}
	p, ok := s.rows[naturalID]
	if !ok {
		return false, nil
	}
	changed := fill(&p.Title, d.Title)
	changed = fill(&p.Company, d.Company) || changed
	changed = fill(&p.CompanyURL, d.CompanyURL) || changed
	changed = fill(&p.Location, d.Location) || changed
	changed = fill(&p.Description, d.Description) || changed
	if !changed {
		return false, nil
	}
	p.UpdatedAt = at.UTC()
	s.rows[naturalID] = p
	return true, nil
}

func (s *PostingStore) Stats(_ context.Context, dayStart time.Time, staleCutoff time.Time) (posting.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st posting.Stats
	for _, p := range s.rows {
		st.Total++
		if p.Live() {
			st.Live++
			if p.LastSeen.Before(staleCutoff) {
				st.Stale++
			}
		} else {
			st.Retired++
		}
		if !p.LastSeen.Before(dayStart) {
			st.SeenToday++
		}
		if !p.CreatedAt.Before(dayStart) {
			st.CreatedToday++
		}
		if reactivatable(p) {
			st.ReactivationCandidates++
		}
	}
	return st, nil
}

// RunStore is an in-memory repository.RunRepository.
type RunStore struct {
	mu   sync.Mutex
	runs []posting.Run
	Logs []string
}

func NewRunStore() *RunStore {
	return &RunStore{}
}

func (s *RunStore) Create(_ context.Context, kind posting.RunKind) (posting.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := posting.Run{ID: uuid.NewString(), Kind: kind, Status: posting.RunRunning, StartedAt: time.Now().UTC()}
	s.runs = append(s.runs, run)
	return run, nil
}

func (s *RunStore) Finish(_ context.Context, runID string, status posting.RunStatus, stopReason string, counts posting.RunCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == runID {
			now := time.Now().UTC()
			s.runs[i].Status = status
			s.runs[i].StopReason = stopReason
			s.runs[i].Counts = counts
			s.runs[i].FinishedAt = &now
			return nil
		}
	}
	return repository.ErrRunNotFound
}

func (s *RunStore) Log(_ context.Context, runID string, level string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Logs = append(s.Logs, level+": "+message)
	return nil
}

func (s *RunStore) ListRecent(_ context.Context, limit int) ([]posting.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]posting.Run, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		out = append(out, s.runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *RunStore) Latest(_ context.Context, kind posting.RunKind) (posting.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.runs) - 1; i >= 0; i-- {
		if s.runs[i].Kind == kind {
			return s.runs[i], nil
		}
	}
	return posting.Run{}, repository.ErrRunNotFound
}

var ErrInjected = errors.New("injected failure")
