package posting

import (
	"strings"
	"time"
)

// Posting is one stored listing, keyed by NaturalID.
//
// Descriptive fields are backfill-only: once non-empty they are never
// replaced by a later sighting. LastSeen never decreases. A posting is live
// iff RetiredAt is nil.
type Posting struct {
	NaturalID       string
	Title           string
	Company         string
	CompanyURL      string
	Location        string
	Description     string
	PublicationDate *time.Time

	LastSeen  time.Time
	RetiredAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	// Owned by external collaborators; read-only here.
	RelevanceScore     *int
	ScoredAt           *time.Time
	ContentHash        *string
	EmbeddingCreatedAt *time.Time
	Region             *string
}

func (p Posting) Live() bool {
	return p.RetiredAt == nil
}

// Candidate is a posting as extracted from a single listing element.
type Candidate struct {
	NaturalID       string
	Title           string
	Company         string
	CompanyURL      string
	Location        string
	Description     string
	PublicationDate *time.Time
}

// Merge fills empty fields of c from other. Non-empty fields of c win.
func (c Candidate) Merge(other Candidate) Candidate {
	c.Title = pick(c.Title, other.Title)
	c.Company = pick(c.Company, other.Company)
	c.CompanyURL = pick(c.CompanyURL, other.CompanyURL)
	c.Location = pick(c.Location, other.Location)
	c.Description = pick(c.Description, other.Description)
	if c.PublicationDate == nil {
		c.PublicationDate = other.PublicationDate
	}
	return c
}

func pick(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// MergeByID collapses candidates sharing a natural id, keeping first-seen order.
func MergeByID(cands []Candidate) []Candidate {
	idx := make(map[string]int, len(cands))
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		id := strings.TrimSpace(c.NaturalID)
		if id == "" {
			continue
		}
		c.NaturalID = id
		if i, ok := idx[id]; ok {
			out[i] = out[i].Merge(c)
			continue
		}
		idx[id] = len(out)
		out = append(out, c)
	}
	return out
}

// Details is the descriptive subset written by the detail backfiller.
type Details struct {
	Title       string
	Company     string
	CompanyURL  string
	Location    string
	Description string
}

func (d Details) Empty() bool {
	return strings.TrimSpace(d.Title) == "" &&
		strings.TrimSpace(d.Company) == "" &&
		strings.TrimSpace(d.CompanyURL) == "" &&
		strings.TrimSpace(d.Location) == "" &&
		strings.TrimSpace(d.Description) == ""
}

type Verdict int

const (
	Valid Verdict = iota
	Expired
)

func (v Verdict) String() string {
	if v == Expired {
		return "expired"
	}
	return "valid"
}

type Stats struct {
	Total                  int64 `json:"total"`
	Live                   int64 `json:"live"`
	Retired                int64 `json:"retired"`
	SeenToday              int64 `json:"seen_today"`
	CreatedToday           int64 `json:"created_today"`
	Stale                  int64 `json:"stale"`
	ReactivationCandidates int64 `json:"reactivation_candidates"`
}
