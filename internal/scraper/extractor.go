package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"jobpulse/internal/domain/posting"

	"github.com/PuerkitoBio/goquery"
)

// Selectors describes where listing fields live. Listing entries are tried in
// order and the first one matching anything wins.
type Selectors struct {
	Listing     []string
	IDPrefix    string
	IDAttrs     []string
	DetailLink  string
	Title       string
	Company     string
	Location    string
	Date        string
	Description string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Listing: []string{
			`[id^="jobad-wrapper-"]`,
			".job-listing",
			".job-item",
			`[data-testid="job-listing"]`,
			".job-card",
			".job-ad",
		},
		IDPrefix:    "jobad-wrapper-",
		IDAttrs:     []string{"data-jobid", "data-id"},
		DetailLink:  `a[href*="/vis-job/"], a[href*="/job/"], a[href*="/jobannonce/"]`,
		Title:       "h4 a, .job-title a, .title a, h4, .job-title",
		Company:     ".jix-toolbar-top__company, .company, .employer, .job-company",
		Location:    ".jix_robotjob--area, .location, .job-location, .place",
		Date:        "time, .date, .job-date, .published",
		Description: ".jix_robotjob--description, .description, .job-description, .summary, .job-summary",
	}
}

var digitRe = regexp.MustCompile(`\d`)

// Extractor turns one listing page into candidates.
type Extractor struct {
	sel Selectors
}

func NewExtractor(sel Selectors) *Extractor {
	if len(sel.Listing) == 0 {
		sel = DefaultSelectors()
	}
	return &Extractor{sel: sel}
}

// Extract parses exactly the given page. Elements without a natural id are
// dropped; a missing or unparseable date falls back to now's calendar day.
func (e *Extractor) Extract(html []byte, pageURL string, now time.Time) ([]posting.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var items *goquery.Selection
	for _, sel := range e.sel.Listing {
		s := doc.Find(sel)
		if s.Length() > 0 {
			items = s
			break
		}
	}
	if items == nil {
		return nil, nil
	}

	today := calendarDay(now)
	out := make([]posting.Candidate, 0, items.Length())
	items.Each(func(_ int, s *goquery.Selection) {
		id := e.naturalID(s)
		if id == "" {
			return
		}

		c := posting.Candidate{
			NaturalID:   id,
			Title:       firstText(s, e.sel.Title),
			Location:    firstText(s, e.sel.Location),
			Description: firstText(s, e.sel.Description),
		}

		if comp := s.Find(e.sel.Company).First(); comp.Length() > 0 {
			c.Company = normalizeSpace(comp.Text())
			link := comp.Find("a[href]").First()
			if link.Length() == 0 && comp.Is("a[href]") {
				link = comp
			}
			if href, ok := link.Attr("href"); ok {
				c.CompanyURL = absoluteURL(pageURL, href)
			}
		}

		published := today
		if d := s.Find(e.sel.Date).First(); d.Length() > 0 {
			raw := d.Text()
			if dt, ok := d.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
				raw = dt
			}
			if t, ok := ParsePublicationDate(raw, now); ok {
				published = t
			}
		}
		c.PublicationDate = &published

		out = append(out, c)
	})

	return out, nil
}

func (e *Extractor) naturalID(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && e.sel.IDPrefix != "" && strings.HasPrefix(id, e.sel.IDPrefix) {
		if v := strings.TrimSpace(strings.TrimPrefix(id, e.sel.IDPrefix)); v != "" {
			return v
		}
	}
	for _, attr := range e.sel.IDAttrs {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if e.sel.DetailLink == "" {
		return ""
	}
	href, ok := s.Find(e.sel.DetailLink).First().Attr("href")
	if !ok {
		return ""
	}
	return idFromDetailLink(href)
}

// idFromDetailLink returns the last path segment that contains a digit.
func idFromDetailLink(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		p := strings.TrimSpace(parts[i])
		if p != "" && digitRe.MatchString(p) {
			return p
		}
	}
	return ""
}

func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return normalizeSpace(s.Find(selector).First().Text())
}
