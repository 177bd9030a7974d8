package scraper

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"jobpulse/internal/domain/posting"

	"github.com/PuerkitoBio/goquery"
)

const (
	minParagraph   = 40
	minDescription = 20
)

var (
	companySuffixRe = regexp.MustCompile(`([A-ZÆØÅ][\wÆØÅæøå&.\-]*(?:\s+[A-ZÆØÅ0-9][\wÆØÅæøå&.\-]*){0,3})\s+(?:A/S|ApS)\b`)
	introRe         = regexp.MustCompile(`(?i)(?:vi søger|we are looking for|we seek|jobbet|the position|the role|ansvar|responsibilities|duties)[^\n]*`)

	boilerplate = []string{
		"indrykket:",
		"hentet fra",
		"se jobbet",
		"anbefalede job",
		"for jobsøgere",
		"for arbejdsgivere",
		"log ind",
		"opret profil",
	}
	boilerplateRe = boilerplatePattern(boilerplate)
)

func boilerplatePattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}

// ParseDetail reads the descriptive fields of a single posting page. Fields
// it cannot find are left empty.
func ParseDetail(html []byte, pageURL string) (posting.Details, error) {
	var d posting.Details
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return d, fmt.Errorf("parse detail page: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	d.Title = detailTitle(doc)

	if comp := doc.Find(".jix-toolbar-top__company").First(); comp.Length() > 0 {
		d.Company = strings.TrimSpace(strings.TrimSuffix(normalizeSpace(comp.Text()), " søger for kunde"))
		if href, ok := comp.Find("a[href]").First().Attr("href"); ok {
			d.CompanyURL = absoluteURL(pageURL, href)
		}
	}
	if d.Company == "" {
		if m := companySuffixRe.FindStringSubmatch(normalizeSpace(doc.Find("body").Text())); m != nil {
			d.Company = normalizeSpace(m[1])
		}
	}

	d.Description = detailDescription(doc)
	d.Location = normalizeSpace(doc.Find(".jix_robotjob--area, .location, .job-location, .place").First().Text())

	return d, nil
}

func detailTitle(doc *goquery.Document) string {
	var title string
	for _, sel := range []string{"h1.sr-only", "h4 a", "h1"} {
		if t := normalizeSpace(doc.Find(sel).First().Text()); t != "" {
			title = t
			break
		}
	}
	if title == "" {
		pt := normalizeSpace(doc.Find("title").First().Text())
		if i := strings.Index(pt, " | Job"); i > 0 {
			title = strings.TrimSpace(pt[:i])
		}
	}
	return strings.TrimSpace(strings.TrimPrefix(title, "Jobannonce: "))
}

func detailDescription(doc *goquery.Document) string {
	var desc string

	primary := doc.Find(".jix_robotjob-inner").First()
	primary.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if t := normalizeSpace(p.Text()); utf8.RuneCountInString(t) > minParagraph {
			desc = t
			return false
		}
		return true
	})

	if desc == "" {
		content := doc.Find(".PaidJob-inner, .PaginatedJob-inner").First()
		if content.Length() == 0 {
			content = primary
		}
		var parts []string
		content.Find("p").Each(func(_ int, p *goquery.Selection) {
			if t := normalizeSpace(p.Text()); utf8.RuneCountInString(t) > minParagraph {
				parts = append(parts, t)
			}
		})
		desc = strings.Join(parts, " ")
	}

	if desc == "" {
		for _, m := range introRe.FindAllString(doc.Find("body").Text(), -1) {
			if t := normalizeSpace(m); utf8.RuneCountInString(t) > minParagraph {
				desc = t
				break
			}
		}
	}

	if desc == "" {
		desc = normalizeSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	}

	desc = stripBoilerplate(desc)
	if utf8.RuneCountInString(desc) < minDescription {
		return ""
	}
	return desc
}

// stripBoilerplate cuts the text at the first site navigation phrase.
func stripBoilerplate(s string) string {
	loc := boilerplateRe.FindStringIndex(s)
	if loc == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:loc[0]])
}
