package scraper

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Continuation derives the next listing URL from the current one.
type Continuation interface {
	Next(current string, page Page) (string, bool)
}

// PageParam increments a numeric query parameter. A missing parameter counts as page 1.
type PageParam struct {
	Param string
}

func (p PageParam) Next(current string, _ Page) (string, bool) {
	param := strings.TrimSpace(p.Param)
	if param == "" {
		return "", false
	}
	u, err := url.Parse(strings.TrimSpace(current))
	if err != nil || u.Host == "" {
		return "", false
	}
	q := u.Query()
	n := 1
	if v := strings.TrimSpace(q.Get(param)); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil || n < 1 {
			return "", false
		}
	}
	q.Set(param, strconv.Itoa(n+1))
	u.RawQuery = q.Encode()
	return u.String(), true
}

// NextLink follows a "next" control found inside one of the pagination containers.
type NextLink struct {
	Containers []string
	Labels     []string
}

func DefaultNextLink() NextLink {
	return NextLink{
		Containers: []string{".jix_pagination", `nav[aria-label="Pagination"]`, ".pagination"},
		Labels:     []string{"næste", "next"},
	}
}

func (n NextLink) Next(current string, page Page) (string, bool) {
	if len(page.HTML) == 0 {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return "", false
	}
	base := page.FinalURL
	if base == "" {
		base = current
	}

	for _, container := range n.Containers {
		scope := doc.Find(container)
		if scope.Length() == 0 {
			continue
		}
		if href, ok := scope.Find(`a[rel="next"]`).First().Attr("href"); ok {
			if next := absoluteURL(base, href); next != "" {
				return next, true
			}
		}
		var found string
		scope.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			label := strings.ToLower(normalizeSpace(a.Text() + " " + a.AttrOr("aria-label", "") + " " + a.AttrOr("title", "")))
			for _, l := range n.Labels {
				if strings.Contains(label, l) {
					found = absoluteURL(base, a.AttrOr("href", ""))
					return found == ""
				}
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// Chain tries each continuation in order.
type Chain []Continuation

func (c Chain) Next(current string, page Page) (string, bool) {
	for _, cont := range c {
		if cont == nil {
			continue
		}
		if next, ok := cont.Next(current, page); ok {
			return next, true
		}
	}
	return "", false
}
