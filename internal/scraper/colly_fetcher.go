package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

type CollyOptions struct {
	Name           string
	Timeout        time.Duration
	AllowedDomains []string
	MaxBodySize    int
}

// CollyFetcher is the plain HTTP strategy. Each Fetch builds its own
// collector so calls share no cookies or visited state.
type CollyFetcher struct {
	name    string
	timeout time.Duration
	allowed []string
	maxBody int
}

func NewCollyFetcher(opts CollyOptions) *CollyFetcher {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "http"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &CollyFetcher{name: name, timeout: timeout, allowed: opts.AllowedDomains, maxBody: maxBody}
}

func (f *CollyFetcher) Name() string { return f.name }

func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.MaxBodySize(f.maxBody),
	)
	if len(f.allowed) > 0 {
		c.AllowedDomains = f.allowed
	}
	timeout := f.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	c.SetRequestTimeout(timeout)

	page := Page{URL: rawURL}
	var reqErr error

	c.OnRequest(func(r *colly.Request) {
		for k, v := range httpHeaders() {
			r.Headers.Set(k, v)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.FinalURL = r.Request.URL.String()
		page.HTML = append([]byte(nil), r.Body...)
	})

	c.OnError(func(r *colly.Response, err error) {
		reqErr = err
		if r != nil {
			page.StatusCode = r.StatusCode
		}
	})

	visitErr := c.Visit(rawURL)
	c.Wait()

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	if reqErr != nil {
		if page.StatusCode >= 300 {
			return Page{}, fmt.Errorf("%s %s: %w %d: %v", f.name, rawURL, ErrBadStatus, page.StatusCode, reqErr)
		}
		return Page{}, fmt.Errorf("%s %s: %w", f.name, rawURL, reqErr)
	}
	if visitErr != nil {
		return Page{}, fmt.Errorf("%s %s: %w", f.name, rawURL, visitErr)
	}
	if len(page.HTML) == 0 {
		return Page{}, fmt.Errorf("%s %s: %w", f.name, rawURL, ErrEmptyBody)
	}
	if page.FinalURL == "" {
		page.FinalURL = rawURL
	}
	page.Text = documentText(page.HTML)
	return page, nil
}
