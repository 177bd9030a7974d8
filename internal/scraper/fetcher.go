package scraper

import (
	"context"
	"errors"
)

var (
	ErrPathDrift  = errors.New("navigation left the listing path")
	ErrBadStatus  = errors.New("unexpected response status")
	ErrEmptyBody  = errors.New("empty response body")
	ErrNilFetcher = errors.New("nil fetcher")
)

// Page is one fetched document. FinalURL is the location after redirects.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       []byte
	Text       string
}

// Fetcher retrieves a single URL. Implementations own their network session
// for the duration of the call or, for long-lived ones, until Close.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, url string) (Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc struct {
	Label string
	Fn    func(ctx context.Context, url string) (Page, error)
}

func (f FetcherFunc) Name() string { return f.Label }

func (f FetcherFunc) Fetch(ctx context.Context, url string) (Page, error) {
	return f.Fn(ctx, url)
}
