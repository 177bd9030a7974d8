package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserProfile sizes a headless Chrome session. Lighter profiles trade
// fidelity for a smaller footprint.
type BrowserProfile struct {
	Name          string
	Timeout       time.Duration
	Settle        time.Duration
	WindowWidth   int
	WindowHeight  int
	DisableImages bool
	UserAgent     string
}

func FullProfile() BrowserProfile {
	return BrowserProfile{
		Name:         "browser_full",
		Timeout:      45 * time.Second,
		Settle:       2 * time.Second,
		WindowWidth:  1920,
		WindowHeight: 1080,
	}
}

func ReducedProfile() BrowserProfile {
	return BrowserProfile{
		Name:          "browser_reduced",
		Timeout:       20 * time.Second,
		Settle:        500 * time.Millisecond,
		WindowWidth:   1024,
		WindowHeight:  768,
		DisableImages: true,
	}
}

const dismissConsentJS = `(() => {
	const labels = ['accepter', 'accept', 'tillad alle', 'ok'];
	for (const b of document.querySelectorAll('button')) {
		const t = (b.innerText || '').trim().toLowerCase();
		if (labels.some(l => t.startsWith(l))) { b.click(); return true; }
	}
	return false;
})()`

// Browser is a long-lived headless Chrome session. Fetch calls are
// serialized and each opens its own tab. Close releases the process.
type Browser struct {
	profile     BrowserProfile
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	mu          sync.Mutex
	closeOnce   sync.Once
}

func OpenBrowser(ctx context.Context, p BrowserProfile) (*Browser, error) {
	ua := strings.TrimSpace(p.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)
	if p.WindowWidth > 0 && p.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(p.WindowWidth, p.WindowHeight))
	}
	if p.DisableImages {
		opts = append(opts,
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
			chromedp.Flag("disable-remote-fonts", true),
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%s start: %w", p.Name, err)
	}

	return &Browser{profile: p, ctx: browserCtx, cancel: browserCancel, allocCancel: allocCancel}, nil
}

func (b *Browser) Name() string { return b.profile.Name }

func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.cancel()
		b.allocCancel()
	})
	return nil
}

func (b *Browser) Fetch(ctx context.Context, url string) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.ctx)
	defer tabCancel()

	runCtx, runCancel := context.WithTimeout(tabCtx, b.profile.Timeout)
	defer runCancel()
	stop := context.AfterFunc(ctx, runCancel)
	defer stop()

	var html, text, final string
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(dismissConsentJS, nil),
	}
	if b.profile.Settle > 0 {
		actions = append(actions, chromedp.Sleep(b.profile.Settle))
	}
	actions = append(actions,
		chromedp.Location(&final),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, fmt.Errorf("%s %s: %w", b.profile.Name, url, err)
	}
	if final == "" {
		final = url
	}

	return Page{
		URL:        url,
		FinalURL:   final,
		StatusCode: 200,
		HTML:       []byte(html),
		Text:       normalizeSpace(text),
	}, nil
}

// BrowserFetcher opens a fresh Browser for every Fetch and closes it before
// returning, so concurrent callers never share a session.
type BrowserFetcher struct {
	profile BrowserProfile
}

func NewBrowserFetcher(p BrowserProfile) *BrowserFetcher {
	return &BrowserFetcher{profile: p}
}

func (f *BrowserFetcher) Name() string { return f.profile.Name }

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	b, err := OpenBrowser(ctx, f.profile)
	if err != nil {
		return Page{}, err
	}
	defer func() {
		_ = b.Close()
	}()
	return b.Fetch(ctx, url)
}
