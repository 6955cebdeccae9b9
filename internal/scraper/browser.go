package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// RenderOptions controls how a page is rendered
type RenderOptions struct {
	Visible bool          // show the browser window
	Timeout time.Duration // whole render, default 2m
	Settle  time.Duration // wait after load for charts to draw, default 3s
}

// RenderPage loads pageURL in headless Chrome with the given session cookies
// and returns the rendered document HTML
func RenderPage(ctx context.Context, pageURL string, cookies []*http.Cookie, opts RenderOptions) (string, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Settle <= 0 {
		opts.Settle = 3 * time.Second
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing page URL: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.Visible),
		chromedp.Flag("no-sandbox", true),            // Required for running as root on Linux
		chromedp.Flag("disable-gpu", true),           // Recommended for headless Linux
		chromedp.Flag("disable-dev-shm-usage", true), // Avoid /dev/shm issues on Linux
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(browserUserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, opts.Timeout)
	defer cancel()

	if err := SetCookies(browserCtx, ToBrowserCookies(u, cookies)); err != nil {
		return "", fmt.Errorf("setting cookies: %w", err)
	}

	var rendered string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(opts.Settle),
		chromedp.OuterHTML("html", &rendered, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("rendering %s: %w", pageURL, err)
	}

	return rendered, nil
}

// BrowserCookie is a cookie ready to be set in the browser
type BrowserCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
}

// ToBrowserCookies scopes HTTP session cookies to the page host. Set-Cookie
// values often carry no domain or path, which Chrome requires.
func ToBrowserCookies(pageURL *url.URL, cookies []*http.Cookie) []BrowserCookie {
	result := make([]BrowserCookie, 0, len(cookies))
	for _, c := range cookies {
		bc := BrowserCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if bc.Domain == "" {
			bc.Domain = pageURL.Hostname()
		}
		if bc.Path == "" {
			bc.Path = "/"
		}
		result = append(result, bc)
	}
	return result
}

// SetCookies sets cookies in the browser context
func SetCookies(ctx context.Context, cookies []BrowserCookie) error {
	if len(cookies) == 0 {
		return nil
	}

	for _, c := range cookies {
		expr := network.SetCookie(c.Name, c.Value).
			WithDomain(c.Domain).
			WithPath(c.Path).
			WithHTTPOnly(c.HTTPOnly).
			WithSecure(c.Secure)
		if !c.Expires.IsZero() {
			expires := cdp.TimeSinceEpoch(c.Expires)
			expr = expr.WithExpires(&expires)
		}

		if err := chromedp.Run(ctx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				return expr.Do(ctx)
			}),
		); err != nil {
			return fmt.Errorf("setting cookie %s: %w", c.Name, err)
		}
	}

	return nil
}
