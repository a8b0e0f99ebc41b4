// Package scraper renders script-driven pages in headless Chrome and returns
// the resulting HTML, for listings that ship an empty shell to plain HTTP clients.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer turns a URL into rendered HTML.
type Renderer interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// Chrome renders pages with a headless Chrome started per call.
type Chrome struct {
	UserAgent string
	Timeout   time.Duration // whole render, including browser start. Default: 90s.
	Settle    time.Duration // pause after load for late requests. Default: 3s.
}

// Render navigates to url, waits for waitSelector (when set) and returns the page's outer HTML.
func (c *Chrome) Render(ctx context.Context, url, waitSelector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	settle := c.Settle
	if settle <= 0 {
		settle = 3 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}
	var html string
	actions = append(actions,
		chromedp.Sleep(settle),
		// Scroll to bottom to trigger lazy load
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp render %s: %w", url, err)
	}
	return html, nil
}
