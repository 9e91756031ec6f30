package webfetch

import (
	"context"
	"time"

	"github.com/naozine/nz-html-fetch/pkg/htmlfetch"
)

// Client fetches web pages through a headless browser. It is shared by all
// concurrently running enrichment jobs; htmlfetch serializes page access
// internally.
type Client struct {
	fetcher *htmlfetch.Fetcher
}

// Options configure client creation.
type Options struct {
	Stealth     bool   // bot detection evasion
	Proxy       string // proxy address
	BrowserPath string // browser binary path
}

// FetchOptions configure a single fetch.
type FetchOptions struct {
	BlockAds    bool
	BlockImages bool
	WaitTime    time.Duration // selector wait timeout
	Selector    string        // selector to wait for
}

// NewClient creates a client and starts the browser.
func NewClient(opts *Options) (*Client, error) {
	var fetcherOpts []htmlfetch.Option

	if opts != nil {
		if opts.BrowserPath != "" {
			fetcherOpts = append(fetcherOpts, htmlfetch.WithBrowserPath(opts.BrowserPath))
		}
		if opts.Proxy != "" {
			fetcherOpts = append(fetcherOpts, htmlfetch.WithProxy(opts.Proxy))
		}
		fetcherOpts = append(fetcherOpts, htmlfetch.WithStealth(opts.Stealth))
	}

	fetcher := htmlfetch.New(fetcherOpts...)
	if err := fetcher.Start(); err != nil {
		return nil, err
	}
	return &Client{fetcher: fetcher}, nil
}

// Close shuts the browser down.
func (c *Client) Close() error {
	if c.fetcher != nil {
		return c.fetcher.Close()
	}
	return nil
}

// FetchHTML fetches the page at url and returns its HTML together with the
// final URL after redirects.
func (c *Client) FetchHTML(ctx context.Context, url string, opts *FetchOptions) (*Result, error) {
	result, err := c.fetcher.Fetch(ctx, url, buildFetchOptions(opts)...)
	if err != nil {
		return nil, err
	}
	return &Result{
		URL:      result.FinalURL,
		Content:  result.HTML,
		Duration: result.Duration,
	}, nil
}

func buildFetchOptions(opts *FetchOptions) []htmlfetch.FetchOption {
	var fetchOpts []htmlfetch.FetchOption
	if opts == nil {
		return fetchOpts
	}

	if opts.BlockAds || opts.BlockImages {
		blocking := htmlfetch.BlockingOptions{
			Ads:   opts.BlockAds,
			Image: opts.BlockImages,
		}
		fetchOpts = append(fetchOpts, htmlfetch.WithBlocking(blocking))
	}

	if opts.Selector != "" {
		timeout := 30 * time.Second
		if opts.WaitTime > 0 {
			timeout = opts.WaitTime
		}
		fetchOpts = append(fetchOpts, htmlfetch.WithSelector(opts.Selector, timeout))
	}

	return fetchOpts
}
