package enrich

import (
	"context"
	"time"

	"firmfeed/internal/models"
	"firmfeed/internal/webfetch"
)

// WebFetchEnricher verifies each record's URL by fetching the page through a
// headless browser and canonicalizes the website to the final URL after
// redirects. Field extraction beyond that is left to the remote service.
type WebFetchEnricher struct {
	client  *webfetch.Client
	timeout time.Duration
}

// NewWebFetchEnricher creates a WebFetchEnricher and starts the browser.
func NewWebFetchEnricher(opts *webfetch.Options, timeout time.Duration) (*WebFetchEnricher, error) {
	client, err := webfetch.NewClient(opts)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WebFetchEnricher{client: client, timeout: timeout}, nil
}

// Close shuts the browser down.
func (e *WebFetchEnricher) Close() error {
	return e.client.Close()
}

// Enrich fetches each record's site (falling back to the profile URL) one at
// a time; the browser session is not safe for parallel page loads. Fetch
// failures are per-row verdicts, not batch failures.
func (e *WebFetchEnricher) Enrich(ctx context.Context, records []models.Record) ([]RowResult, error) {
	results := make([]RowResult, 0, len(records))
	for _, rec := range records {
		url := rec.Website
		if url == "" {
			url = rec.ProfileURL
		}
		if url == "" {
			results = append(results, RowResult{
				RecordID: rec.ID,
				OK:       false,
				Error:    "record has no URL to fetch",
			})
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, e.timeout)
		page, err := e.client.FetchHTML(fetchCtx, url, nil)
		cancel()
		if err != nil {
			results = append(results, RowResult{
				RecordID: rec.ID,
				OK:       false,
				Error:    "fetch failed: " + err.Error(),
			})
			continue
		}

		results = append(results, RowResult{
			RecordID: rec.ID,
			OK:       true,
			Website:  page.URL,
		})
	}
	return results, nil
}
