package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"firmfeed/internal/models"
)

// RemoteEnricher calls an external enrichment API over HTTP. The whole batch
// is sent in one request; the service answers with one verdict per record.
type RemoteEnricher struct {
	endpoint string
	client   *http.Client
}

// NewRemoteEnricher creates a RemoteEnricher for the given endpoint.
func NewRemoteEnricher(endpoint string, timeout time.Duration) (*RemoteEnricher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("enrichment endpoint not configured")
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RemoteEnricher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type remoteRequest struct {
	Records []remoteRecord `json:"records"`
}

type remoteRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url"`
	Website    string `json:"website"`
}

type remoteResponse struct {
	Results []RowResult `json:"results"`
}

// Enrich posts the records to the remote service and decodes its verdicts.
// A transport or non-2xx error is a total failure: no row was processed.
func (e *RemoteEnricher) Enrich(ctx context.Context, records []models.Record) ([]RowResult, error) {
	reqBody := remoteRequest{Records: make([]remoteRecord, 0, len(records))}
	for _, rec := range records {
		reqBody.Records = append(reqBody.Records, remoteRecord{
			ID:         rec.ID,
			Name:       rec.Name,
			ProfileURL: rec.ProfileURL,
			Website:    rec.Website,
		})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("enrichment service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment response: %w", err)
	}
	return decoded.Results, nil
}
