// Package enrich defines the enrichment service boundary. An Enricher takes
// canonical records and returns a per-row verdict; individual rows may fail
// without failing the batch. An error from Enrich means nothing was
// processed at all.
package enrich

import (
	"context"

	"firmfeed/internal/models"
)

// RowResult is the verdict for a single record. Field values are optional;
// empty values leave the stored record untouched.
type RowResult struct {
	RecordID    string `json:"record_id"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
	Website     string `json:"website,omitempty"`
	CompanySize string `json:"company_size,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Revenue     string `json:"revenue,omitempty"`
}

// Enricher augments canonical records. Implementations must tolerate being
// called again with the same records; duplicate invocation safety is handled
// upstream.
type Enricher interface {
	Enrich(ctx context.Context, records []models.Record) ([]RowResult, error)
}
