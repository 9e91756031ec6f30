package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"firmfeed/internal/normalize"
	"firmfeed/internal/pipeline"
	"firmfeed/internal/storage"
)

// UploadHandler is the HTTP handler for the upload API.
type UploadHandler struct {
	proc    *pipeline.Processor
	uploads *storage.UploadRepository
	jobs    *storage.JobRepository
	records *storage.RecordRepository
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(proc *pipeline.Processor, uploads *storage.UploadRepository, jobs *storage.JobRepository, records *storage.RecordRepository) *UploadHandler {
	return &UploadHandler{proc: proc, uploads: uploads, jobs: jobs, records: records}
}

// Submit accepts a payload (multipart file, JSON body, or raw body) and
// queues it for processing. A payload the normalizer rejects is a 400; the
// enqueued upload id comes back with 202.
func (h *UploadHandler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	submitter := c.FormValue("submitter")
	if submitter == "" {
		submitter = c.Request().Header.Get("X-Submitter")
	}
	if submitter == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "submitter is required"})
	}

	payload, filename, err := readPayload(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	uploadID, err := h.proc.Submit(ctx, payload, filename, submitter)
	if err != nil {
		var formatErr *normalize.FormatError
		if errors.As(err, &formatErr) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": formatErr.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"upload_id": uploadID})
}

// readPayload extracts the submitted payload. JSON bodies are decoded so the
// normalizer sees the structured value; everything else stays raw bytes.
func readPayload(c echo.Context) (any, string, error) {
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		return b, file.Filename, nil
	}

	b, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, "", err
	}

	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEApplicationJSON) {
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, "", errors.New("request body is not valid JSON")
		}
		return v, "payload.json", nil
	}
	return b, "payload", nil
}

// Status reports an upload's status together with its job's success and
// failure counts.
func (h *UploadHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	upload, err := h.uploads.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if upload == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "upload not found"})
	}

	resp := map[string]any{
		"upload_id": upload.ID,
		"status":    upload.Status,
		"row_count": upload.RowCount,
		"error":     upload.Error,
	}
	job, err := h.jobs.GetByUploadID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if job != nil {
		resp["success_count"] = job.SuccessCount
		resp["failure_count"] = job.FailureCount
	}

	counts, err := h.records.CountByStatus(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	resp["records"] = counts
	return c.JSON(http.StatusOK, resp)
}

// ListPending returns pending uploads, optionally scoped to one submitter.
func (h *UploadHandler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()
	submitter := c.QueryParam("submitter")

	uploads, err := h.uploads.ListPending(ctx, submitter)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, uploads)
}
