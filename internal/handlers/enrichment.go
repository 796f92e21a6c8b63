package handlers

import (
	"net/http"
	"strconv"

	"vocalyx/internal/models"
	"vocalyx/internal/storage"

	"github.com/labstack/echo/v4"
)

// EnrichmentHandler exposes enrichment job control and inspection.
type EnrichmentHandler struct {
	enrichments    *storage.EnrichmentRepository
	transcriptions *storage.TranscriptionRepository
}

// NewEnrichmentHandler creates a new EnrichmentHandler.
func NewEnrichmentHandler(enrichments *storage.EnrichmentRepository, transcriptions *storage.TranscriptionRepository) *EnrichmentHandler {
	return &EnrichmentHandler{enrichments: enrichments, transcriptions: transcriptions}
}

// Trigger requests enrichment for a finished transcription. Calling it
// again for the same transcription returns the existing job.
// POST /api/enrichment/trigger/:transcription_id
func (h *EnrichmentHandler) Trigger(c echo.Context) error {
	ctx := c.Request().Context()
	tid := c.Param("transcription_id")

	t, err := h.transcriptions.GetByID(ctx, tid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if t == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "transcription not found"})
	}

	if existing, err := h.enrichments.GetByTranscriptionID(ctx, tid); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	} else if existing != nil {
		return c.JSON(http.StatusOK, existing)
	}

	if t.Status != models.StatusDone {
		return c.JSON(http.StatusConflict, map[string]string{"error": "transcription is not finished"})
	}
	if t.Text == nil || *t.Text == "" {
		return c.JSON(http.StatusConflict, map[string]string{"error": "transcription has no text"})
	}

	job, err := h.enrichments.Create(ctx, tid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, job)
}

// Get returns the enrichment job for a transcription.
// GET /api/enrichment/:transcription_id
func (h *EnrichmentHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	job, err := h.enrichments.GetByTranscriptionID(ctx, c.Param("transcription_id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "enrichment not found"})
	}
	return c.JSON(http.StatusOK, job)
}

// Retry requeues a failed enrichment job.
// POST /api/enrichment/:transcription_id/retry
func (h *EnrichmentHandler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	tid := c.Param("transcription_id")

	job, err := h.enrichments.GetByTranscriptionID(ctx, tid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "enrichment not found"})
	}

	ok, err := h.enrichments.Retry(ctx, job.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !ok {
		return c.JSON(http.StatusConflict, map[string]string{"error": "enrichment is not in error state"})
	}

	job, err = h.enrichments.GetByID(ctx, job.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, job)
}

// ListPending returns enrichment jobs waiting for a worker, oldest first.
// GET /api/enrichment/pending
func (h *EnrichmentHandler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	jobs, err := h.enrichments.ListPending(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, jobs)
}

// Stats returns aggregate enrichment counters.
// GET /api/enrichment/stats
func (h *EnrichmentHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	stats, err := h.enrichments.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}
