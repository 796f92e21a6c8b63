package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"vocalyx/internal/config"
	"vocalyx/internal/models"
	"vocalyx/internal/storage"
	"vocalyx/internal/transcribe"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// TranscriptionHandler exposes transcription submission and polling.
type TranscriptionHandler struct {
	repo  *storage.TranscriptionRepository
	queue *transcribe.Queue
	cfg   *config.Config
}

// NewTranscriptionHandler creates a new TranscriptionHandler.
func NewTranscriptionHandler(repo *storage.TranscriptionRepository, queue *transcribe.Queue, cfg *config.Config) *TranscriptionHandler {
	return &TranscriptionHandler{repo: repo, queue: queue, cfg: cfg}
}

// Create accepts an audio upload and enqueues a transcription job.
// The call returns immediately; callers poll Get for the result.
// POST /api/transcriptions
func (h *TranscriptionHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no audio file provided"})
	}
	if !h.cfg.AllowedExtension(fh.Filename) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unsupported audio format: " + filepath.Ext(fh.Filename)})
	}
	if fh.Size > int64(h.cfg.MaxFileSizeMB)*1024*1024 {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("file exceeds %d MB limit", h.cfg.MaxFileSizeMB),
		})
	}

	translate := c.FormValue("translate") == "true"
	useVAD := c.FormValue("use_vad") != "false" // default on
	enrich := c.FormValue("enrich") != "false"  // default on

	id := uuid.New().String()
	uploadPath := filepath.Join(h.cfg.UploadDir, id+filepath.Ext(fh.Filename))
	if err := saveUpload(fh, uploadPath); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to save file"})
	}

	job := &models.Transcription{
		ID:                  id,
		VADEnabled:          useVAD,
		Translate:           translate,
		EnrichmentRequested: enrich,
	}
	if err := h.repo.Create(ctx, job); err != nil {
		os.Remove(uploadPath)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := h.queue.Submit(transcribe.Job{
		ID:        id,
		Path:      uploadPath,
		Translate: translate,
		UseVAD:    useVAD,
	}); err != nil {
		h.repo.Delete(ctx, id)
		os.Remove(uploadPath)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "service busy, retry later"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"id":     id,
		"status": models.StatusPending,
	})
}

// Get returns a transcription job snapshot.
// GET /api/transcriptions/:id
func (h *TranscriptionHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	job, err := h.repo.GetByID(ctx, c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "transcription not found"})
	}
	return c.JSON(http.StatusOK, job)
}

// List returns the most recent transcriptions.
// GET /api/transcriptions
func (h *TranscriptionHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 10
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	jobs, err := h.repo.ListRecent(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, jobs)
}

// Count returns the total number of transcriptions.
// GET /api/transcriptions/count
func (h *TranscriptionHandler) Count(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.repo.Count(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

// Delete removes a transcription and its enrichment.
// DELETE /api/transcriptions/:id
func (h *TranscriptionHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	job, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if job == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "transcription not found"})
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func saveUpload(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}
