package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"vocalyx/internal/config"
	"vocalyx/internal/models"
	"vocalyx/internal/storage"
	"vocalyx/internal/transcribe"

	"github.com/labstack/echo/v4"
)

func newTestHandlers(t *testing.T) (*TranscriptionHandler, *EnrichmentHandler, *storage.TranscriptionRepository, *storage.EnrichmentRepository) {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	transcriptions := storage.NewTranscriptionRepository(db)
	enrichments := storage.NewEnrichmentRepository(db)

	cfg := &config.Config{
		UploadDir:         filepath.Join(dir, "uploads"),
		MaxFileSizeMB:     1,
		AllowedExtensions: map[string]bool{"wav": true, "mp3": true},
	}
	// Queue without a consumer: submissions stay buffered, which is all
	// the handler needs.
	queue := transcribe.NewQueue(nil, 4)

	th := NewTranscriptionHandler(transcriptions, queue, cfg)
	eh := NewEnrichmentHandler(enrichments, transcriptions)
	return th, eh, transcriptions, enrichments
}

func multipartUpload(t *testing.T, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write([]byte("RIFF fake audio"))
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func doRequest(e *echo.Echo, method, target, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateTranscription(t *testing.T) {
	th, _, repo, _ := newTestHandlers(t)
	e := echo.New()
	e.POST("/api/transcriptions", th.Create)

	body, contentType := multipartUpload(t, "call.wav", map[string]string{"translate": "true"})
	rec := doRequest(e, http.MethodPost, "/api/transcriptions", contentType, body)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if resp["status"] != models.StatusPending {
		t.Errorf("status = %q, want pending", resp["status"])
	}

	job, err := repo.GetByID(context.Background(), resp["id"])
	if err != nil || job == nil {
		t.Fatalf("Job not persisted: %v", err)
	}
	if !job.Translate {
		t.Error("Translate flag not recorded")
	}
	if !job.VADEnabled || !job.EnrichmentRequested {
		t.Error("VAD and enrichment should default to on")
	}
}

func TestCreateTranscriptionRejectsExtension(t *testing.T) {
	th, _, _, _ := newTestHandlers(t)
	e := echo.New()
	e.POST("/api/transcriptions", th.Create)

	body, contentType := multipartUpload(t, "malware.exe", nil)
	rec := doRequest(e, http.MethodPost, "/api/transcriptions", contentType, body)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func TestGetTranscriptionNotFound(t *testing.T) {
	th, _, _, _ := newTestHandlers(t)
	e := echo.New()
	e.GET("/api/transcriptions/:id", th.Get)

	rec := doRequest(e, http.MethodGet, "/api/transcriptions/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

func finishTranscription(t *testing.T, repo *storage.TranscriptionRepository) string {
	t.Helper()
	ctx := context.Background()
	job := &models.Transcription{EnrichmentRequested: true}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	repo.Claim(ctx, job.ID, false)
	if err := repo.Complete(ctx, job.ID, &storage.TranscriptionResult{Text: "texte de l'appel"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	return job.ID
}

func TestTriggerEnrichmentIdempotent(t *testing.T) {
	_, eh, transcriptions, _ := newTestHandlers(t)
	e := echo.New()
	e.POST("/api/enrichment/trigger/:transcription_id", eh.Trigger)

	tid := finishTranscription(t, transcriptions)

	rec := doRequest(e, http.MethodPost, "/api/enrichment/trigger/"+tid, "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("First trigger = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var first models.Enrichment
	json.Unmarshal(rec.Body.Bytes(), &first)

	rec = doRequest(e, http.MethodPost, "/api/enrichment/trigger/"+tid, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Second trigger = %d, want 200", rec.Code)
	}
	var second models.Enrichment
	json.Unmarshal(rec.Body.Bytes(), &second)

	if first.ID != second.ID {
		t.Errorf("Triggers created two jobs: %d and %d", first.ID, second.ID)
	}
}

func TestTriggerEnrichmentUnfinished(t *testing.T) {
	_, eh, transcriptions, _ := newTestHandlers(t)
	e := echo.New()
	e.POST("/api/enrichment/trigger/:transcription_id", eh.Trigger)

	job := &models.Transcription{}
	transcriptions.Create(context.Background(), job)

	rec := doRequest(e, http.MethodPost, "/api/enrichment/trigger/"+job.ID, "", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Status = %d, want 409 for a pending transcription", rec.Code)
	}
}

func TestTriggerEnrichmentMissingTranscription(t *testing.T) {
	_, eh, _, _ := newTestHandlers(t)
	e := echo.New()
	e.POST("/api/enrichment/trigger/:transcription_id", eh.Trigger)

	rec := doRequest(e, http.MethodPost, "/api/enrichment/trigger/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

func TestRetryEnrichment(t *testing.T) {
	_, eh, transcriptions, enrichments := newTestHandlers(t)
	e := echo.New()
	e.POST("/api/enrichment/:transcription_id/retry", eh.Retry)

	ctx := context.Background()
	tid := finishTranscription(t, transcriptions)
	job, _ := enrichments.Create(ctx, tid)

	// Not in error state yet.
	rec := doRequest(e, http.MethodPost, "/api/enrichment/"+tid+"/retry", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Status = %d, want 409 for a pending job", rec.Code)
	}

	enrichments.Claim(ctx, job.ID)
	enrichments.Fail(ctx, job.ID, "boom")

	rec = doRequest(e, http.MethodPost, "/api/enrichment/"+tid+"/retry", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var updated models.Enrichment
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.Status != models.StatusPending {
		t.Errorf("Status = %q, want pending after retry", updated.Status)
	}
}

func TestEnrichmentStatsEndpoint(t *testing.T) {
	_, eh, transcriptions, enrichments := newTestHandlers(t)
	e := echo.New()
	e.GET("/api/enrichment/stats", eh.Stats)

	enrichments.Create(context.Background(), finishTranscription(t, transcriptions))

	rec := doRequest(e, http.MethodGet, "/api/enrichment/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	var stats models.EnrichmentStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Bad response body: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("Stats = %+v, want one pending job", stats)
	}
}
