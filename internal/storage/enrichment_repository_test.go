package storage

import (
	"context"
	"testing"

	"vocalyx/internal/models"
)

func createDoneTranscription(t *testing.T, repo *TranscriptionRepository) string {
	t.Helper()
	ctx := context.Background()
	job := &models.Transcription{EnrichmentRequested: true}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create transcription failed: %v", err)
	}
	if _, err := repo.Claim(ctx, job.ID, false); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := repo.Complete(ctx, job.ID, &TranscriptionResult{Text: "texte"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	return job.ID
}

func TestEnrichmentCreateIdempotent(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	tid := createDoneTranscription(t, transcriptions)

	first, err := enrichments.Create(ctx, tid)
	if err != nil {
		t.Fatalf("First create failed: %v", err)
	}
	second, err := enrichments.Create(ctx, tid)
	if err != nil {
		t.Fatalf("Second create failed: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Two creates produced two jobs: %d and %d", first.ID, second.ID)
	}
	if second.Status != models.StatusPending {
		t.Errorf("Status = %q, want %q", second.Status, models.StatusPending)
	}
}

func TestEnrichmentClaimOnce(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	tid := createDoneTranscription(t, transcriptions)
	job, _ := enrichments.Create(ctx, tid)

	claimed, err := enrichments.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("First claim should succeed")
	}
	claimed, err = enrichments.Claim(ctx, job.ID)
	if err != nil {
		t.Fatalf("Second claim failed: %v", err)
	}
	if claimed {
		t.Error("Second claim should fail")
	}

	got, _ := enrichments.GetByID(ctx, job.ID)
	if got.Status != models.StatusProcessing {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusProcessing)
	}
	if got.StartedAt == nil {
		t.Error("StartedAt not set on claim")
	}
}

func TestEnrichmentComplete(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	tid := createDoneTranscription(t, transcriptions)
	job, _ := enrichments.Create(ctx, tid)
	enrichments.Claim(ctx, job.ID)

	err := enrichments.Complete(ctx, job.ID, &EnrichmentResult{
		Title:               "Réclamation facture",
		Summary:             "Le client conteste un montant.",
		Bullets:             []string{"montant contesté", "geste commercial"},
		Sentiment:           models.SentimentNegative,
		SentimentConfidence: 0.85,
		ModelUsed:           "mistral-7b-instruct-v0.3",
		GenerationTime:      4.2,
		TokensGenerated:     180,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	got, _ := enrichments.GetByID(ctx, job.ID)
	if got.Status != models.StatusDone {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusDone)
	}
	if got.Title == nil || *got.Title != "Réclamation facture" {
		t.Error("Title not persisted")
	}
	if len(got.Bullets) != 2 {
		t.Errorf("Bullets = %v, want 2 items", got.Bullets)
	}
	if got.Sentiment == nil || *got.Sentiment != models.SentimentNegative {
		t.Error("Sentiment not persisted")
	}
	if got.TokensGenerated == nil || *got.TokensGenerated != 180 {
		t.Error("TokensGenerated not persisted")
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestEnrichmentFailAndRetry(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	tid := createDoneTranscription(t, transcriptions)
	job, _ := enrichments.Create(ctx, tid)
	enrichments.Claim(ctx, job.ID)

	if err := enrichments.Fail(ctx, job.ID, "generation failed: timeout"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	got, _ := enrichments.GetByID(ctx, job.ID)
	if got.Status != models.StatusError {
		t.Errorf("Status = %q, want %q", got.Status, models.StatusError)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount after failure = %d, want 1", got.RetryCount)
	}
	if got.LastError == nil || *got.LastError != "generation failed: timeout" {
		t.Error("LastError not persisted")
	}

	ok, err := enrichments.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if !ok {
		t.Fatal("Retry should succeed for an errored job")
	}

	got, _ = enrichments.GetByID(ctx, job.ID)
	if got.Status != models.StatusPending {
		t.Errorf("Status after retry = %q, want %q", got.Status, models.StatusPending)
	}
	if got.RetryCount != 2 {
		t.Errorf("RetryCount after retry = %d, want 2", got.RetryCount)
	}
	if got.LastError != nil {
		t.Errorf("LastError after retry = %q, want nil", *got.LastError)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("Timestamps should be cleared on retry")
	}
}

func TestEnrichmentRetryOnlyFromError(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	tid := createDoneTranscription(t, transcriptions)
	job, _ := enrichments.Create(ctx, tid)

	ok, err := enrichments.Retry(ctx, job.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if ok {
		t.Error("Retry should be rejected for a pending job")
	}
}

func TestEnrichmentStats(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	done, _ := enrichments.Create(ctx, createDoneTranscription(t, transcriptions))
	enrichments.Claim(ctx, done.ID)
	enrichments.Complete(ctx, done.ID, &EnrichmentResult{
		Title: "T", Summary: "S", Sentiment: models.SentimentNeutral,
		SentimentConfidence: 0.8, GenerationTime: 4.0, TokensGenerated: 100,
	})

	failed, _ := enrichments.Create(ctx, createDoneTranscription(t, transcriptions))
	enrichments.Claim(ctx, failed.ID)
	enrichments.Fail(ctx, failed.ID, "boom")

	enrichments.Create(ctx, createDoneTranscription(t, transcriptions))

	stats, err := enrichments.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.Done != 1 || stats.Error != 1 || stats.Pending != 1 {
		t.Errorf("Counts = done:%d error:%d pending:%d, want 1 each",
			stats.Done, stats.Error, stats.Pending)
	}
	if stats.AvgGenerationTime == nil || *stats.AvgGenerationTime != 4.0 {
		t.Error("AvgGenerationTime should average over done jobs")
	}
	if stats.AvgTokensGenerated == nil || *stats.AvgTokensGenerated != 100 {
		t.Error("AvgTokensGenerated should average over done jobs")
	}
}

func TestEnrichmentListPendingOldestFirst(t *testing.T) {
	db := openTestDB(t)
	transcriptions := NewTranscriptionRepository(db)
	enrichments := NewEnrichmentRepository(db)
	ctx := context.Background()

	first, _ := enrichments.Create(ctx, createDoneTranscription(t, transcriptions))
	second, _ := enrichments.Create(ctx, createDoneTranscription(t, transcriptions))

	pending, err := enrichments.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("ListPending returned %d rows, want 2", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("ListPending order = [%d %d], want [%d %d]",
			pending[0].ID, pending[1].ID, first.ID, second.ID)
	}
}
