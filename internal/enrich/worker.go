package enrich

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"vocalyx/internal/models"
	"vocalyx/internal/storage"
)

// Worker is the enrichment polling loop. Each cycle it discovers finished
// transcriptions that still need enrichment, claims a bounded batch of
// pending jobs, dispatches them concurrently and waits for the whole batch
// before sleeping again.
type Worker struct {
	transcriptions *storage.TranscriptionRepository
	enrichments    *storage.EnrichmentRepository
	processor      *Processor
	interval       time.Duration
	batchSize      int

	stop chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex
	processed int
	succeeded int
	failed    int
}

// NewWorker creates a Worker.
func NewWorker(
	transcriptions *storage.TranscriptionRepository,
	enrichments *storage.EnrichmentRepository,
	processor *Processor,
	interval time.Duration,
	batchSize int,
) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 3
	}
	return &Worker{
		transcriptions: transcriptions,
		enrichments:    enrichments,
		processor:      processor,
		interval:       interval,
		batchSize:      batchSize,
		stop:           make(chan struct{}),
	}
}

// Start begins the polling loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	log.Println("Enrichment worker started")
}

// Stop stops the loop between cycles and waits for an in-flight batch.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
	w.logStats()
	log.Println("Enrichment worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-timer.C:
			w.poll(ctx)
			timer.Reset(w.interval)
		}
	}
}

// poll runs one full cycle: discovery, claim, concurrent dispatch, wait.
func (w *Worker) poll(ctx context.Context) {
	w.discover(ctx)

	pending, err := w.enrichments.ListPending(ctx, w.batchSize)
	if err != nil {
		log.Printf("Error listing pending enrichments: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Printf("Enriching %d transcription(s)", len(pending))

	var batch sync.WaitGroup
	for _, job := range pending {
		claimed, err := w.enrichments.Claim(ctx, job.ID)
		if err != nil {
			log.Printf("Error claiming enrichment %d: %v", job.ID, err)
			continue
		}
		if !claimed {
			continue // another worker owns it
		}

		batch.Add(1)
		go func(job models.Enrichment) {
			defer batch.Done()
			w.processOne(ctx, &job)
		}(job)
	}
	batch.Wait()
}

// discover creates pending enrichment rows for done transcriptions that
// requested enrichment and have no enrichment row yet. Errored jobs are
// not rediscovered; they wait for an explicit retry. The unique index on
// transcription_id keeps this idempotent against concurrent trigger
// requests.
func (w *Worker) discover(ctx context.Context) {
	waiting, err := w.transcriptions.ListAwaitingEnrichment(ctx, w.batchSize)
	if err != nil {
		log.Printf("Error discovering transcriptions to enrich: %v", err)
		return
	}
	for _, t := range waiting {
		if _, err := w.enrichments.Create(ctx, t.ID); err != nil {
			log.Printf("[%s] Error creating enrichment: %v", shortID(t.ID), err)
		}
	}
}

// processOne drives one claimed enrichment to done or error. Failures are
// persisted on the row and never propagate to the poll loop.
func (w *Worker) processOne(ctx context.Context, job *models.Enrichment) {
	id := shortID(job.TranscriptionID)
	log.Printf("[%s] Starting enrichment", id)

	result, err := w.enrich(ctx, job)
	if err != nil {
		log.Printf("[%s] Enrichment error: %v", id, err)
		if ferr := w.enrichments.Fail(ctx, job.ID, err.Error()); ferr != nil {
			log.Printf("[%s] Error persisting failure: %v", id, ferr)
		}
		w.count(false)
		return
	}

	if err := w.enrichments.Complete(ctx, job.ID, result); err != nil {
		log.Printf("[%s] Error persisting result: %v", id, err)
		w.count(false)
		return
	}

	log.Printf("[%s] Enrichment done | Title: %q | Sentiment: %s | Time: %.1fs",
		id, truncate(result.Title, 40), result.Sentiment, result.GenerationTime)
	w.count(true)
}

func (w *Worker) enrich(ctx context.Context, job *models.Enrichment) (*storage.EnrichmentResult, error) {
	t, err := w.transcriptions.GetByID(ctx, job.TranscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcription: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("transcription %s not found", job.TranscriptionID)
	}
	if t.Text == nil {
		return nil, fmt.Errorf("transcription has no text")
	}

	result, err := w.processor.Process(ctx, *t.Text)
	if err != nil {
		return nil, err
	}

	return &storage.EnrichmentResult{
		Title:               result.Title,
		Summary:             result.Summary,
		Bullets:             result.Bullets,
		Sentiment:           result.Sentiment,
		SentimentConfidence: result.SentimentConfidence,
		Topics:              result.Topics,
		ModelUsed:           result.ModelUsed,
		GenerationTime:      result.GenerationTime,
		TokensGenerated:     result.TokensGenerated,
	}, nil
}

func (w *Worker) count(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processed++
	if success {
		w.succeeded++
	} else {
		w.failed++
	}
	if w.processed%5 == 0 {
		log.Printf("Enrichment stats: %d processed | %d succeeded | %d failed",
			w.processed, w.succeeded, w.failed)
	}
}

func (w *Worker) logStats() {
	w.mu.Lock()
	defer w.mu.Unlock()
	log.Printf("Enrichment totals: %d processed | %d succeeded | %d failed",
		w.processed, w.succeeded, w.failed)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
