package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vocalyx/internal/config"
	"vocalyx/internal/enrich"
	"vocalyx/internal/storage"

	"github.com/joho/godotenv"
)

// Standalone enrichment worker. Runs against the same database as the
// server, useful when the LLM host is a separate machine.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	transcriptions := storage.NewTranscriptionRepository(db)
	enrichments := storage.NewEnrichmentRepository(db)

	generator := enrich.NewLlamaClient(cfg.EnrichEndpoint, cfg.EnrichModel, cfg.EnrichMaxTokens, cfg.EnrichTemperature)
	processor := enrich.NewProcessor(generator, cfg.EnrichMinChars, cfg.EnrichMaxChars)
	worker := enrich.NewWorker(transcriptions, enrichments, processor,
		time.Duration(cfg.EnrichPollInterval)*time.Second, cfg.EnrichBatchSize)

	worker.Start(context.Background())
	log.Printf("Enrichment worker started (endpoint: %s, every %ds)", cfg.EnrichEndpoint, cfg.EnrichPollInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	worker.Stop()
}
