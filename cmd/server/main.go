package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vocalyx/internal/asr"
	"vocalyx/internal/audio"
	"vocalyx/internal/config"
	"vocalyx/internal/enrich"
	"vocalyx/internal/handlers"
	"vocalyx/internal/storage"
	"vocalyx/internal/transcribe"
	"vocalyx/internal/version"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

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

	engine, err := asr.NewEngine(&asr.Config{
		ModelDir:   cfg.ModelDir,
		Language:   cfg.Language,
		NumThreads: cfg.NumThreads,
		SampleRate: cfg.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to load speech model: %v", err)
	}
	defer engine.Close()

	vadCfg := &audio.VADConfig{
		ModelPath:    cfg.VADModelPath,
		Threshold:    float32(cfg.VADThreshold),
		MinSpeechMs:  cfg.VADMinSpeechMs,
		MinSilenceMs: cfg.VADMinSilenceMs,
		SampleRate:   cfg.SampleRate,
	}
	segmenter := audio.NewSegmenter(cfg.SegmentLengthMs, cfg.VADEnabled, vadCfg, cfg.VADMergeGapMs)

	pipeline := transcribe.NewPipeline(transcriptions, engine, segmenter, cfg)
	queue := transcribe.NewQueue(pipeline, 32)
	queue.Start(context.Background())

	var worker *enrich.Worker
	if cfg.EnrichEnabled {
		generator := enrich.NewLlamaClient(cfg.EnrichEndpoint, cfg.EnrichModel, cfg.EnrichMaxTokens, cfg.EnrichTemperature)
		processor := enrich.NewProcessor(generator, cfg.EnrichMinChars, cfg.EnrichMaxChars)
		worker = enrich.NewWorker(transcriptions, enrichments, processor,
			time.Duration(cfg.EnrichPollInterval)*time.Second, cfg.EnrichBatchSize)
		worker.Start(context.Background())
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	th := handlers.NewTranscriptionHandler(transcriptions, queue, cfg)
	eh := handlers.NewEnrichmentHandler(enrichments, transcriptions)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	api := e.Group("/api")
	api.POST("/transcriptions", th.Create)
	api.GET("/transcriptions", th.List)
	api.GET("/transcriptions/count", th.Count)
	api.GET("/transcriptions/:id", th.Get)
	api.DELETE("/transcriptions/:id", th.Delete)

	api.POST("/enrichment/trigger/:transcription_id", eh.Trigger)
	api.GET("/enrichment/stats", eh.Stats)
	api.GET("/enrichment/pending", eh.ListPending)
	api.GET("/enrichment/:transcription_id", eh.Get)
	api.POST("/enrichment/:transcription_id/retry", eh.Retry)

	go func() {
		log.Printf("Starting Vocalyx v%s on port %s", version.Version, cfg.Port)
		if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	queue.Stop()
	if worker != nil {
		worker.Stop()
	}
}
