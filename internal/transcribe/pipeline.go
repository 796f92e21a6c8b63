package transcribe

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"vocalyx/internal/asr"
	"vocalyx/internal/audio"
	"vocalyx/internal/config"
	"vocalyx/internal/storage"
)

// SpeechEngine is the external speech-recognition capability. The handle
// behind it is loaded once and must be safe for concurrent calls up to the
// configured worker count.
type SpeechEngine interface {
	TranscribeSegment(path string, translate bool) (*asr.SegmentResult, error)
}

// Segmenter cuts an audio file into slices in playback order.
type Segmenter interface {
	Segment(path string, useVAD bool) ([]string, error)
}

// Job is one transcription request taken off the submission queue.
type Job struct {
	ID        string
	Path      string
	Translate bool
	UseVAD    bool
}

// Pipeline drives one transcription job from claimed upload to terminal
// state: duration probe, preprocessing, segmentation, bounded concurrent
// transcription, ordered reassembly, persistence and cleanup.
type Pipeline struct {
	repo           *storage.TranscriptionRepository
	engine         SpeechEngine
	segmenter      Segmenter
	maxWorkers     int
	partialResults bool

	// Overridable seams for tests; defaults hit ffmpeg.
	duration   func(path string) float64
	preprocess func(path string) string
}

// NewPipeline creates a Pipeline.
func NewPipeline(repo *storage.TranscriptionRepository, engine SpeechEngine, segmenter Segmenter, cfg *config.Config) *Pipeline {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		repo:           repo,
		engine:         engine,
		segmenter:      segmenter,
		maxWorkers:     workers,
		partialResults: cfg.PartialResults,
		duration:       audio.Duration,
		preprocess:     audio.Preprocess,
	}
}

// Process runs one job to a terminal state. Failures inside the job are
// converted into an error status on the row; the returned error reports
// persistence problems only. All temporary files (upload, preprocessed
// copy, segment exports) are removed regardless of outcome.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	claimed, err := p.repo.Claim(ctx, job.ID, job.UseVAD)
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	if !claimed {
		log.Printf("[%s] Job already claimed, skipping", job.ID)
		return nil
	}

	start := time.Now()

	var segmentPaths []string
	processedPath := ""
	defer func() {
		p.removeTempFiles(job.Path, processedPath, segmentPaths)
	}()

	// Ground-truth duration of the original upload. Stored verbatim on
	// completion, never recomputed from segment output.
	originalDuration := p.duration(job.Path)
	log.Printf("[%s] Original audio duration: %.2fs", job.ID, originalDuration)

	processedPath = p.preprocess(job.Path)

	segmentPaths, err = p.segmenter.Segment(processedPath, job.UseVAD)
	if err != nil {
		return p.fail(ctx, job.ID, fmt.Errorf("segmentation failed: %w", err))
	}
	log.Printf("[%s] Created %d segments", job.ID, len(segmentPaths))

	results, failed := p.transcribeAll(segmentPaths, job.Translate)

	if failed > 0 {
		allFailed := failed == len(segmentPaths)
		if !p.partialResults || allFailed {
			return p.fail(ctx, job.ID, firstError(results))
		}
	}

	assembly := Assemble(successes(results))

	partialNote := ""
	if failed > 0 {
		partialNote = fmt.Sprintf("%d of %d segments failed", failed, len(segmentPaths))
	}

	processingTime := math.Round(time.Since(start).Seconds()*1000) / 1000
	err = p.repo.Complete(ctx, job.ID, &storage.TranscriptionResult{
		Language:       assembly.Language,
		ProcessingTime: processingTime,
		Duration:       originalDuration,
		Text:           assembly.Text,
		Segments:       assembly.Utterances,
		ErrorMessage:   partialNote,
	})
	if err != nil {
		return fmt.Errorf("failed to persist result for %s: %w", job.ID, err)
	}

	log.Printf("[%s] Completed: %d segments | Audio: %.1fs | Processing: %.1fs | VAD: %v",
		job.ID, len(assembly.Utterances), originalDuration, processingTime, job.UseVAD)
	return nil
}

type segmentOutcome struct {
	result *asr.SegmentResult
	err    error
}

// transcribeAll runs every segment through the engine on a pool bounded by
// maxWorkers. Outcomes are stored by segment index so assembly order never
// depends on completion order. A single segment bypasses the pool.
func (p *Pipeline) transcribeAll(segmentPaths []string, translate bool) ([]segmentOutcome, int) {
	outcomes := make([]segmentOutcome, len(segmentPaths))

	if len(segmentPaths) == 1 {
		result, err := p.engine.TranscribeSegment(segmentPaths[0], translate)
		outcomes[0] = segmentOutcome{result: result, err: err}
	} else {
		sem := make(chan struct{}, p.maxWorkers)
		var wg sync.WaitGroup
		for i, path := range segmentPaths {
			wg.Add(1)
			go func(i int, path string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				result, err := p.engine.TranscribeSegment(path, translate)
				outcomes[i] = segmentOutcome{result: result, err: err}
			}(i, path)
		}
		wg.Wait()
	}

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
		}
	}
	return outcomes, failed
}

func (p *Pipeline) fail(ctx context.Context, id string, cause error) error {
	log.Printf("[%s] Error: %v", id, cause)
	if err := p.repo.Fail(ctx, id, cause.Error()); err != nil {
		return fmt.Errorf("failed to persist error for %s: %w", id, err)
	}
	return nil
}

func (p *Pipeline) removeTempFiles(uploadPath, processedPath string, segmentPaths []string) {
	remove := func(path string) {
		if path == "" {
			return
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Cleanup error for %s: %v", path, err)
		}
	}

	for _, seg := range segmentPaths {
		if seg != uploadPath && seg != processedPath {
			remove(seg)
		}
	}
	if processedPath != "" && processedPath != uploadPath {
		remove(processedPath)
	}
	remove(uploadPath)
}

func successes(outcomes []segmentOutcome) []*asr.SegmentResult {
	var out []*asr.SegmentResult
	for _, o := range outcomes {
		if o.err == nil {
			out = append(out, o.result)
		}
	}
	return out
}

func firstError(outcomes []segmentOutcome) error {
	for _, o := range outcomes {
		if o.err != nil {
			return fmt.Errorf("segment transcription failed: %w", o.err)
		}
	}
	return fmt.Errorf("segment transcription failed")
}
