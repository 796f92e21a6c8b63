package transcribe

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Queue decouples submission from processing. Handlers enqueue a job and
// return immediately; a single consumer goroutine drains the queue through
// the pipeline. Shutdown closes intake and lets the in-flight job finish.
type Queue struct {
	pipeline *Pipeline
	jobs     chan Job
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(pipeline *Pipeline, size int) *Queue {
	if size <= 0 {
		size = 32
	}
	return &Queue{
		pipeline: pipeline,
		jobs:     make(chan Job, size),
	}
}

// Start launches the consumer goroutine.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				if err := q.pipeline.Process(ctx, job); err != nil {
					log.Printf("[%s] Pipeline error: %v", job.ID, err)
				}
			}
		}
	}()
	log.Println("Transcription queue started")
}

// Submit enqueues a job. It never blocks: a full queue or a stopped queue
// is reported as an error so the caller can surface a retryable condition.
func (q *Queue) Submit(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is stopped")
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue is full")
	}
}

// Stop closes intake and waits for the consumer to drain what it has
// already started.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
	log.Println("Transcription queue stopped")
}
