package models

import "time"

// Utterance is one timestamped unit of recognized speech, in seconds on
// the original audio timeline.
type Utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcription is an asynchronous transcription job.
type Transcription struct {
	ID                  string      `json:"id"`
	Status              string      `json:"status"`
	Language            *string     `json:"language,omitempty"`
	ProcessingTime      *float64    `json:"processing_time,omitempty"`
	Duration            *float64    `json:"duration,omitempty"`
	Text                *string     `json:"text,omitempty"`
	Segments            []Utterance `json:"segments,omitempty"`
	SegmentsCount       *int        `json:"segments_count,omitempty"`
	ErrorMessage        *string     `json:"error_message,omitempty"`
	VADEnabled          bool        `json:"vad_enabled"`
	Translate           bool        `json:"translate"`
	EnrichmentRequested bool        `json:"enrichment_requested"`
	CreatedAt           time.Time   `json:"created_at"`
	FinishedAt          *time.Time  `json:"finished_at,omitempty"`
}

// Transcription statuses. Transitions only move forward:
// pending -> processing -> done | error.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)
