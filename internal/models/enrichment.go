package models

import "time"

// Enrichment is the structured digest derived from one finished
// transcription. At most one row exists per transcription.
type Enrichment struct {
	ID                  int64      `json:"id"`
	TranscriptionID     string     `json:"transcription_id"`
	Status              string     `json:"status"`
	Title               *string    `json:"title,omitempty"`
	Summary             *string    `json:"summary,omitempty"`
	Bullets             []string   `json:"bullets,omitempty"`
	Sentiment           *string    `json:"sentiment,omitempty"`
	SentimentConfidence *float64   `json:"sentiment_confidence,omitempty"`
	Topics              []string   `json:"topics,omitempty"`
	ModelUsed           *string    `json:"model_used,omitempty"`
	GenerationTime      *float64   `json:"generation_time,omitempty"`
	TokensGenerated     *int       `json:"tokens_generated,omitempty"`
	RetryCount          int        `json:"retry_count"`
	LastError           *string    `json:"last_error,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	StartedAt           *time.Time `json:"started_at,omitempty"`
	FinishedAt          *time.Time `json:"finished_at,omitempty"`
}

// Sentiment labels produced by the generation engine.
const (
	SentimentPositive = "positif"
	SentimentNegative = "negatif"
	SentimentNeutral  = "neutre"
	SentimentMixed    = "mixte"
)

// EnrichmentStats aggregates enrichment rows by status.
type EnrichmentStats struct {
	Total                  int      `json:"total"`
	Pending                int      `json:"pending"`
	Processing             int      `json:"processing"`
	Done                   int      `json:"done"`
	Error                  int      `json:"error"`
	AvgGenerationTime      *float64 `json:"avg_generation_time,omitempty"`
	AvgTokensGenerated     *int     `json:"avg_tokens_generated,omitempty"`
	AvgSentimentConfidence *float64 `json:"avg_sentiment_confidence,omitempty"`
}
