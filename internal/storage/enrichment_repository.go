package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"vocalyx/internal/models"
)

// EnrichmentRepository is the data access layer for enrichment jobs.
type EnrichmentRepository struct {
	db *DB
}

// NewEnrichmentRepository creates a new EnrichmentRepository.
func NewEnrichmentRepository(db *DB) *EnrichmentRepository {
	return &EnrichmentRepository{db: db}
}

const enrichmentColumns = `id, transcription_id, status, title, summary, bullets,
	sentiment, sentiment_confidence, topics, model_used, generation_time,
	tokens_generated, retry_count, last_error, created_at, started_at, finished_at`

// Create inserts a pending enrichment for the transcription, or returns the
// existing row. The unique index on transcription_id makes concurrent
// creation idempotent.
func (r *EnrichmentRepository) Create(ctx context.Context, transcriptionID string) (*models.Enrichment, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO enrichments (transcription_id, status, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(transcription_id) DO NOTHING`,
		transcriptionID, models.StatusPending, now,
	)
	if err != nil {
		return nil, err
	}
	e, err := r.GetByTranscriptionID(ctx, transcriptionID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("enrichment not found after insert for %s", transcriptionID)
	}
	return e, nil
}

// GetByID returns an enrichment by id, or nil when it does not exist.
func (r *EnrichmentRepository) GetByID(ctx context.Context, id int64) (*models.Enrichment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichments WHERE id = ?`, id)
	return nilOnNoRows(scanEnrichment(row))
}

// GetByTranscriptionID returns the enrichment for a transcription, or nil.
func (r *EnrichmentRepository) GetByTranscriptionID(ctx context.Context, transcriptionID string) (*models.Enrichment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+enrichmentColumns+` FROM enrichments WHERE transcription_id = ?`, transcriptionID)
	return nilOnNoRows(scanEnrichment(row))
}

// ListPending returns pending enrichments, oldest first.
func (r *EnrichmentRepository) ListPending(ctx context.Context, limit int) ([]models.Enrichment, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+enrichmentColumns+` FROM enrichments
		WHERE status = ? ORDER BY created_at ASC LIMIT ?`,
		models.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Enrichment
	for rows.Next() {
		e, err := scanEnrichment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Claim transitions an enrichment from pending to processing. A false
// return means another worker claimed it first.
func (r *EnrichmentRepository) Claim(ctx context.Context, id int64) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrichments SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		models.StatusProcessing, now, id, models.StatusPending,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// EnrichmentResult carries the fields written on a successful generation.
type EnrichmentResult struct {
	Title               string
	Summary             string
	Bullets             []string
	Sentiment           string
	SentimentConfidence float64
	Topics              []string
	ModelUsed           string
	GenerationTime      float64
	TokensGenerated     int
}

// Complete marks an enrichment as done with all generated content.
func (r *EnrichmentRepository) Complete(ctx context.Context, id int64, result *EnrichmentResult) error {
	bulletsJSON, err := json.Marshal(result.Bullets)
	if err != nil {
		return fmt.Errorf("failed to marshal bullets: %w", err)
	}
	var topicsJSON *string
	if len(result.Topics) > 0 {
		b, err := json.Marshal(result.Topics)
		if err != nil {
			return fmt.Errorf("failed to marshal topics: %w", err)
		}
		topicsJSON = Ptr(string(b))
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		UPDATE enrichments
		SET status = ?, title = ?, summary = ?, bullets = ?, sentiment = ?,
		    sentiment_confidence = ?, topics = ?, model_used = ?,
		    generation_time = ?, tokens_generated = ?, finished_at = ?
		WHERE id = ?`,
		models.StatusDone, result.Title, result.Summary, string(bulletsJSON),
		result.Sentiment, result.SentimentConfidence, topicsJSON, result.ModelUsed,
		result.GenerationTime, result.TokensGenerated, now, id,
	)
	return err
}

// Fail marks an enrichment as errored and counts the attempt.
func (r *EnrichmentRepository) Fail(ctx context.Context, id int64, errorMsg string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE enrichments
		SET status = ?, last_error = ?, retry_count = retry_count + 1, finished_at = ?
		WHERE id = ?`,
		models.StatusError, errorMsg, now, id,
	)
	return err
}

// Retry resets an errored enrichment back to pending, incrementing the
// retry counter and clearing the last error. A false return means the job
// was not in error state.
func (r *EnrichmentRepository) Retry(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE enrichments
		SET status = ?, retry_count = retry_count + 1, last_error = NULL,
		    started_at = NULL, finished_at = NULL
		WHERE id = ? AND status = ?`,
		models.StatusPending, id, models.StatusError,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Stats aggregates enrichment counts and averages over finished jobs.
func (r *EnrichmentRepository) Stats(ctx context.Context) (*models.EnrichmentStats, error) {
	stats := &models.EnrichmentStats{}

	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM enrichments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		switch status {
		case models.StatusPending:
			stats.Pending = count
		case models.StatusProcessing:
			stats.Processing = count
		case models.StatusDone:
			stats.Done = count
		case models.StatusError:
			stats.Error = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Done > 0 {
		var avgTime, avgConfidence sql.NullFloat64
		var avgTokens sql.NullFloat64
		err := r.db.QueryRowContext(ctx, `
			SELECT AVG(generation_time), AVG(tokens_generated), AVG(sentiment_confidence)
			FROM enrichments WHERE status = ?`, models.StatusDone,
		).Scan(&avgTime, &avgTokens, &avgConfidence)
		if err != nil {
			return nil, err
		}
		if avgTime.Valid {
			stats.AvgGenerationTime = Ptr(round2(avgTime.Float64))
		}
		if avgTokens.Valid {
			stats.AvgTokensGenerated = Ptr(int(avgTokens.Float64))
		}
		if avgConfidence.Valid {
			stats.AvgSentimentConfidence = Ptr(round2(avgConfidence.Float64))
		}
	}

	return stats, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func nilOnNoRows(e *models.Enrichment, err error) (*models.Enrichment, error) {
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEnrichment(row rowScanner) (*models.Enrichment, error) {
	var e models.Enrichment
	var (
		title      sql.NullString
		summary    sql.NullString
		bullets    sql.NullString
		sentiment  sql.NullString
		confidence sql.NullFloat64
		topics     sql.NullString
		modelUsed  sql.NullString
		genTime    sql.NullFloat64
		tokens     sql.NullInt64
		lastError  sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)

	err := row.Scan(&e.ID, &e.TranscriptionID, &e.Status, &title, &summary,
		&bullets, &sentiment, &confidence, &topics, &modelUsed, &genTime,
		&tokens, &e.RetryCount, &lastError, &e.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if title.Valid {
		e.Title = &title.String
	}
	if summary.Valid {
		e.Summary = &summary.String
	}
	if bullets.Valid && bullets.String != "" {
		if err := json.Unmarshal([]byte(bullets.String), &e.Bullets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bullets: %w", err)
		}
	}
	if sentiment.Valid {
		e.Sentiment = &sentiment.String
	}
	if confidence.Valid {
		e.SentimentConfidence = &confidence.Float64
	}
	if topics.Valid && topics.String != "" {
		if err := json.Unmarshal([]byte(topics.String), &e.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if modelUsed.Valid {
		e.ModelUsed = &modelUsed.String
	}
	if genTime.Valid {
		e.GenerationTime = &genTime.Float64
	}
	if tokens.Valid {
		n := int(tokens.Int64)
		e.TokensGenerated = &n
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		e.FinishedAt = &finishedAt.Time
	}
	return &e, nil
}
