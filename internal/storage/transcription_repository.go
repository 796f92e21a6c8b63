package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"vocalyx/internal/models"
)

// TranscriptionRepository is the data access layer for transcription jobs.
type TranscriptionRepository struct {
	db *DB
}

// NewTranscriptionRepository creates a new TranscriptionRepository.
func NewTranscriptionRepository(db *DB) *TranscriptionRepository {
	return &TranscriptionRepository{db: db}
}

const transcriptionColumns = `id, status, language, processing_time, duration, text,
	segments, segments_count, error_message, vad_enabled, translate,
	enrichment_requested, created_at, finished_at`

// Create inserts a new transcription job in pending state.
func (r *TranscriptionRepository) Create(ctx context.Context, t *models.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	t.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transcriptions (id, status, vad_enabled, translate, enrichment_requested, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Status, boolInt(t.VADEnabled), boolInt(t.Translate),
		boolInt(t.EnrichmentRequested), t.CreatedAt,
	)
	return err
}

// GetByID returns a transcription by id, or nil when it does not exist.
func (r *TranscriptionRepository) GetByID(ctx context.Context, id string) (*models.Transcription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transcriptionColumns+` FROM transcriptions WHERE id = ?`, id)
	t, err := scanTranscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Claim transitions a job from pending to processing and records the VAD
// choice. The conditional update is the synchronization point: a false
// return means another worker already owns the job.
func (r *TranscriptionRepository) Claim(ctx context.Context, id string, vadEnabled bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transcriptions SET status = ?, vad_enabled = ?
		WHERE id = ? AND status = ?`,
		models.StatusProcessing, boolInt(vadEnabled), id, models.StatusPending,
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

// TranscriptionResult carries the fields written on a successful completion.
type TranscriptionResult struct {
	Language       string
	ProcessingTime float64
	Duration       float64
	Text           string
	Segments       []models.Utterance
	ErrorMessage   string // set in partial-success mode only
}

// Complete marks a processing job as done and persists all result fields.
func (r *TranscriptionRepository) Complete(ctx context.Context, id string, result *TranscriptionResult) error {
	segmentsJSON, err := json.Marshal(result.Segments)
	if err != nil {
		return fmt.Errorf("failed to marshal segments: %w", err)
	}

	var errMsg *string
	if result.ErrorMessage != "" {
		errMsg = &result.ErrorMessage
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		UPDATE transcriptions
		SET status = ?, language = ?, processing_time = ?, duration = ?,
		    text = ?, segments = ?, segments_count = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		models.StatusDone, result.Language, result.ProcessingTime, result.Duration,
		result.Text, string(segmentsJSON), len(result.Segments), errMsg, now, id,
	)
	return err
}

// Fail marks a job as errored, leaving result fields untouched.
func (r *TranscriptionRepository) Fail(ctx context.Context, id string, errorMsg string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE transcriptions SET status = ?, error_message = ?, finished_at = ?
		WHERE id = ?`,
		models.StatusError, errorMsg, now, id,
	)
	return err
}

// ListRecent returns the most recently created transcriptions.
func (r *TranscriptionRepository) ListRecent(ctx context.Context, limit int) ([]models.Transcription, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transcriptionColumns+` FROM transcriptions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTranscriptions(rows)
}

// ListAwaitingEnrichment returns done transcriptions that requested
// enrichment and have no enrichment row yet. A transcription with any
// existing row, errored ones included, is never rediscovered: errored
// jobs stay parked until an explicit retry resets them to pending.
func (r *TranscriptionRepository) ListAwaitingEnrichment(ctx context.Context, limit int) ([]models.Transcription, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transcriptionColumns+` FROM transcriptions t
		WHERE t.status = ? AND t.enrichment_requested = 1
		  AND NOT EXISTS (
			SELECT 1 FROM enrichments e WHERE e.transcription_id = t.id
		  )
		ORDER BY t.finished_at ASC
		LIMIT ?`,
		models.StatusDone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTranscriptions(rows)
}

// Count returns the total number of transcriptions.
func (r *TranscriptionRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcriptions`).Scan(&n)
	return n, err
}

// Delete removes a transcription (and its enrichment, via cascade).
func (r *TranscriptionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM transcriptions WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscription(row rowScanner) (*models.Transcription, error) {
	var t models.Transcription
	var (
		language     sql.NullString
		procTime     sql.NullFloat64
		duration     sql.NullFloat64
		text         sql.NullString
		segments     sql.NullString
		segCount     sql.NullInt64
		errMsg       sql.NullString
		vadEnabled   int
		translate    int
		enrichReq    int
		finishedAt   sql.NullTime
	)

	err := row.Scan(&t.ID, &t.Status, &language, &procTime, &duration, &text,
		&segments, &segCount, &errMsg, &vadEnabled, &translate, &enrichReq,
		&t.CreatedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	if language.Valid {
		t.Language = &language.String
	}
	if procTime.Valid {
		t.ProcessingTime = &procTime.Float64
	}
	if duration.Valid {
		t.Duration = &duration.Float64
	}
	if text.Valid {
		t.Text = &text.String
	}
	if segments.Valid && segments.String != "" {
		if err := json.Unmarshal([]byte(segments.String), &t.Segments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal segments: %w", err)
		}
	}
	if segCount.Valid {
		n := int(segCount.Int64)
		t.SegmentsCount = &n
	}
	if errMsg.Valid {
		t.ErrorMessage = &errMsg.String
	}
	t.VADEnabled = vadEnabled != 0
	t.Translate = translate != 0
	t.EnrichmentRequested = enrichReq != 0
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return &t, nil
}

func collectTranscriptions(rows *sql.Rows) ([]models.Transcription, error) {
	var out []models.Transcription
	for rows.Next() {
		t, err := scanTranscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
