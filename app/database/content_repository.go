package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/recapio/recap/app/pipeline"
)

var _ ContentRepository = (*ContentRepo)(nil)

// ContentRepo handles database operations for content items
type ContentRepo struct {
	db *DB
}

func NewContentRepo(db *DB) *ContentRepo {
	return &ContentRepo{db: db}
}

const contentColumns = `id, user_id, url, content_type, COALESCE(title, ''), full_text,
	duration_seconds, speaker_count, status, display_language,
	transcript_job_id, transcript_submitted_at, created_at, updated_at`

func scanContent(row interface{ Scan(...any) error }) (*Content, error) {
	var c Content
	err := row.Scan(
		&c.ID, &c.UserID, &c.URL, &c.Type, &c.Title, &c.FullText,
		&c.DurationSeconds, &c.SpeakerCount, &c.Status, &c.DisplayLanguage,
		&c.TranscriptJobID, &c.TranscriptSubmittedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContentRepo) Create(ctx context.Context, c *Content) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO contents (id, user_id, url, content_type, title, status, display_language)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, c.ID, c.UserID, c.URL, c.Type, c.Title, c.Status, c.DisplayLanguage).
		Scan(&c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create content: %w", err)
	}

	return nil
}

func (r *ContentRepo) GetByID(ctx context.Context, id string) (*Content, error) {
	c, err := scanContent(r.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE id = $1`, id))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}

	return c, nil
}

func (r *ContentRepo) GetByTranscriptJobID(ctx context.Context, jobID string) (*Content, error) {
	c, err := scanContent(r.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE transcript_job_id = $1`, jobID))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content by transcript job: %w", err)
	}

	return c, nil
}

func (r *ContentRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contents SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)

	if err != nil {
		return fmt.Errorf("failed to set content status: %w", err)
	}

	return nil
}

func (r *ContentRepo) SetTitle(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contents SET title = $2, updated_at = NOW() WHERE id = $1
	`, id, title)

	if err != nil {
		return fmt.Errorf("failed to set content title: %w", err)
	}

	return nil
}

func (r *ContentRepo) SetDisplayLanguage(ctx context.Context, id, language string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contents SET display_language = $2, updated_at = NOW() WHERE id = $1
	`, id, language)

	if err != nil {
		return fmt.Errorf("failed to set display language: %w", err)
	}

	return nil
}

func (r *ContentRepo) SetTranscriptJob(ctx context.Context, id, jobID string, submittedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contents
		SET transcript_job_id = $2, transcript_submitted_at = $3,
		    status = $4, updated_at = NOW()
		WHERE id = $1
	`, id, jobID, submittedAt, ContentStatusTranscribing)

	if err != nil {
		return fmt.Errorf("failed to set transcript job: %w", err)
	}

	return nil
}

// SetFullTextIfNull writes extracted text only when full_text is still NULL.
// The webhook path and the recovery poller both funnel through this, so a
// duplicate delivery can never clobber a saved transcript.
func (r *ContentRepo) SetFullTextIfNull(ctx context.Context, id, fullText string, durationSeconds, speakerCount *int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contents
		SET full_text = $2, duration_seconds = $3, speaker_count = $4, updated_at = NOW()
		WHERE id = $1 AND full_text IS NULL
	`, id, fullText, durationSeconds, speakerCount)

	if err != nil {
		return false, fmt.Errorf("failed to set full text: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n > 0, nil
}

func (r *ContentRepo) MarkFailed(ctx context.Context, id, stage, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contents
		SET full_text = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND full_text IS NULL
	`, id, pipeline.Marker(stage, reason), ContentStatusError)

	if err != nil {
		return false, fmt.Errorf("failed to mark content failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n > 0, nil
}

func (r *ContentRepo) GetStuckTranscriptions(ctx context.Context, submittedBefore time.Time, limit int) ([]Content, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contentColumns+`
		FROM contents
		WHERE full_text IS NULL
		  AND transcript_job_id IS NOT NULL
		  AND transcript_submitted_at < $1
		ORDER BY transcript_submitted_at
		LIMIT $2
	`, submittedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get stuck transcriptions: %w", err)
	}
	defer rows.Close()

	var contents []Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content row: %w", err)
		}
		contents = append(contents, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating content rows: %w", err)
	}

	return contents, nil
}
