package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

var _ SummaryRepository = (*SummaryRepo)(nil)

// SummaryRepo handles database operations for analysis summaries
type SummaryRepo struct {
	db *DB
}

func NewSummaryRepo(db *DB) *SummaryRepo {
	return &SummaryRepo{db: db}
}

// Section names map to a fixed column whitelist; anything else is rejected so
// callers can never smuggle arbitrary identifiers into the UPDATE.
var jsonSections = map[SummarySection]bool{
	SectionOverview:    true,
	SectionTriage:      true,
	SectionFactCheck:   true,
	SectionActionItems: true,
}

var textSections = map[SummarySection]bool{
	SectionBriefSummary:    true,
	SectionDetailedSummary: true,
}

const summaryColumns = `id, content_id, language, overview, triage, fact_check, action_items,
	brief_summary, detailed_summary, tone, tags, processing_status,
	COALESCE(model_used, ''), COALESCE(error_message, ''), created_at, updated_at`

func scanSummary(row interface{ Scan(...any) error }) (*Summary, error) {
	var s Summary
	var overview, triage, factCheck, actionItems []byte
	err := row.Scan(
		&s.ID, &s.ContentID, &s.Language, &overview, &triage, &factCheck, &actionItems,
		&s.BriefSummary, &s.DetailedSummary, &s.Tone, pq.Array(&s.Tags),
		&s.ProcessingStatus, &s.ModelUsed, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Overview = overview
	s.Triage = triage
	s.FactCheck = factCheck
	s.ActionItems = actionItems
	return &s, nil
}

// Upsert creates the placeholder summary row for a (content, language) pair,
// or returns the existing row untouched. The UNIQUE(content_id, language)
// constraint guarantees at most one row per pair under concurrency.
func (r *SummaryRepo) Upsert(ctx context.Context, contentID, language, modelUsed string) (*Summary, error) {
	s, err := scanSummary(r.db.QueryRowContext(ctx, `
		INSERT INTO summaries (content_id, language, processing_status, model_used)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_id, language) DO UPDATE SET updated_at = NOW()
		RETURNING `+summaryColumns,
		contentID, language, SummaryStatusPending, modelUsed))

	if err != nil {
		return nil, fmt.Errorf("failed to upsert summary: %w", err)
	}

	return s, nil
}

func (r *SummaryRepo) GetByContentAndLanguage(ctx context.Context, contentID, language string) (*Summary, error) {
	s, err := scanSummary(r.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM summaries
		WHERE content_id = $1 AND language = $2
	`, contentID, language))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	return s, nil
}

func (r *SummaryRepo) GetCompletedSource(ctx context.Context, contentID, preferredLanguage string) (*Summary, error) {
	s, err := scanSummary(r.db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+`
		FROM summaries
		WHERE content_id = $1 AND processing_status = $2
		ORDER BY (language = $3) DESC, created_at
		LIMIT 1
	`, contentID, SummaryStatusComplete, preferredLanguage))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completed summary: %w", err)
	}

	return s, nil
}

func (r *SummaryRepo) SetSectionJSON(ctx context.Context, id string, section SummarySection, data json.RawMessage, status string) error {
	if !jsonSections[section] {
		return fmt.Errorf("unknown JSON section: %s", section)
	}

	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE summaries SET %s = $2, processing_status = $3, updated_at = NOW() WHERE id = $1
	`, section), id, []byte(data), status)

	if err != nil {
		return fmt.Errorf("failed to set section %s: %w", section, err)
	}

	return nil
}

func (r *SummaryRepo) SetSectionText(ctx context.Context, id string, section SummarySection, text, status string) error {
	if !textSections[section] {
		return fmt.Errorf("unknown text section: %s", section)
	}

	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE summaries SET %s = $2, processing_status = $3, updated_at = NOW() WHERE id = $1
	`, section), id, text, status)

	if err != nil {
		return fmt.Errorf("failed to set section %s: %w", section, err)
	}

	return nil
}

func (r *SummaryRepo) SetTone(ctx context.Context, id, tone string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE summaries SET tone = $2, updated_at = NOW() WHERE id = $1
	`, id, tone)

	if err != nil {
		return fmt.Errorf("failed to set tone: %w", err)
	}

	return nil
}

func (r *SummaryRepo) SetTags(ctx context.Context, id string, tags []string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE summaries SET tags = $2, updated_at = NOW() WHERE id = $1
	`, id, pq.Array(tags))

	if err != nil {
		return fmt.Errorf("failed to set tags: %w", err)
	}

	return nil
}

func (r *SummaryRepo) SetStatus(ctx context.Context, id, status, errorMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE summaries SET processing_status = $2, error_message = $3, updated_at = NOW() WHERE id = $1
	`, id, status, errorMessage)

	if err != nil {
		return fmt.Errorf("failed to set summary status: %w", err)
	}

	return nil
}

// MarkCompleteIfFilled advances processing_status to complete only when every
// required section has landed. Called after each section write; the last
// writer wins the flip.
func (r *SummaryRepo) MarkCompleteIfFilled(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE summaries
		SET processing_status = $2, updated_at = NOW()
		WHERE id = $1
		  AND overview IS NOT NULL
		  AND triage IS NOT NULL
		  AND fact_check IS NOT NULL
		  AND action_items IS NOT NULL
		  AND brief_summary IS NOT NULL
		  AND detailed_summary IS NOT NULL
	`, id, SummaryStatusComplete)

	if err != nil {
		return false, fmt.Errorf("failed to mark summary complete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n > 0, nil
}

func (r *SummaryRepo) SaveTranslated(ctx context.Context, s *Summary) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE summaries
		SET overview = $2, triage = $3, fact_check = $4, action_items = $5,
		    brief_summary = $6, detailed_summary = $7, tone = $8, tags = $9,
		    processing_status = $10, model_used = $11, error_message = '', updated_at = NOW()
		WHERE id = $1
	`, s.ID, []byte(s.Overview), []byte(s.Triage), []byte(s.FactCheck), []byte(s.ActionItems),
		s.BriefSummary, s.DetailedSummary, s.Tone, pq.Array(s.Tags),
		SummaryStatusComplete, s.ModelUsed)

	if err != nil {
		return fmt.Errorf("failed to save translated summary: %w", err)
	}

	return nil
}
