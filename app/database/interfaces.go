package database

import (
	"context"
	"encoding/json"
	"time"
)

// SummarySection names a summary column that an analysis call fills in. The
// repository only writes whitelisted sections.
type SummarySection string

const (
	SectionOverview        SummarySection = "overview"
	SectionTriage          SummarySection = "triage"
	SectionFactCheck       SummarySection = "fact_check"
	SectionActionItems     SummarySection = "action_items"
	SectionBriefSummary    SummarySection = "brief_summary"
	SectionDetailedSummary SummarySection = "detailed_summary"
)

type ContentRepository interface {
	Create(ctx context.Context, c *Content) error
	GetByID(ctx context.Context, id string) (*Content, error)
	GetByTranscriptJobID(ctx context.Context, jobID string) (*Content, error)

	SetStatus(ctx context.Context, id, status string) error
	SetTitle(ctx context.Context, id, title string) error
	SetDisplayLanguage(ctx context.Context, id, language string) error
	SetTranscriptJob(ctx context.Context, id, jobID string, submittedAt time.Time) error

	// SetFullTextIfNull writes extracted text only when the full-text field is
	// still NULL, and reports whether the write happened. Duplicate webhooks
	// and the recovery poller race on this; the condition makes both safe.
	SetFullTextIfNull(ctx context.Context, id, fullText string, durationSeconds, speakerCount *int) (bool, error)

	// MarkFailed writes the sentinel failure marker, also gated on NULL.
	MarkFailed(ctx context.Context, id, stage, reason string) (bool, error)

	// GetStuckTranscriptions returns audio contents whose full text is still
	// NULL and whose transcription was submitted before the cutoff.
	GetStuckTranscriptions(ctx context.Context, submittedBefore time.Time, limit int) ([]Content, error)
}

type SummaryRepository interface {
	// Upsert creates the placeholder row for a (content, language) pair or
	// returns the existing one; at most one row per pair ever exists.
	Upsert(ctx context.Context, contentID, language, modelUsed string) (*Summary, error)
	GetByContentAndLanguage(ctx context.Context, contentID, language string) (*Summary, error)

	// GetCompletedSource returns a completed summary to translate from,
	// preferring the given language, else any completed language.
	GetCompletedSource(ctx context.Context, contentID, preferredLanguage string) (*Summary, error)

	SetSectionJSON(ctx context.Context, id string, section SummarySection, data json.RawMessage, status string) error
	SetSectionText(ctx context.Context, id string, section SummarySection, text, status string) error
	SetTone(ctx context.Context, id, tone string) error
	SetTags(ctx context.Context, id string, tags []string) error
	SetStatus(ctx context.Context, id, status, errorMessage string) error

	// MarkCompleteIfFilled flips processing_status to complete only when every
	// required section is non-null, and reports whether it did.
	MarkCompleteIfFilled(ctx context.Context, id string) (bool, error)

	// SaveTranslated writes merged translated fields and completes the row.
	SaveTranslated(ctx context.Context, s *Summary) error
}

type SubscriptionRepository interface {
	GetDue(ctx context.Context, feedType FeedType, now time.Time, limit int) ([]Subscription, error)

	// RecordSuccess resets the failure counter to zero and advances the
	// watermark when newWatermark is non-nil.
	RecordSuccess(ctx context.Context, id string, checkedAt time.Time, newWatermark *time.Time) error

	// RecordFailure increments the failure counter and clears is_active the
	// moment the counter reaches the threshold. Returns the new counter value
	// and whether the subscription is still active.
	RecordFailure(ctx context.Context, id string, checkedAt time.Time, lastError string, deactivateAt int) (int, bool, error)

	// InsertItem inserts a feed item, ignoring duplicates on
	// (subscription, item URL). Reports whether a row was actually inserted.
	InsertItem(ctx context.Context, item *SubscriptionItem) (bool, error)
}

type UsageRepository interface {
	// Increment atomically bumps the (user, period, metric) counter if it is
	// below the limit. Returns whether the increment happened and the counter
	// value after the call.
	Increment(ctx context.Context, userID, period, metric string, limit int) (bool, int, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
