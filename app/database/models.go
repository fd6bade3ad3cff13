package database

import (
	"encoding/json"
	"time"
)

type ContentType string

const (
	ContentTypeVideo   ContentType = "video"
	ContentTypeArticle ContentType = "article"
	ContentTypeSocial  ContentType = "social"
	ContentTypePodcast ContentType = "podcast"
)

// Content statuses. The pipeline walks pending, extracting or transcribing,
// analyzing, complete, or ends in error.
const (
	ContentStatusPending      = "pending"
	ContentStatusExtracting   = "extracting"
	ContentStatusTranscribing = "transcribing"
	ContentStatusAnalyzing    = "analyzing"
	ContentStatusComplete     = "complete"
	ContentStatusError        = "error"
)

// Content is a user-submitted URL and everything the pipeline has derived from
// it. FullText is NULL while extraction is in flight; a sentinel
// PROCESSING_FAILED::STAGE::REASON value signals a typed failure. Transcription
// job state (provider job id + submission time) lives on the content row.
type Content struct {
	ID                    string
	UserID                string
	URL                   string
	Type                  ContentType
	Title                 string
	FullText              *string
	DurationSeconds       *int
	SpeakerCount          *int
	Status                string
	DisplayLanguage       string
	TranscriptJobID       *string
	TranscriptSubmittedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Summary statuses.
const (
	SummaryStatusPending     = "pending"
	SummaryStatusTranslating = "translating"
	SummaryStatusComplete    = "complete"
	SummaryStatusError       = "error"
)

// Summary holds one analysis per (content, language). Section fields are
// independently nullable and filled in incrementally so partial results can be
// polled before the whole pipeline finishes.
type Summary struct {
	ID               string
	ContentID        string
	Language         string
	Overview         json.RawMessage
	Triage           json.RawMessage
	FactCheck        json.RawMessage
	ActionItems      json.RawMessage
	BriefSummary     *string
	DetailedSummary  *string
	Tone             *string
	Tags             []string
	ProcessingStatus string
	ModelUsed        string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type FeedType string

const (
	FeedTypePodcast FeedType = "podcast"
	FeedTypeYouTube FeedType = "youtube"
)

// Subscription is a polled feed. LastItemAt is the new-item watermark;
// FailureCount drives auto-deactivation.
type Subscription struct {
	ID             string
	UserID         string
	FeedURL        string
	FeedType       FeedType
	Title          string
	CadenceHours   int
	LastCheckedAt  *time.Time
	LastItemAt     *time.Time
	FailureCount   int
	LastError      string
	IsActive       bool
	AuthHeaderEnc  *string
	CreatedAt      time.Time
}

type SubscriptionItem struct {
	ID             string
	SubscriptionID string
	ItemURL        string
	Title          string
	PublishedAt    time.Time
	CreatedAt      time.Time
}

// User carries the owner reference and tier derivation inputs. An expired
// time-boxed tier silently downgrades to free.
type User struct {
	ID            string
	Email         string
	Tier          string
	TierExpiresAt *time.Time
	CreatedAt     time.Time
}
