package api

import (
	"context"
	"encoding/json"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/translate"
)

// headerUserID carries the authenticated end-user identity, set by the
// gateway in front of this service.
const headerUserID = "X-User-ID"

// TaskEnqueuer hands freshly-submitted content to the background scheduler.
type TaskEnqueuer interface {
	EnqueueProcessContent(contentID string)
}

// TranslationService is the translation entry point the API exposes.
type TranslationService interface {
	Translate(ctx context.Context, userID, contentID, targetLanguage string) (*database.Summary, error)
}

var _ TranslationService = (*translate.Service)(nil)

type submitContentRequest struct {
	URL string `json:"url" binding:"required"`
}

type submitContentResponse struct {
	ContentID string `json:"content_id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
}

type translateRequest struct {
	Language string `json:"language" binding:"required"`
}

type summaryResponse struct {
	ContentID        string          `json:"content_id"`
	Language         string          `json:"language"`
	ProcessingStatus string          `json:"processing_status"`
	Overview         json.RawMessage `json:"overview,omitempty"`
	Triage           json.RawMessage `json:"triage,omitempty"`
	FactCheck        json.RawMessage `json:"fact_check,omitempty"`
	ActionItems      json.RawMessage `json:"action_items,omitempty"`
	BriefSummary     *string         `json:"brief_summary,omitempty"`
	DetailedSummary  *string         `json:"detailed_summary,omitempty"`
	Tone             *string         `json:"tone,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	ModelUsed        string          `json:"model_used,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

func newSummaryResponse(s *database.Summary) summaryResponse {
	return summaryResponse{
		ContentID:        s.ContentID,
		Language:         s.Language,
		ProcessingStatus: s.ProcessingStatus,
		Overview:         s.Overview,
		Triage:           s.Triage,
		FactCheck:        s.FactCheck,
		ActionItems:      s.ActionItems,
		BriefSummary:     s.BriefSummary,
		DetailedSummary:  s.DetailedSummary,
		Tone:             s.Tone,
		Tags:             s.Tags,
		ModelUsed:        s.ModelUsed,
		ErrorMessage:     s.ErrorMessage,
	}
}
