package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/extract"
	"github.com/recapio/recap/app/pipeline"
	"github.com/recapio/recap/app/transcribe"
)

// ProcessContentTask walks one content item through extraction and, depending
// on the content type, either direct analysis or an async transcription
// submission.
type ProcessContentTask struct {
	Task
	contentID   string
	contents    database.ContentRepository
	summaries   database.SummaryRepository
	dispatcher  *extract.Dispatcher
	transcriber *transcribe.Client
	analyzer    transcribe.Analyzer
	webhookURL  string
	language    string
}

var _ TaskInterface = (*ProcessContentTask)(nil)

func NewProcessContentTask(contentID string, contents database.ContentRepository,
	summaries database.SummaryRepository, dispatcher *extract.Dispatcher,
	transcriber *transcribe.Client, analyzer transcribe.Analyzer,
	webhookURL, language string) *ProcessContentTask {
	return &ProcessContentTask{
		Task:        NewTask(TaskTypeProcessContent, contentID),
		contentID:   contentID,
		contents:    contents,
		summaries:   summaries,
		dispatcher:  dispatcher,
		transcriber: transcriber,
		analyzer:    analyzer,
		webhookURL:  webhookURL,
		language:    language,
	}
}

func (t *ProcessContentTask) Execute(ctx context.Context) error {
	content, err := t.contents.GetByID(ctx, t.contentID)
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}
	if content == nil {
		slog.Warn("Content vanished before processing", "content_id", t.contentID)
		return nil
	}
	if content.FullText != nil {
		slog.Debug("Content already processed, skipping", "content_id", t.contentID)
		return nil
	}

	if err := t.contents.SetStatus(ctx, t.contentID, database.ContentStatusExtracting); err != nil {
		return fmt.Errorf("failed to update content status: %w", err)
	}

	kind, result, err := t.dispatcher.Run(ctx, content.URL)
	if err != nil {
		return t.handleFailure(ctx, err)
	}

	if result.Title != "" {
		if err := t.contents.SetTitle(ctx, t.contentID, result.Title); err != nil {
			slog.Error("Failed to save title", "content_id", t.contentID, "error", err)
		}
	}

	if result.PendingTranscription {
		return t.submitTranscription(ctx, result.AudioURL)
	}

	var duration *int
	if result.DurationSeconds > 0 {
		duration = &result.DurationSeconds
	}
	wrote, err := t.contents.SetFullTextIfNull(ctx, t.contentID, result.Text, duration, nil)
	if err != nil {
		return fmt.Errorf("failed to save extracted text: %w", err)
	}
	if !wrote {
		slog.Debug("Text already saved, skipping analysis trigger", "content_id", t.contentID)
		return nil
	}

	slog.Info("Task completed",
		"type", string(TaskTypeProcessContent),
		"content_id", t.contentID,
		"kind", string(kind),
		"duration", t.GetDuration(),
		"chars", len(result.Text))

	if err := t.contents.SetStatus(ctx, t.contentID, database.ContentStatusAnalyzing); err != nil {
		slog.Error("Failed to update content status", "content_id", t.contentID, "error", err)
	}
	if err := t.analyzer.Analyze(ctx, t.contentID); err != nil {
		// Extraction already succeeded; retrying the task would re-extract.
		slog.Error("Analysis failed", "content_id", t.contentID, "error", err)
	}
	return nil
}

func (t *ProcessContentTask) submitTranscription(ctx context.Context, audioURL string) error {
	if !t.transcriber.Configured() {
		return t.handleFailure(ctx, pipeline.NewError(pipeline.KindPermanentInput,
			"TRANSCRIBE", "NOT_CONFIGURED", errors.New("no transcription provider credentials")))
	}

	jobID, err := t.transcriber.Submit(ctx, audioURL, t.webhookURL)
	if err != nil {
		return t.handleFailure(ctx, err)
	}

	if err := t.contents.SetTranscriptJob(ctx, t.contentID, jobID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record transcription job: %w", err)
	}

	slog.Info("Transcription submitted", "content_id", t.contentID, "job_id", jobID)
	return nil
}

// handleFailure converts an error into either a retry (transient, attempts
// left) or a recorded terminal failure.
func (t *ProcessContentTask) handleFailure(ctx context.Context, cause error) error {
	if pipeline.Retryable(cause) && t.CanRetry() {
		return cause
	}

	stage, reason := "EXTRACT", "UNKNOWN"
	var pe *pipeline.Error
	if errors.As(cause, &pe) {
		stage, reason = pe.Stage, pe.Reason
	}

	wrote, err := t.contents.MarkFailed(ctx, t.contentID, stage, reason)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	if !wrote {
		return nil
	}

	summary, err := t.summaries.Upsert(ctx, t.contentID, t.language, "")
	if err != nil {
		return fmt.Errorf("failed to upsert failed summary: %w", err)
	}
	if err := t.summaries.SetStatus(ctx, summary.ID, database.SummaryStatusError,
		fmt.Sprintf("processing failed at %s: %s", stage, reason)); err != nil {
		return fmt.Errorf("failed to set summary error status: %w", err)
	}

	slog.Warn("Content processing failed",
		"content_id", t.contentID, "stage", stage, "reason", reason, "error", cause)
	return nil
}
