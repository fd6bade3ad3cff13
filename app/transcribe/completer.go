package transcribe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/recapio/recap/app/database"
)

// Analyzer triggers AI analysis for a content item once its text is ready.
type Analyzer interface {
	Analyze(ctx context.Context, contentID string) error
}

// Completer applies a finished transcription to a content item. Both the
// webhook handler and the recovery reconciler funnel through it, so the
// conditional full-text write is the single point deciding which path wins.
type Completer struct {
	contents  database.ContentRepository
	summaries database.SummaryRepository
	analyzer  Analyzer
	language  string
}

func NewCompleter(contents database.ContentRepository, summaries database.SummaryRepository,
	analyzer Analyzer, language string) *Completer {
	return &Completer{
		contents:  contents,
		summaries: summaries,
		analyzer:  analyzer,
		language:  language,
	}
}

// Complete formats and saves a finished transcript. The write is gated on the
// full-text field still being NULL; a duplicate webhook or a lost race against
// the recovery poller is a clean no-op. Analysis is triggered exactly once,
// by whichever caller's write landed. Analysis failures are reported but do
// not re-fail the transcription.
func (c *Completer) Complete(ctx context.Context, contentID string, utterances []Utterance, audioDuration float64) error {
	transcript, speakerCount := FormatTranscript(utterances)
	if transcript == "" {
		return c.Fail(ctx, contentID, "EMPTY")
	}

	duration := int(audioDuration)
	wrote, err := c.contents.SetFullTextIfNull(ctx, contentID, transcript, &duration, &speakerCount)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if !wrote {
		slog.Debug("Transcript already saved, skipping", "content_id", contentID)
		return nil
	}

	slog.Info("Transcript saved",
		"content_id", contentID,
		"duration_seconds", duration,
		"speakers", speakerCount)

	if err := c.contents.SetStatus(ctx, contentID, database.ContentStatusAnalyzing); err != nil {
		slog.Error("Failed to update content status", "content_id", contentID, "error", err)
	}

	if err := c.analyzer.Analyze(ctx, contentID); err != nil {
		slog.Error("Analysis after transcription failed", "content_id", contentID, "error", err)
	}

	return nil
}

// Fail records a terminal transcription failure: sentinel marker on the
// content item and a failed summary row with a human-readable cause.
func (c *Completer) Fail(ctx context.Context, contentID, reason string) error {
	wrote, err := c.contents.MarkFailed(ctx, contentID, stageTranscribe, reason)
	if err != nil {
		return fmt.Errorf("failed to mark transcription failed: %w", err)
	}
	if !wrote {
		return nil
	}

	summary, err := c.summaries.Upsert(ctx, contentID, c.language, "")
	if err != nil {
		return fmt.Errorf("failed to upsert failed summary: %w", err)
	}
	if err := c.summaries.SetStatus(ctx, summary.ID, database.SummaryStatusError,
		fmt.Sprintf("transcription failed: %s", reason)); err != nil {
		return fmt.Errorf("failed to set summary error status: %w", err)
	}

	slog.Warn("Transcription failed", "content_id", contentID, "reason", reason)
	return nil
}
