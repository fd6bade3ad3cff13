package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/recapio/recap/app/ai"
	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/pipeline"
	"github.com/recapio/recap/app/quota"
)

const stageTranslate = "TRANSLATE"

// ErrInFlight signals a translation for the same (content, language) pair is
// already running; the caller should retry later instead of starting another.
var ErrInFlight = errors.New("translation already in progress")

const translatePrompt = "You translate the string values of a JSON document into %s. " +
	"Preserve the JSON structure and keys exactly. Leave null values as null. Never " +
	"translate proper nouns, timestamps, URLs, or enum-like labels. Respond with the " +
	"translated JSON object and nothing else."

// Service translates completed summaries into other languages.
type Service struct {
	contents        database.ContentRepository
	summaries       database.SummaryRepository
	users           database.UserRepository
	gate            *quota.Gate
	runner          *ai.Runner
	chain           ai.Chain
	defaultLanguage string
}

func NewService(contents database.ContentRepository, summaries database.SummaryRepository,
	users database.UserRepository, gate *quota.Gate, runner *ai.Runner, chain ai.Chain,
	defaultLanguage string) *Service {
	return &Service{
		contents:        contents,
		summaries:       summaries,
		users:           users,
		gate:            gate,
		runner:          runner,
		chain:           chain,
		defaultLanguage: defaultLanguage,
	}
}

// Translate produces a summary row in the target language. Preconditions are
// checked in a fixed order: an already-completed target summary returns
// idempotently, an in-flight one returns ErrInFlight, then the tier gate, then
// source availability. The quota counter is only incremented once every
// precondition has passed.
func (s *Service) Translate(ctx context.Context, userID, contentID, targetLanguage string) (*database.Summary, error) {
	tag, err := language.Parse(targetLanguage)
	if err != nil {
		return nil, pipeline.NewError(pipeline.KindPermanentInput, stageTranslate, "BAD_LANGUAGE",
			fmt.Errorf("invalid target language %q: %w", targetLanguage, err))
	}
	target := tag.String()

	content, err := s.contents.GetByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load content: %w", err)
	}
	if content == nil || content.UserID != userID {
		return nil, pipeline.NewError(pipeline.KindPermanentInput, stageTranslate, "NOT_FOUND", nil)
	}

	existing, err := s.summaries.GetByContentAndLanguage(ctx, contentID, target)
	if err != nil {
		return nil, fmt.Errorf("failed to load summary: %w", err)
	}
	if existing != nil {
		switch existing.ProcessingStatus {
		case database.SummaryStatusComplete:
			return existing, nil
		case database.SummaryStatusTranslating:
			return nil, ErrInFlight
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, pipeline.NewError(pipeline.KindPermanentInput, stageTranslate, "NOT_FOUND", nil)
	}
	tier := quota.EffectiveTier(user.Tier, user.TierExpiresAt, time.Now().UTC())
	if !quota.AllowsTranslation(tier) {
		return nil, pipeline.NewError(pipeline.KindQuotaExceeded, stageTranslate, "TIER",
			fmt.Errorf("tier %s does not include translations", tier))
	}

	source, err := s.summaries.GetCompletedSource(ctx, contentID, s.defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("failed to load source summary: %w", err)
	}
	if source == nil {
		return nil, pipeline.NewError(pipeline.KindPermanentInput, stageTranslate, "NOT_ANALYZED",
			errors.New("analyze the content before requesting a translation"))
	}

	result, err := s.gate.CheckAndIncrement(ctx, userID, quota.MetricTranslations)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return nil, pipeline.NewError(pipeline.KindQuotaExceeded, stageTranslate, "LIMIT",
			fmt.Errorf("monthly translation limit of %d reached", result.Limit))
	}

	modelUsed := ""
	if len(s.chain) > 0 {
		modelUsed = s.chain[0].Name
	}
	row, err := s.summaries.Upsert(ctx, contentID, target, modelUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert summary: %w", err)
	}
	if err := s.summaries.SetStatus(ctx, row.ID, database.SummaryStatusTranslating, ""); err != nil {
		return nil, fmt.Errorf("failed to mark summary translating: %w", err)
	}

	merged, err := s.run(ctx, source, row, target)
	if err != nil {
		// Leave a retryable error state rather than a stuck "translating".
		if setErr := s.summaries.SetStatus(ctx, row.ID, database.SummaryStatusError, err.Error()); setErr != nil {
			slog.Error("Failed to record translation failure", "summary_id", row.ID, "error", setErr)
		}
		return nil, err
	}

	if err := s.contents.SetDisplayLanguage(ctx, contentID, target); err != nil {
		slog.Error("Failed to update display language", "content_id", contentID, "error", err)
	}

	slog.Info("Translation completed", "content_id", contentID, "language", target)
	return merged, nil
}

func (s *Service) run(ctx context.Context, source, row *database.Summary, target string) (*database.Summary, error) {
	payload, err := Extract(source)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	translated := map[string]any{}
	if _, err := s.runner.AttemptJSON(ctx, s.chain,
		fmt.Sprintf(translatePrompt, languageName(target)), string(body), &translated); err != nil {
		return nil, fmt.Errorf("translation call failed: %w", err)
	}

	if err := Merge(source, row, translated); err != nil {
		return nil, err
	}

	if err := s.summaries.SaveTranslated(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to save translated summary: %w", err)
	}
	row.ProcessingStatus = database.SummaryStatusComplete

	return row, nil
}

// languageName renders the target for the prompt; the English display name is
// clearer to the model than a bare BCP-47 tag.
func languageName(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Languages().Name(parsed); name != "" {
		return name
	}
	return tag
}
