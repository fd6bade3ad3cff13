package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/recapio/recap/app/ai"
	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/pipeline"
	"github.com/recapio/recap/app/sanitize"
	"github.com/recapio/recap/app/transcribe"
)

// maxSourceChars bounds the sanitized source text sent to the models.
const maxSourceChars = 60000

// sectionSequence is the fixed order processing_status walks through. The
// sections complete in parallel; the status reflects the furthest section
// reached so far.
var sectionSequence = []database.SummarySection{
	database.SectionOverview,
	database.SectionTriage,
	database.SectionFactCheck,
	database.SectionActionItems,
	database.SectionBriefSummary,
	database.SectionDetailedSummary,
}

// Orchestrator runs the two-phase analysis fan-out for one content item and
// writes each section to the summary row as it lands.
type Orchestrator struct {
	contents  database.ContentRepository
	summaries database.SummaryRepository
	runner    *ai.Runner
	chains    ai.Chains
	search    *SearchClient
	language  string
}

var _ transcribe.Analyzer = (*Orchestrator)(nil)

func NewOrchestrator(contents database.ContentRepository, summaries database.SummaryRepository,
	runner *ai.Runner, chains ai.Chains, search *SearchClient, language string) *Orchestrator {
	return &Orchestrator{
		contents:  contents,
		summaries: summaries,
		runner:    runner,
		chains:    chains,
		search:    search,
		language:  language,
	}
}

// Analyze produces every analysis section for the content item. Section
// failures are isolated: a section that exhausts its model chain is recorded
// in the summary's error message while its siblings keep their results.
func (o *Orchestrator) Analyze(ctx context.Context, contentID string) error {
	content, err := o.contents.GetByID(ctx, contentID)
	if err != nil {
		return fmt.Errorf("failed to load content: %w", err)
	}
	if content == nil {
		return fmt.Errorf("content %s not found", contentID)
	}
	if content.FullText == nil {
		return fmt.Errorf("content %s has no text to analyze", contentID)
	}
	if pipeline.IsMarker(*content.FullText) {
		return fmt.Errorf("content %s failed upstream: %s", contentID, *content.FullText)
	}

	modelUsed := ""
	if len(o.chains.Analysis) > 0 {
		modelUsed = o.chains.Analysis[0].Name
	}
	summary, err := o.summaries.Upsert(ctx, contentID, o.language, modelUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert summary: %w", err)
	}

	source := sanitize.Sanitize(*content.FullText, maxSourceChars)
	wrapped := sanitize.WrapUserContent(source)

	slog.Info("Starting analysis", "content_id", contentID, "summary_id", summary.ID,
		"source_chars", len(source))

	tone, queries := o.preprocess(ctx, wrapped)
	if tone != "" {
		if err := o.summaries.SetTone(ctx, summary.ID, tone); err != nil {
			slog.Error("Failed to save tone", "summary_id", summary.ID, "error", err)
		}
	}
	evidence := o.search.Gather(ctx, queries)

	failed, tagInput := o.runSections(ctx, summary.ID, wrapped, evidence)

	o.extractTags(ctx, summary.ID, tagInput)

	complete, err := o.summaries.MarkCompleteIfFilled(ctx, summary.ID)
	if err != nil {
		return fmt.Errorf("failed to finalize summary: %w", err)
	}

	if len(failed) > 0 {
		message := "sections failed: " + strings.Join(failed, ", ")
		if err := o.summaries.SetStatus(ctx, summary.ID, database.SummaryStatusError, message); err != nil {
			slog.Error("Failed to record section failures", "summary_id", summary.ID, "error", err)
		}
		if err := o.contents.SetStatus(ctx, contentID, database.ContentStatusError); err != nil {
			slog.Error("Failed to update content status", "content_id", contentID, "error", err)
		}
		return fmt.Errorf("analysis incomplete, %s", message)
	}

	if complete {
		if err := o.contents.SetStatus(ctx, contentID, database.ContentStatusComplete); err != nil {
			slog.Error("Failed to update content status", "content_id", contentID, "error", err)
		}
	}

	slog.Info("Analysis finished", "content_id", contentID, "complete", complete)
	return nil
}

// preprocess is phase 1: tone detection and search-topic extraction in
// parallel on the fast chain. Both are best-effort.
func (o *Orchestrator) preprocess(ctx context.Context, wrapped string) (string, []string) {
	var tone tonePayload
	var topics topicsPayload
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := o.runner.AttemptJSON(ctx, o.chains.Fast, tonePrompt, wrapped, &tone); err != nil {
			slog.Warn("Tone detection failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := o.runner.AttemptJSON(ctx, o.chains.Fast, topicsPrompt, wrapped, &topics); err != nil {
			slog.Warn("Search-topic extraction failed", "error", err)
		}
	}()
	wg.Wait()

	return strings.TrimSpace(tone.Tone), topics.Queries
}

// runSections is phase 2: the six main sections fan out concurrently, each
// writing its own column as it completes. Returns the names of failed
// sections and the text used for tag extraction; the batch always waits for
// every member.
func (o *Orchestrator) runSections(ctx context.Context, summaryID, wrapped, evidence string) ([]string, string) {
	prog := newProgress()

	factCheckInput := wrapped
	if evidence != "" {
		factCheckInput = wrapped + "\n\nSearch evidence:\n" + evidence
	}

	var overview Overview
	var brief string

	type job struct {
		section database.SummarySection
		run     func() error
	}
	jobs := []job{
		{database.SectionOverview, func() error {
			return o.jsonSection(ctx, summaryID, database.SectionOverview, overviewPrompt, wrapped, &overview, prog)
		}},
		{database.SectionTriage, func() error {
			return o.jsonSection(ctx, summaryID, database.SectionTriage, triagePrompt, wrapped, &Triage{}, prog)
		}},
		{database.SectionFactCheck, func() error {
			return o.jsonSection(ctx, summaryID, database.SectionFactCheck, factCheckPrompt, factCheckInput, &FactCheck{}, prog)
		}},
		{database.SectionActionItems, func() error {
			return o.jsonSection(ctx, summaryID, database.SectionActionItems, actionItemsPrompt, wrapped, &ActionItems{}, prog)
		}},
		{database.SectionBriefSummary, func() error {
			text, err := o.textSection(ctx, summaryID, database.SectionBriefSummary, briefSummaryPrompt, wrapped, prog)
			brief = text
			return err
		}},
		{database.SectionDetailedSummary, func() error {
			_, err := o.textSection(ctx, summaryID, database.SectionDetailedSummary, detailedSummaryPrompt, wrapped, prog)
			return err
		}},
	}

	var mu sync.Mutex
	var failed []string
	var wg sync.WaitGroup

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if err := j.run(); err != nil {
				slog.Error("Analysis section failed",
					"summary_id", summaryID, "section", j.section, "error", err)
				mu.Lock()
				failed = append(failed, string(j.section))
				mu.Unlock()
			}
		}(j)
	}
	wg.Wait()

	var tagInput strings.Builder
	if overview.Hook != "" {
		tagInput.WriteString(overview.Hook)
		tagInput.WriteString("\n")
		tagInput.WriteString(strings.Join(overview.KeyPoints, "\n"))
		tagInput.WriteString("\n\n")
	}
	tagInput.WriteString(brief)

	return failed, strings.TrimSpace(tagInput.String())
}

func (o *Orchestrator) jsonSection(ctx context.Context, summaryID string,
	section database.SummarySection, system, user string, out any, prog *progress) error {
	model, err := o.runner.AttemptJSON(ctx, o.chains.Analysis, system, user, out)
	if err != nil {
		return err
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode section: %w", err)
	}
	o.checkLeakage(summaryID, section, string(data))

	slog.Debug("Section completed", "summary_id", summaryID, "section", section, "model", model)
	return o.summaries.SetSectionJSON(ctx, summaryID, section, data, prog.advance(section))
}

func (o *Orchestrator) textSection(ctx context.Context, summaryID string,
	section database.SummarySection, system, user string, prog *progress) (string, error) {
	completion, err := o.runner.AttemptText(ctx, o.chains.Analysis, system, user)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(completion.Text)
	o.checkLeakage(summaryID, section, text)

	slog.Debug("Section completed", "summary_id", summaryID, "section", section, "model", completion.Model)
	return text, o.summaries.SetSectionText(ctx, summaryID, section, text, prog.advance(section))
}

// extractTags is the post-processing call: tags derived from the completed
// sections, best-effort on the fast chain.
func (o *Orchestrator) extractTags(ctx context.Context, summaryID, input string) {
	if input == "" {
		return
	}

	var tags tagsPayload
	if _, err := o.runner.AttemptJSON(ctx, o.chains.Fast, tagsPrompt, input, &tags); err != nil {
		slog.Warn("Tag extraction failed", "summary_id", summaryID, "error", err)
		return
	}
	if len(tags.Tags) == 0 {
		return
	}

	if err := o.summaries.SetTags(ctx, summaryID, tags.Tags); err != nil {
		slog.Error("Failed to save tags", "summary_id", summaryID, "error", err)
	}
}

func (o *Orchestrator) checkLeakage(summaryID string, section database.SummarySection, output string) {
	if leaks := sanitize.DetectOutputLeakage(output); len(leaks) > 0 {
		slog.Warn("Possible prompt leakage in model output",
			"summary_id", summaryID, "section", section, "matches", leaks)
	}
}

// progress tracks which sections have landed so the summary's
// processing_status can advance monotonically through the fixed sequence.
type progress struct {
	mu   sync.Mutex
	done map[database.SummarySection]bool
}

func newProgress() *progress {
	return &progress{done: map[database.SummarySection]bool{}}
}

func (p *progress) advance(section database.SummarySection) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done[section] = true

	status := string(sectionSequence[0])
	for _, s := range sectionSequence {
		if p.done[s] {
			status = string(s)
		}
	}
	return status
}
