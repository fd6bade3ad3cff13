package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/pipeline"
)

type fakeContentRepo struct {
	mu       sync.Mutex
	contents map[string]*database.Content
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{contents: map[string]*database.Content{}}
}

func (f *fakeContentRepo) Create(ctx context.Context, c *database.Content) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents[c.ID] = c
	return nil
}

func (f *fakeContentRepo) GetByID(ctx context.Context, id string) (*database.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contents[id], nil
}

func (f *fakeContentRepo) GetByTranscriptJobID(ctx context.Context, jobID string) (*database.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contents {
		if c.TranscriptJobID != nil && *c.TranscriptJobID == jobID {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeContentRepo) SetStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.contents[id]; c != nil {
		c.Status = status
	}
	return nil
}

func (f *fakeContentRepo) SetTitle(ctx context.Context, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.contents[id]; c != nil {
		c.Title = title
	}
	return nil
}

func (f *fakeContentRepo) SetDisplayLanguage(ctx context.Context, id, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.contents[id]; c != nil {
		c.DisplayLanguage = language
	}
	return nil
}

func (f *fakeContentRepo) SetTranscriptJob(ctx context.Context, id, jobID string, submittedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.contents[id]; c != nil {
		c.TranscriptJobID = &jobID
		c.TranscriptSubmittedAt = &submittedAt
		c.Status = database.ContentStatusTranscribing
	}
	return nil
}

func (f *fakeContentRepo) SetFullTextIfNull(ctx context.Context, id, fullText string, durationSeconds, speakerCount *int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.contents[id]
	if c == nil || c.FullText != nil {
		return false, nil
	}
	c.FullText = &fullText
	c.DurationSeconds = durationSeconds
	c.SpeakerCount = speakerCount
	return true, nil
}

func (f *fakeContentRepo) MarkFailed(ctx context.Context, id, stage, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.contents[id]
	if c == nil || c.FullText != nil {
		return false, nil
	}
	marker := pipeline.Marker(stage, reason)
	c.FullText = &marker
	c.Status = database.ContentStatusError
	return true, nil
}

func (f *fakeContentRepo) GetStuckTranscriptions(ctx context.Context, submittedBefore time.Time, limit int) ([]database.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Content
	for _, c := range f.contents {
		if c.FullText == nil && c.TranscriptJobID != nil &&
			c.TranscriptSubmittedAt != nil && c.TranscriptSubmittedAt.Before(submittedBefore) {
			out = append(out, *c)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeSummaryRepo struct {
	mu        sync.Mutex
	summaries map[string]*database.Summary
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: map[string]*database.Summary{}}
}

func (f *fakeSummaryRepo) key(contentID, language string) string {
	return contentID + "/" + language
}

func (f *fakeSummaryRepo) Upsert(ctx context.Context, contentID, language, modelUsed string) (*database.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(contentID, language)
	if s, ok := f.summaries[k]; ok {
		return s, nil
	}
	s := &database.Summary{
		ID:               k,
		ContentID:        contentID,
		Language:         language,
		ProcessingStatus: database.SummaryStatusPending,
		ModelUsed:        modelUsed,
	}
	f.summaries[k] = s
	return s, nil
}

func (f *fakeSummaryRepo) GetByContentAndLanguage(ctx context.Context, contentID, language string) (*database.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summaries[f.key(contentID, language)], nil
}

func (f *fakeSummaryRepo) GetCompletedSource(ctx context.Context, contentID, preferredLanguage string) (*database.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.summaries[f.key(contentID, preferredLanguage)]; s != nil && s.ProcessingStatus == database.SummaryStatusComplete {
		return s, nil
	}
	for _, s := range f.summaries {
		if s.ContentID == contentID && s.ProcessingStatus == database.SummaryStatusComplete {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSummaryRepo) byID(id string) *database.Summary {
	for _, s := range f.summaries {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (f *fakeSummaryRepo) SetSectionJSON(ctx context.Context, id string, section database.SummarySection, data json.RawMessage, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.byID(id)
	if s == nil {
		return nil
	}
	switch section {
	case database.SectionOverview:
		s.Overview = data
	case database.SectionTriage:
		s.Triage = data
	case database.SectionFactCheck:
		s.FactCheck = data
	case database.SectionActionItems:
		s.ActionItems = data
	}
	s.ProcessingStatus = status
	return nil
}

func (f *fakeSummaryRepo) SetSectionText(ctx context.Context, id string, section database.SummarySection, text, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.byID(id)
	if s == nil {
		return nil
	}
	switch section {
	case database.SectionBriefSummary:
		s.BriefSummary = &text
	case database.SectionDetailedSummary:
		s.DetailedSummary = &text
	}
	s.ProcessingStatus = status
	return nil
}

func (f *fakeSummaryRepo) SetTone(ctx context.Context, id, tone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.byID(id); s != nil {
		s.Tone = &tone
	}
	return nil
}

func (f *fakeSummaryRepo) SetTags(ctx context.Context, id string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.byID(id); s != nil {
		s.Tags = tags
	}
	return nil
}

func (f *fakeSummaryRepo) SetStatus(ctx context.Context, id, status, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.byID(id); s != nil {
		s.ProcessingStatus = status
		s.ErrorMessage = errorMessage
	}
	return nil
}

func (f *fakeSummaryRepo) MarkCompleteIfFilled(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.byID(id)
	if s == nil {
		return false, nil
	}
	if s.Overview != nil && s.Triage != nil && s.FactCheck != nil && s.ActionItems != nil &&
		s.BriefSummary != nil && s.DetailedSummary != nil {
		s.ProcessingStatus = database.SummaryStatusComplete
		return true, nil
	}
	return false, nil
}

func (f *fakeSummaryRepo) SaveTranslated(ctx context.Context, s *database.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.byID(s.ID); existing != nil {
		*existing = *s
		existing.ProcessingStatus = database.SummaryStatusComplete
	}
	return nil
}

type countingAnalyzer struct {
	mu    sync.Mutex
	calls []string
}

func (a *countingAnalyzer) Analyze(ctx context.Context, contentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, contentID)
	return nil
}

func providerServer(t *testing.T, jobs map[string]*Job) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v2/transcript/")
		job := jobs[id]
		if job == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(job)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func stuckContent(id, jobID string, age time.Duration) *database.Content {
	submitted := time.Now().UTC().Add(-age)
	return &database.Content{
		ID:                    id,
		UserID:                "u1",
		Type:                  database.ContentTypePodcast,
		Status:                database.ContentStatusTranscribing,
		TranscriptJobID:       &jobID,
		TranscriptSubmittedAt: &submitted,
	}
}

func TestReconciler_RecoversCompletedJob(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}

	contents.Create(context.Background(), stuckContent("c1", "job-1", 25*time.Minute))

	srv := providerServer(t, map[string]*Job{
		"job-1": {
			ID:     "job-1",
			Status: JobStatusCompleted,
			Utterances: []Utterance{
				{Speaker: "A", Text: "hello", StartMs: 0},
			},
			AudioDuration: 120,
		},
	})

	client := NewClient(srv.Client(), srv.URL, "key")
	completer := NewCompleter(contents, summaries, analyzer, "en")
	reconciler := NewReconciler(contents, client, completer)

	if err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c, _ := contents.GetByID(context.Background(), "c1")
	if c.FullText == nil || !strings.Contains(*c.FullText, "Speaker A: hello") {
		t.Fatalf("Transcript not saved: %v", c.FullText)
	}
	if c.DurationSeconds == nil || *c.DurationSeconds != 120 {
		t.Errorf("Duration not saved")
	}
	if len(analyzer.calls) != 1 || analyzer.calls[0] != "c1" {
		t.Errorf("Analysis should be triggered exactly once, got %v", analyzer.calls)
	}

	// A second run must not re-query or re-analyze: full text is set.
	if err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(analyzer.calls) != 1 {
		t.Errorf("Recovered content was re-processed: %v", analyzer.calls)
	}
}

func TestReconciler_StillProcessingIsNoOp(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}

	contents.Create(context.Background(), stuckContent("c1", "job-1", 30*time.Minute))

	srv := providerServer(t, map[string]*Job{
		"job-1": {ID: "job-1", Status: JobStatusProcessing},
	})

	reconciler := NewReconciler(contents, NewClient(srv.Client(), srv.URL, "key"),
		NewCompleter(contents, summaries, analyzer, "en"))

	if err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c, _ := contents.GetByID(context.Background(), "c1")
	if c.FullText != nil {
		t.Errorf("Still-processing job should leave full text NULL, got %q", *c.FullText)
	}
	if len(analyzer.calls) != 0 {
		t.Errorf("No analysis should be triggered")
	}
}

func TestReconciler_ProviderErrorFailsContent(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}

	contents.Create(context.Background(), stuckContent("c1", "job-1", 30*time.Minute))

	srv := providerServer(t, map[string]*Job{
		"job-1": {ID: "job-1", Status: JobStatusError, Error: "audio unreadable"},
	})

	reconciler := NewReconciler(contents, NewClient(srv.Client(), srv.URL, "key"),
		NewCompleter(contents, summaries, analyzer, "en"))

	if err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c, _ := contents.GetByID(context.Background(), "c1")
	if c.FullText == nil || !pipeline.IsMarker(*c.FullText) {
		t.Fatalf("Expected sentinel marker, got %v", c.FullText)
	}
	if _, reason, _ := pipeline.ParseMarker(*c.FullText); reason != "PROVIDER_ERROR" {
		t.Errorf("Unexpected failure reason: %s", reason)
	}

	s, _ := summaries.GetByContentAndLanguage(context.Background(), "c1", "en")
	if s == nil || s.ProcessingStatus != database.SummaryStatusError {
		t.Errorf("Expected failed summary row, got %+v", s)
	}
}

func TestReconciler_AbandonsOldJobsWithoutPolling(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}

	contents.Create(context.Background(), stuckContent("c1", "job-1", 3*time.Hour))

	polled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polled = true
		json.NewEncoder(w).Encode(&Job{ID: "job-1", Status: JobStatusCompleted})
	}))
	defer srv.Close()

	reconciler := NewReconciler(contents, NewClient(srv.Client(), srv.URL, "key"),
		NewCompleter(contents, summaries, analyzer, "en"))

	if err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if polled {
		t.Errorf("Jobs past the recovery window should not be polled")
	}

	c, _ := contents.GetByID(context.Background(), "c1")
	if c.FullText == nil {
		t.Fatalf("Expected permanent failure marker")
	}
	if _, reason, _ := pipeline.ParseMarker(*c.FullText); reason != "RECOVERY_TIMEOUT" {
		t.Errorf("Unexpected failure reason: %v", *c.FullText)
	}
}

func TestReconciler_NoCredentialsAbandonsImmediately(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}

	contents.Create(context.Background(), stuckContent("c1", "job-1", 30*time.Minute))

	reconciler := NewReconciler(contents, NewClient(http.DefaultClient, "http://unused", ""),
		NewCompleter(contents, summaries, analyzer, "en"))

	if err := reconciler.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c, _ := contents.GetByID(context.Background(), "c1")
	if c.FullText == nil || !pipeline.IsMarker(*c.FullText) {
		t.Errorf("Expected failure marker when no credentials are configured")
	}
}

func TestCompleter_DuplicateWebhookIsSafe(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}
	completer := NewCompleter(contents, summaries, analyzer, "en")

	contents.Create(context.Background(), stuckContent("c1", "job-1", 5*time.Minute))

	utts := []Utterance{{Speaker: "A", Text: "once", StartMs: 0}}
	if err := completer.Complete(context.Background(), "c1", utts, 60); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := completer.Complete(context.Background(), "c1", utts, 60); err != nil {
		t.Fatalf("Duplicate delivery should be a no-op, got: %v", err)
	}

	if len(analyzer.calls) != 1 {
		t.Errorf("Analysis should run exactly once, got %d", len(analyzer.calls))
	}
}

func TestCompleter_FailDoesNotClobberSavedTranscript(t *testing.T) {
	contents := newFakeContentRepo()
	summaries := newFakeSummaryRepo()
	analyzer := &countingAnalyzer{}
	completer := NewCompleter(contents, summaries, analyzer, "en")

	contents.Create(context.Background(), stuckContent("c1", "job-1", 5*time.Minute))

	utts := []Utterance{{Speaker: "A", Text: "saved", StartMs: 0}}
	if err := completer.Complete(context.Background(), "c1", utts, 60); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// A late failure webhook must not overwrite the saved transcript.
	if err := completer.Fail(context.Background(), "c1", "PROVIDER_ERROR"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	c, _ := contents.GetByID(context.Background(), "c1")
	if pipeline.IsMarker(*c.FullText) {
		t.Errorf("Saved transcript was clobbered by late failure")
	}
}
