package tasks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/feeds"
	"github.com/recapio/recap/app/notify"
)

type fakeSubs struct {
	database.SubscriptionRepository
	mu       sync.Mutex
	subs     map[string]*database.Subscription
	items    map[string]bool
	inserted int
}

func newFakeSubs(rows ...*database.Subscription) *fakeSubs {
	f := &fakeSubs{subs: map[string]*database.Subscription{}, items: map[string]bool{}}
	for _, r := range rows {
		f.subs[r.ID] = r
	}
	return f
}

func (f *fakeSubs) GetDue(ctx context.Context, feedType database.FeedType, now time.Time, limit int) ([]database.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []database.Subscription
	for _, s := range f.subs {
		if !s.IsActive || s.FeedType != feedType {
			continue
		}
		if s.LastCheckedAt != nil && s.LastCheckedAt.Add(time.Duration(s.CadenceHours)*time.Hour).After(now) {
			continue
		}
		due = append(due, *s)
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeSubs) RecordSuccess(ctx context.Context, id string, checkedAt time.Time, newWatermark *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.subs[id]
	s.FailureCount = 0
	s.LastError = ""
	s.LastCheckedAt = &checkedAt
	if newWatermark != nil {
		s.LastItemAt = newWatermark
	}
	return nil
}

func (f *fakeSubs) RecordFailure(ctx context.Context, id string, checkedAt time.Time, lastError string, deactivateAt int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.subs[id]
	s.FailureCount++
	s.LastError = lastError
	s.LastCheckedAt = &checkedAt
	if s.FailureCount >= deactivateAt {
		s.IsActive = false
	}
	return s.FailureCount, s.IsActive, nil
}

func (f *fakeSubs) InsertItem(ctx context.Context, item *database.SubscriptionItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := item.SubscriptionID + "/" + item.ItemURL
	if f.items[key] {
		return false, nil
	}
	f.items[key] = true
	f.inserted++
	return true, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches []notify.Batch
}

func (f *fakeNotifier) NotifyNewItems(ctx context.Context, batch notify.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	return nil
}

func rssBody(pubDates ...string) string {
	items := ""
	for i, d := range pubDates {
		items += fmt.Sprintf(`<item><title>Item %d</title><link>https://example.com/%d</link><pubDate>%s</pubDate></item>`, i, i, d)
	}
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>Feed</title>` + items + `</channel></rss>`
}

func activeSub(id, userID, feedURL string) *database.Subscription {
	return &database.Subscription{
		ID:           id,
		UserID:       userID,
		FeedURL:      feedURL,
		FeedType:     database.FeedTypePodcast,
		Title:        "Feed " + id,
		CadenceHours: 1,
		IsActive:     true,
	}
}

func TestPollFeedsTask_InsertsNewItemsAndAdvancesWatermark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("Mon, 03 Aug 2026 10:00:00 GMT", "Mon, 10 Aug 2026 10:00:00 GMT"))
	}))
	defer srv.Close()

	sub := activeSub("s1", "u1", srv.URL)
	watermark := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	sub.LastItemAt = &watermark

	subs := newFakeSubs(sub)
	notifier := &fakeNotifier{}
	task := NewPollFeedsTask(database.FeedTypePodcast, subs,
		feeds.NewFetcher(srv.Client(), "recap-test/1.0"), notifier, "")

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Only the item past the watermark is inserted.
	if subs.inserted != 1 {
		t.Errorf("Expected 1 inserted item, got %d", subs.inserted)
	}
	want := time.Date(2026, 8, 10, 10, 0, 0, 0, time.UTC)
	if sub.LastItemAt == nil || !sub.LastItemAt.Equal(want) {
		t.Errorf("Watermark not advanced to newest item: %v", sub.LastItemAt)
	}
	if sub.FailureCount != 0 {
		t.Errorf("Success must reset the failure counter")
	}
	if len(notifier.batches) != 1 || notifier.batches[0].UserID != "u1" {
		t.Errorf("Expected one notification for the owner, got %+v", notifier.batches)
	}
}

func TestPollFeedsTask_OneNotificationPerUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("Mon, 10 Aug 2026 10:00:00 GMT"))
	}))
	defer srv.Close()

	// Two subscriptions owned by the same user, one by another.
	subs := newFakeSubs(
		activeSub("s1", "u1", srv.URL+"/a"),
		activeSub("s2", "u1", srv.URL+"/b"),
		activeSub("s3", "u2", srv.URL+"/c"),
	)
	notifier := &fakeNotifier{}
	task := NewPollFeedsTask(database.FeedTypePodcast, subs,
		feeds.NewFetcher(srv.Client(), "recap-test/1.0"), notifier, "")

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(notifier.batches) != 2 {
		t.Fatalf("Expected one batch per user, got %d", len(notifier.batches))
	}
	counts := map[string]int{}
	for _, b := range notifier.batches {
		counts[b.UserID] = len(b.Items)
	}
	if counts["u1"] != 2 || counts["u2"] != 1 {
		t.Errorf("Items not batched per user: %v", counts)
	}
}

func TestPollFeedsTask_FailureCounterAndDeactivation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sub := activeSub("s1", "u1", srv.URL)
	subs := newFakeSubs(sub)
	task := NewPollFeedsTask(database.FeedTypePodcast, subs,
		feeds.NewFetcher(srv.Client(), "recap-test/1.0"), &fakeNotifier{}, "")

	for run := 1; run <= failureThreshold; run++ {
		sub.LastCheckedAt = nil // force due
		if err := task.Execute(context.Background()); err != nil {
			t.Fatalf("Run %d: unexpected error: %v", run, err)
		}
		if run < failureThreshold && !sub.IsActive {
			t.Fatalf("Deactivated too early, at failure %d", run)
		}
	}

	if sub.FailureCount != failureThreshold {
		t.Errorf("Expected %d failures, got %d", failureThreshold, sub.FailureCount)
	}
	if sub.IsActive {
		t.Errorf("Subscription must deactivate at the threshold")
	}

	// Run 8: the deactivated subscription is no longer selected.
	sub.LastCheckedAt = nil
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sub.FailureCount != failureThreshold {
		t.Errorf("Deactivated subscription must not be polled again, got %d failures", sub.FailureCount)
	}
}

func TestPollFeedsTask_DecryptsPrivateFeedCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, rssBody("Mon, 10 Aug 2026 10:00:00 GMT"))
	}))
	defer srv.Close()

	enc, err := feeds.EncryptCredential("key-passphrase", "Bearer private-token")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sub := activeSub("s1", "u1", srv.URL)
	sub.AuthHeaderEnc = &enc

	task := NewPollFeedsTask(database.FeedTypePodcast, newFakeSubs(sub),
		feeds.NewFetcher(srv.Client(), "recap-test/1.0"), &fakeNotifier{}, "key-passphrase")

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if gotAuth != "Bearer private-token" {
		t.Errorf("Decrypted credential not sent, got %q", gotAuth)
	}
}

func TestPollFeedsTask_DuplicateItemsIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, rssBody("Mon, 10 Aug 2026 10:00:00 GMT"))
	}))
	defer srv.Close()

	sub := activeSub("s1", "u1", srv.URL)
	subs := newFakeSubs(sub)
	notifier := &fakeNotifier{}
	task := NewPollFeedsTask(database.FeedTypePodcast, subs,
		feeds.NewFetcher(srv.Client(), "recap-test/1.0"), notifier, "")

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Second run with a rewound watermark: the unique constraint still stops
	// a duplicate insert and no notification goes out.
	sub.LastCheckedAt = nil
	sub.LastItemAt = nil
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if subs.inserted != 1 {
		t.Errorf("Duplicate item must not be inserted twice, got %d", subs.inserted)
	}
	if len(notifier.batches) != 1 {
		t.Errorf("Duplicate items must not be re-notified, got %d batches", len(notifier.batches))
	}
}
