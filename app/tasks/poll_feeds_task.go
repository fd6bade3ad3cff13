package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recapio/recap/app/database"
	"github.com/recapio/recap/app/feeds"
	"github.com/recapio/recap/app/notify"
)

const (
	// failureThreshold is the consecutive-failure count at which a
	// subscription is deactivated. The counter resets to zero on the next
	// success, so transient outages never require manual reactivation.
	failureThreshold = 7

	// pollBatchSize caps subscriptions per run per feed type.
	pollBatchSize = 25
)

// PollFeedsTask checks every due subscription of one feed type, records new
// items past each subscription's watermark, and sends one notification per
// owning user for the whole run.
type PollFeedsTask struct {
	Task
	feedType      database.FeedType
	subs          database.SubscriptionRepository
	fetcher       *feeds.Fetcher
	notifier      notify.Notifier
	credentialKey string
}

var _ TaskInterface = (*PollFeedsTask)(nil)

func NewPollFeedsTask(feedType database.FeedType, subs database.SubscriptionRepository,
	fetcher *feeds.Fetcher, notifier notify.Notifier, credentialKey string) *PollFeedsTask {
	return &PollFeedsTask{
		Task:          NewTask(TaskTypePollFeeds, string(feedType)),
		feedType:      feedType,
		subs:          subs,
		fetcher:       fetcher,
		notifier:      notifier,
		credentialKey: credentialKey,
	}
}

func (t *PollFeedsTask) Execute(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := t.subs.GetDue(ctx, t.feedType, now, pollBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load due subscriptions: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	// Batch members run concurrently and independently; a member's failure is
	// recorded on its own row and never aborts siblings.
	var mu sync.Mutex
	perUser := map[string][]notify.NewItem{}
	var wg sync.WaitGroup

	for i := range due {
		sub := due[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := t.pollOne(ctx, &sub, now)
			if len(items) == 0 {
				return
			}
			mu.Lock()
			perUser[sub.UserID] = append(perUser[sub.UserID], items...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	for userID, items := range perUser {
		if err := t.notifier.NotifyNewItems(ctx, notify.Batch{UserID: userID, Items: items}); err != nil {
			slog.Error("Failed to notify user", "user_id", userID, "error", err)
		}
	}

	slog.Info("Task completed",
		"type", string(TaskTypePollFeeds),
		"feed_type", string(t.feedType),
		"duration", t.GetDuration(),
		"subscriptions", len(due),
		"users_notified", len(perUser))

	return nil
}

func (t *PollFeedsTask) pollOne(ctx context.Context, sub *database.Subscription, now time.Time) []notify.NewItem {
	authHeader := ""
	if sub.AuthHeaderEnc != nil {
		decrypted, err := feeds.DecryptCredential(t.credentialKey, *sub.AuthHeaderEnc)
		if err != nil {
			t.recordFailure(ctx, sub, now, fmt.Errorf("failed to decrypt credential: %w", err))
			return nil
		}
		authHeader = decrypted
	}

	_, items, err := t.fetcher.Fetch(ctx, sub.FeedURL, authHeader)
	if err != nil {
		t.recordFailure(ctx, sub, now, err)
		return nil
	}

	var newItems []notify.NewItem
	var newest *time.Time

	for _, item := range items {
		if sub.LastItemAt != nil && !item.PublishedAt.After(*sub.LastItemAt) {
			continue
		}

		inserted, err := t.subs.InsertItem(ctx, &database.SubscriptionItem{
			SubscriptionID: sub.ID,
			ItemURL:        item.URL,
			Title:          item.Title,
			PublishedAt:    item.PublishedAt,
		})
		if err != nil {
			slog.Error("Failed to insert feed item",
				"subscription_id", sub.ID, "url", item.URL, "error", err)
			continue
		}
		if !inserted {
			continue
		}

		if newest == nil || item.PublishedAt.After(*newest) {
			published := item.PublishedAt
			newest = &published
		}
		newItems = append(newItems, notify.NewItem{
			SubscriptionID:    sub.ID,
			SubscriptionTitle: sub.Title,
			URL:               item.URL,
			Title:             item.Title,
			PublishedAt:       item.PublishedAt,
		})
	}

	if err := t.subs.RecordSuccess(ctx, sub.ID, now, newest); err != nil {
		slog.Error("Failed to record poll success", "subscription_id", sub.ID, "error", err)
		return newItems
	}

	if len(newItems) > 0 {
		slog.Debug("New feed items", "subscription_id", sub.ID, "count", len(newItems))
	}
	return newItems
}

func (t *PollFeedsTask) recordFailure(ctx context.Context, sub *database.Subscription, now time.Time, cause error) {
	count, active, err := t.subs.RecordFailure(ctx, sub.ID, now, cause.Error(), failureThreshold)
	if err != nil {
		slog.Error("Failed to record poll failure", "subscription_id", sub.ID, "error", err)
		return
	}

	if !active {
		slog.Warn("Subscription deactivated after consecutive failures",
			"subscription_id", sub.ID, "failures", count, "last_error", cause.Error())
		return
	}
	slog.Warn("Feed poll failed",
		"subscription_id", sub.ID, "failures", count, "error", cause)
}
