package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectNewItems = "recap.feeds.newitems"

// NewItem is one feed entry surfaced to a user.
type NewItem struct {
	SubscriptionID    string    `json:"subscription_id"`
	SubscriptionTitle string    `json:"subscription_title"`
	URL               string    `json:"url"`
	Title             string    `json:"title"`
	PublishedAt       time.Time `json:"published_at"`
}

// Batch carries every new item one user received in a single poll run. One
// message per user per run, never one per item.
type Batch struct {
	UserID string    `json:"user_id"`
	Items  []NewItem `json:"items"`
	SentAt time.Time `json:"sent_at"`
}

// Notifier delivers per-user new-item batches to downstream consumers.
type Notifier interface {
	NotifyNewItems(ctx context.Context, batch Batch) error
}

// NATSNotifier publishes batches as JSON messages on NATS.
type NATSNotifier struct {
	conn *nats.Conn
}

var _ Notifier = (*NATSNotifier)(nil)

func NewNATSNotifier(url string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("recap"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn}, nil
}

func (n *NATSNotifier) NotifyNewItems(ctx context.Context, batch Batch) error {
	if len(batch.Items) == 0 {
		return nil
	}
	batch.SentAt = time.Now().UTC()

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.conn.Publish(subjectNewItems, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	slog.Debug("Notification published", "user_id", batch.UserID, "items", len(batch.Items))
	return nil
}

func (n *NATSNotifier) Close() {
	if n.conn != nil {
		n.conn.Drain()
	}
}

// NopNotifier is used when no NATS URL is configured.
type NopNotifier struct{}

var _ Notifier = (*NopNotifier)(nil)

func (NopNotifier) NotifyNewItems(ctx context.Context, batch Batch) error {
	slog.Debug("Notifications disabled, dropping batch",
		"user_id", batch.UserID, "items", len(batch.Items))
	return nil
}
