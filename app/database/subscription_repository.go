package database

import (
	"context"
	"fmt"
	"time"
)

var _ SubscriptionRepository = (*SubscriptionRepo)(nil)

// SubscriptionRepo handles database operations for feed subscriptions
type SubscriptionRepo struct {
	db *DB
}

func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, feed_url, feed_type, COALESCE(title, ''),
	cadence_hours, last_checked_at, last_item_at, failure_count,
	COALESCE(last_error, ''), is_active, auth_header_enc, created_at`

// GetDue returns active subscriptions never checked or checked longer ago
// than their cadence.
func (r *SubscriptionRepo) GetDue(ctx context.Context, feedType FeedType, now time.Time, limit int) ([]Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE is_active = TRUE
		  AND feed_type = $1
		  AND (last_checked_at IS NULL
		       OR last_checked_at < $2 - (cadence_hours * INTERVAL '1 hour'))
		ORDER BY COALESCE(last_checked_at, '1970-01-01'::timestamptz)
		LIMIT $3
	`, feedType, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		err := rows.Scan(
			&s.ID, &s.UserID, &s.FeedURL, &s.FeedType, &s.Title,
			&s.CadenceHours, &s.LastCheckedAt, &s.LastItemAt, &s.FailureCount,
			&s.LastError, &s.IsActive, &s.AuthHeaderEnc, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}

	return subs, nil
}

func (r *SubscriptionRepo) RecordSuccess(ctx context.Context, id string, checkedAt time.Time, newWatermark *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET last_checked_at = $2,
		    last_item_at = COALESCE($3, last_item_at),
		    failure_count = 0,
		    last_error = ''
		WHERE id = $1
	`, id, checkedAt, newWatermark)

	if err != nil {
		return fmt.Errorf("failed to record subscription success: %w", err)
	}

	return nil
}

// RecordFailure bumps the failure counter and deactivates the subscription in
// the same statement the moment the counter reaches the threshold.
func (r *SubscriptionRepo) RecordFailure(ctx context.Context, id string, checkedAt time.Time, lastError string, deactivateAt int) (int, bool, error) {
	var count int
	var active bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE subscriptions
		SET last_checked_at = $2,
		    last_error = $3,
		    failure_count = failure_count + 1,
		    is_active = is_active AND (failure_count + 1 < $4)
		WHERE id = $1
		RETURNING failure_count, is_active
	`, id, checkedAt, lastError, deactivateAt).Scan(&count, &active)

	if err != nil {
		return 0, false, fmt.Errorf("failed to record subscription failure: %w", err)
	}

	return count, active, nil
}

func (r *SubscriptionRepo) InsertItem(ctx context.Context, item *SubscriptionItem) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_items (subscription_id, item_url, title, published_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subscription_id, item_url) DO NOTHING
	`, item.SubscriptionID, item.ItemURL, item.Title, item.PublishedAt)

	if err != nil {
		return false, fmt.Errorf("failed to insert subscription item: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n > 0, nil
}
