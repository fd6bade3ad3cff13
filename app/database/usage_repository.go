package database

import (
	"context"
	"database/sql"
	"fmt"
)

var _ UsageRepository = (*UsageRepo)(nil)
var _ UserRepository = (*UserRepo)(nil)

// UsageRepo handles the per-user, per-period metered counters
type UsageRepo struct {
	db *DB
}

func NewUsageRepo(db *DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// Increment bumps the counter only while it is below the limit, in a single
// statement so two concurrent requests against a counter at limit-1 can never
// both pass.
func (r *UsageRepo) Increment(ctx context.Context, userID, period, metric string, limit int) (bool, int, error) {
	var used int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (user_id, period, metric, used)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, period, metric) DO UPDATE
		SET used = usage_counters.used + 1
		WHERE usage_counters.used < $4
		RETURNING used
	`, userID, period, metric, limit).Scan(&used)

	if err == sql.ErrNoRows {
		// Conditional update matched nothing: the counter is at its limit.
		err = r.db.QueryRowContext(ctx, `
			SELECT used FROM usage_counters
			WHERE user_id = $1 AND period = $2 AND metric = $3
		`, userID, period, metric).Scan(&used)
		if err != nil {
			return false, 0, fmt.Errorf("failed to read exhausted counter: %w", err)
		}
		return false, used, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment usage counter: %w", err)
	}

	return true, used, nil
}

// UserRepo reads the owner/tier reference
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, tier, tier_expires_at, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Tier, &u.TierExpiresAt, &u.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &u, nil
}
