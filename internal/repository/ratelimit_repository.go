package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/jmoiron/sqlx"
)

// RateLimitRepository keeps fixed-window command counters
type RateLimitRepository struct {
	db sqlx.ExtContext
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Hit records one command in the user's window and returns the resulting
// count. The window restarts when more than window has passed since it
// opened. Once the count passes limit it stops growing, so callers allow the
// command when the returned count is <= limit.
func (r *RateLimitRepository) Hit(ctx context.Context, userID string, now time.Time, window time.Duration, limit int) (int, error) {
	nowMs := toMillis(now)
	windowMs := window.Milliseconds()

	query := r.db.Rebind(`INSERT INTO command_rate_limits (user_id, window_start, command_count) VALUES (?, ?, 1)
		ON CONFLICT (user_id) DO UPDATE SET
			window_start = CASE WHEN ? - command_rate_limits.window_start > ? THEN excluded.window_start ELSE command_rate_limits.window_start END,
			command_count = CASE
				WHEN ? - command_rate_limits.window_start > ? THEN 1
				WHEN command_rate_limits.command_count > ? THEN command_rate_limits.command_count
				ELSE command_rate_limits.command_count + 1
			END
		RETURNING command_count`)

	var count int
	err := sqlx.GetContext(ctx, r.db, &count, query, userID, nowMs, nowMs, windowMs, nowMs, windowMs, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to record command: %w", err)
	}
	return count, nil
}

// Reset clears the user's window
func (r *RateLimitRepository) Reset(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM command_rate_limits WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
