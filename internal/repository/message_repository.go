package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// MessageRepository tracks inbound message activity for spam and trust checks
type MessageRepository struct {
	db sqlx.ExtContext
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Track records a message; redelivered messages are ignored
func (r *MessageRepository) Track(ctx context.Context, m *models.TrackedMessage) error {
	query := r.db.Rebind(`INSERT INTO message_tracking (message_id, user_id, channel_id, length, created_at) VALUES (?, ?, ?, ?, ?) ON CONFLICT (message_id) DO NOTHING`)
	if _, err := r.db.ExecContext(ctx, query, m.MessageID, m.UserID, m.ChannelID, m.Length, toMillis(m.CreatedAt)); err != nil {
		return fmt.Errorf("failed to track message: %w", err)
	}
	return nil
}

// CountInChannelSince counts the user's messages in a channel since the given time
func (r *MessageRepository) CountInChannelSince(ctx context.Context, userID, channelID string, since time.Time) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM message_tracking WHERE user_id = ? AND channel_id = ? AND created_at >= ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, query, userID, channelID, toMillis(since)); err != nil {
		return 0, fmt.Errorf("failed to count recent messages: %w", err)
	}
	return n, nil
}

// CountSince counts all of the user's messages since the given time
func (r *MessageRepository) CountSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM message_tracking WHERE user_id = ? AND created_at >= ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, query, userID, toMillis(since)); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// FirstSeen returns the earliest tracked message time for the user
func (r *MessageRepository) FirstSeen(ctx context.Context, userID string) (time.Time, bool, error) {
	var first sql.NullInt64
	query := r.db.Rebind(`SELECT MIN(created_at) FROM message_tracking WHERE user_id = ?`)
	if err := sqlx.GetContext(ctx, r.db, &first, query, userID); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get first seen: %w", err)
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(first.Int64), true, nil
}

// PruneBefore deletes tracking rows older than cutoff
func (r *MessageRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM message_tracking WHERE created_at < ?`), toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune tracked messages: %w", err)
	}
	return res.RowsAffected()
}
