package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

type WarningRepository struct {
	db sqlx.ExtContext
}

func NewWarningRepository(db *database.DB) *WarningRepository {
	return &WarningRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *WarningRepository) WithTx(tx *sqlx.Tx) *WarningRepository {
	return &WarningRepository{db: tx}
}

type warningRow struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	CreatedAt   int64  `db:"created_at"`
	ExpiresAt   int64  `db:"expires_at"`
	Reason      string `db:"reason"`
	ModeratorID string `db:"moderator_id"`
	OriginLogID string `db:"origin_log_id"`
}

func (w warningRow) model() models.WarningRecord {
	return models.WarningRecord{
		ID:          w.ID,
		UserID:      w.UserID,
		CreatedAt:   fromMillis(w.CreatedAt),
		ExpiresAt:   fromMillis(w.ExpiresAt),
		Reason:      w.Reason,
		ModeratorID: w.ModeratorID,
		OriginLogID: w.OriginLogID,
	}
}

// Insert stores a new warning record
func (r *WarningRepository) Insert(ctx context.Context, rec *models.WarningRecord) error {
	query := r.db.Rebind(`INSERT INTO warning_records (id, user_id, created_at, expires_at, reason, moderator_id, origin_log_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.UserID, toMillis(rec.CreatedAt), toMillis(rec.ExpiresAt), rec.Reason, rec.ModeratorID, rec.OriginLogID)
	if err != nil {
		return fmt.Errorf("failed to insert warning record: %w", err)
	}
	return nil
}

// ExpiredUsers lists users owning at least one record that expired before now
func (r *WarningRepository) ExpiredUsers(ctx context.Context, now time.Time) ([]string, error) {
	var users []string
	query := r.db.Rebind(`SELECT DISTINCT user_id FROM warning_records WHERE expires_at < ? ORDER BY user_id`)
	if err := sqlx.SelectContext(ctx, r.db, &users, query, toMillis(now)); err != nil {
		return nil, fmt.Errorf("failed to query expired warning owners: %w", err)
	}
	return users, nil
}

// DeleteExpired removes every record that expired before now
func (r *WarningRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM warning_records WHERE expires_at < ?`), toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired warnings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted warnings: %w", err)
	}
	return n, nil
}

// CountActive counts the user's records with expires_at >= now
func (r *WarningRepository) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM warning_records WHERE user_id = ? AND expires_at >= ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, query, userID, toMillis(now)); err != nil {
		return 0, fmt.Errorf("failed to count active warnings: %w", err)
	}
	return n, nil
}

// ListActive returns the user's active records, oldest first
func (r *WarningRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]models.WarningRecord, error) {
	var rows []warningRow
	query := r.db.Rebind(`SELECT id, user_id, created_at, expires_at, reason, moderator_id, origin_log_id FROM warning_records WHERE user_id = ? AND expires_at >= ? ORDER BY created_at ASC, id ASC`)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID, toMillis(now)); err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	res := make([]models.WarningRecord, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.model())
	}
	return res, nil
}

// OldestActiveIDs returns up to limit ids of the user's oldest active records
func (r *WarningRepository) OldestActiveIDs(ctx context.Context, userID string, now time.Time, limit int) ([]string, error) {
	var ids []string
	query := r.db.Rebind(`SELECT id FROM warning_records WHERE user_id = ? AND expires_at >= ? ORDER BY created_at ASC, id ASC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, userID, toMillis(now), limit); err != nil {
		return nil, fmt.Errorf("failed to query oldest warnings: %w", err)
	}
	return ids, nil
}

// DeleteByIDs removes the given records
func (r *WarningRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`DELETE FROM warning_records WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build warning delete: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete warnings: %w", err)
	}
	return res.RowsAffected()
}

// SetCount writes the denormalized count. A zero count removes the row.
func (r *WarningRepository) SetCount(ctx context.Context, userID string, count int, now time.Time) error {
	if count <= 0 {
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM warning_counts WHERE user_id = ?`), userID); err != nil {
			return fmt.Errorf("failed to clear warning count: %w", err)
		}
		return nil
	}

	query := r.db.Rebind(`INSERT INTO warning_counts (user_id, count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, userID, count, toMillis(now)); err != nil {
		return fmt.Errorf("failed to upsert warning count: %w", err)
	}
	return nil
}

// GetCount reads the denormalized count; unknown users have zero
func (r *WarningRepository) GetCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(`SELECT count FROM warning_counts WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get warning count: %w", err)
	}
	return n, nil
}

// ListCounts returns every stored count keyed by user
func (r *WarningRepository) ListCounts(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		UserID string `db:"user_id"`
		Count  int    `db:"count"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT user_id, count FROM warning_counts`); err != nil {
		return nil, fmt.Errorf("failed to list warning counts: %w", err)
	}
	res := make(map[string]int, len(rows))
	for _, row := range rows {
		res[row.UserID] = row.Count
	}
	return res, nil
}
