package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

type TrustRepository struct {
	db sqlx.ExtContext
}

func NewTrustRepository(db *database.DB) *TrustRepository {
	return &TrustRepository{db: db}
}

// Upsert overwrites the user's score
func (r *TrustRepository) Upsert(ctx context.Context, s *models.TrustScore) error {
	query := r.db.Rebind(`INSERT INTO trust_scores (user_id, score, warning_count_snapshot, spam_ratio_snapshot, first_seen, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			score = excluded.score,
			warning_count_snapshot = excluded.warning_count_snapshot,
			spam_ratio_snapshot = excluded.spam_ratio_snapshot,
			first_seen = excluded.first_seen,
			last_updated = excluded.last_updated`)
	_, err := r.db.ExecContext(ctx, query, s.UserID, s.Score, s.WarningCountSnapshot, s.SpamRatioSnapshot, toMillis(s.FirstSeen), toMillis(s.LastUpdated))
	if err != nil {
		return fmt.Errorf("failed to upsert trust score: %w", err)
	}
	return nil
}

// Get loads the user's score
func (r *TrustRepository) Get(ctx context.Context, userID string) (*models.TrustScore, error) {
	var row struct {
		UserID               string  `db:"user_id"`
		Score                int     `db:"score"`
		WarningCountSnapshot int     `db:"warning_count_snapshot"`
		SpamRatioSnapshot    float64 `db:"spam_ratio_snapshot"`
		FirstSeen            int64   `db:"first_seen"`
		LastUpdated          int64   `db:"last_updated"`
	}
	query := r.db.Rebind(`SELECT user_id, score, warning_count_snapshot, spam_ratio_snapshot, first_seen, last_updated FROM trust_scores WHERE user_id = ?`)
	err := sqlx.GetContext(ctx, r.db, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trust score: %w", err)
	}
	return &models.TrustScore{
		UserID:               row.UserID,
		Score:                row.Score,
		WarningCountSnapshot: row.WarningCountSnapshot,
		SpamRatioSnapshot:    row.SpamRatioSnapshot,
		FirstSeen:            fromMillis(row.FirstSeen),
		LastUpdated:          fromMillis(row.LastUpdated),
	}, nil
}
