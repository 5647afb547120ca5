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

// ConfirmationRepository persists AI verdicts staged for operator approval
type ConfirmationRepository struct {
	db sqlx.ExtContext
}

func NewConfirmationRepository(db *database.DB) *ConfirmationRepository {
	return &ConfirmationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ConfirmationRepository) WithTx(tx *sqlx.Tx) *ConfirmationRepository {
	return &ConfirmationRepository{db: tx}
}

type confirmationRow struct {
	ID              string         `db:"id"`
	MessageID       string         `db:"message_id"`
	ChannelID       string         `db:"channel_id"`
	UserID          string         `db:"user_id"`
	ModeratorID     string         `db:"moderator_id"`
	Status          string         `db:"status"`
	MatchedWord     string         `db:"matched_word"`
	Content         string         `db:"content"`
	ContextSnapshot string         `db:"context_snapshot"`
	AIAnalysis      sql.NullString `db:"ai_analysis"`
	CreatedAt       int64          `db:"created_at"`
	ResolvedAt      sql.NullInt64  `db:"resolved_at"`
}

func (c confirmationRow) model() models.PendingConfirmation {
	pc := models.PendingConfirmation{
		ID:              c.ID,
		MessageID:       c.MessageID,
		ChannelID:       c.ChannelID,
		UserID:          c.UserID,
		ModeratorID:     c.ModeratorID,
		Status:          models.ConfirmationStatus(c.Status),
		MatchedWord:     c.MatchedWord,
		Content:         c.Content,
		ContextSnapshot: c.ContextSnapshot,
		CreatedAt:       fromMillis(c.CreatedAt),
	}
	if c.AIAnalysis.Valid && c.AIAnalysis.String != "" {
		pc.AIAnalysis = []byte(c.AIAnalysis.String)
	}
	if c.ResolvedAt.Valid {
		t := fromMillis(c.ResolvedAt.Int64)
		pc.ResolvedAt = &t
	}
	return pc
}

const confirmationColumns = `id, message_id, channel_id, user_id, moderator_id, status, matched_word, content, context_snapshot, ai_analysis, created_at, resolved_at`

// Create stores a pending confirmation
func (r *ConfirmationRepository) Create(ctx context.Context, c *models.PendingConfirmation) error {
	analysis := sql.NullString{}
	if len(c.AIAnalysis) > 0 {
		analysis = sql.NullString{String: string(c.AIAnalysis), Valid: true}
	}
	query := r.db.Rebind(`INSERT INTO ai_confirmations (` + confirmationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`)
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.MessageID, c.ChannelID, c.UserID, c.ModeratorID, c.Status,
		c.MatchedWord, c.Content, c.ContextSnapshot, analysis, toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert ai confirmation: %w", err)
	}
	return nil
}

// Get loads one confirmation
func (r *ConfirmationRepository) Get(ctx context.Context, id string) (*models.PendingConfirmation, error) {
	var row confirmationRow
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(`SELECT `+confirmationColumns+` FROM ai_confirmations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ai confirmation: %w", err)
	}
	pc := row.model()
	return &pc, nil
}

// Resolve moves a pending confirmation to a terminal status
func (r *ConfirmationRepository) Resolve(ctx context.Context, id string, status models.ConfirmationStatus, moderatorID string, now time.Time) error {
	query := r.db.Rebind(`UPDATE ai_confirmations SET status = ?, moderator_id = ?, resolved_at = ? WHERE id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, query, status, moderatorID, toMillis(now), id, models.ConfirmationPending)
	if err != nil {
		return fmt.Errorf("failed to resolve ai confirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve ai confirmation: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResolved
}

// ListPending returns pending confirmations, oldest first
func (r *ConfirmationRepository) ListPending(ctx context.Context, limit int) ([]models.PendingConfirmation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []confirmationRow
	query := r.db.Rebind(`SELECT ` + confirmationColumns + ` FROM ai_confirmations WHERE status = ? ORDER BY created_at ASC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, models.ConfirmationPending, limit); err != nil {
		return nil, fmt.Errorf("failed to query ai confirmations: %w", err)
	}
	res := make([]models.PendingConfirmation, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.model())
	}
	return res, nil
}
