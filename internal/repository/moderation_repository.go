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

// ModerationRepository stores banned words and the moderation audit trail
type ModerationRepository struct {
	db sqlx.ExtContext
}

func NewModerationRepository(db *database.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ModerationRepository) WithTx(tx *sqlx.Tx) *ModerationRepository {
	return &ModerationRepository{db: tx}
}

// AddBannedWord inserts a word. It reports false when the word already exists
// on either list.
func (r *ModerationRepository) AddBannedWord(ctx context.Context, word string, list models.ListType, now time.Time) (bool, error) {
	query := r.db.Rebind(`INSERT INTO banned_words (word, list_type, created_at) VALUES (?, ?, ?) ON CONFLICT (word) DO NOTHING`)
	res, err := r.db.ExecContext(ctx, query, word, list, toMillis(now))
	if err != nil {
		return false, fmt.Errorf("failed to add banned word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add banned word: %w", err)
	}
	return n > 0, nil
}

// RemoveBannedWord deletes a word. It reports false when the word was absent.
func (r *ModerationRepository) RemoveBannedWord(ctx context.Context, word string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM banned_words WHERE word = ?`), word)
	if err != nil {
		return false, fmt.Errorf("failed to remove banned word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove banned word: %w", err)
	}
	return n > 0, nil
}

// GetBannedWords returns both lists ordered by word
func (r *ModerationRepository) GetBannedWords(ctx context.Context) ([]models.BannedWord, error) {
	var rows []struct {
		Word      string          `db:"word"`
		ListType  models.ListType `db:"list_type"`
		CreatedAt int64           `db:"created_at"`
	}
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT word, list_type, created_at FROM banned_words ORDER BY word`); err != nil {
		return nil, fmt.Errorf("failed to query banned words: %w", err)
	}

	res := make([]models.BannedWord, 0, len(rows))
	for _, row := range rows {
		res = append(res, models.BannedWord{Word: row.Word, ListType: row.ListType, CreatedAt: fromMillis(row.CreatedAt)})
	}
	return res, nil
}

// CountBannedWords returns the number of stored words across both lists
func (r *ModerationRepository) CountBannedWords(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM banned_words`); err != nil {
		return 0, fmt.Errorf("failed to count banned words: %w", err)
	}
	return n, nil
}

type modLogRow struct {
	ID              string         `db:"id"`
	Type            string         `db:"type"`
	UserID          string         `db:"user_id"`
	ModeratorID     string         `db:"moderator_id"`
	ChannelID       string         `db:"channel_id"`
	MessageID       string         `db:"message_id"`
	CreatedAt       int64          `db:"created_at"`
	Reason          string         `db:"reason"`
	Content         string         `db:"content"`
	ContextSnapshot string         `db:"context_snapshot"`
	AIAnalysis      sql.NullString `db:"ai_analysis"`
	IsResolved      bool           `db:"is_resolved"`
}

func (m modLogRow) model() models.ModLog {
	l := models.ModLog{
		ID:              m.ID,
		Type:            models.LogType(m.Type),
		UserID:          m.UserID,
		ModeratorID:     m.ModeratorID,
		ChannelID:       m.ChannelID,
		MessageID:       m.MessageID,
		CreatedAt:       fromMillis(m.CreatedAt),
		Reason:          m.Reason,
		Content:         m.Content,
		ContextSnapshot: m.ContextSnapshot,
		IsResolved:      m.IsResolved,
	}
	if m.AIAnalysis.Valid && m.AIAnalysis.String != "" {
		l.AIAnalysis = []byte(m.AIAnalysis.String)
	}
	return l
}

const modLogColumns = `id, type, user_id, moderator_id, channel_id, message_id, created_at, reason, content, context_snapshot, ai_analysis, is_resolved`

// AddLog appends a moderation log entry
func (r *ModerationRepository) AddLog(ctx context.Context, l *models.ModLog) error {
	analysis := sql.NullString{}
	if len(l.AIAnalysis) > 0 {
		analysis = sql.NullString{String: string(l.AIAnalysis), Valid: true}
	}

	query := r.db.Rebind(`INSERT INTO mod_logs (` + modLogColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.Type, l.UserID, l.ModeratorID, l.ChannelID, l.MessageID,
		toMillis(l.CreatedAt), l.Reason, l.Content, l.ContextSnapshot, analysis, l.IsResolved)
	if err != nil {
		return fmt.Errorf("failed to insert moderation log: %w", err)
	}
	return nil
}

// GetLog loads one entry by id
func (r *ModerationRepository) GetLog(ctx context.Context, id string) (*models.ModLog, error) {
	var row modLogRow
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(`SELECT `+modLogColumns+` FROM mod_logs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get moderation log: %w", err)
	}
	l := row.model()
	return &l, nil
}

// MarkLogResolved flips is_resolved from false to true. A second call
// returns ErrAlreadyResolved.
func (r *ModerationRepository) MarkLogResolved(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE mod_logs SET is_resolved = TRUE WHERE id = ? AND is_resolved = FALSE`), id)
	if err != nil {
		return fmt.Errorf("failed to resolve moderation log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve moderation log: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := r.GetLog(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResolved
}

// GetLogsByUser returns the newest entries about a user
func (r *ModerationRepository) GetLogsByUser(ctx context.Context, userID string, limit int) ([]models.ModLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []modLogRow
	query := r.db.Rebind(`SELECT ` + modLogColumns + ` FROM mod_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to query moderation logs: %w", err)
	}

	res := make([]models.ModLog, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.model())
	}
	return res, nil
}

// CountManualWarns counts WARN_MANUAL entries by moderator against target since the given time
func (r *ModerationRepository) CountManualWarns(ctx context.Context, moderatorID, targetID string, since time.Time) (int, error) {
	var n int
	query := r.db.Rebind(`SELECT COUNT(*) FROM mod_logs WHERE moderator_id = ? AND user_id = ? AND type = ? AND created_at >= ?`)
	if err := sqlx.GetContext(ctx, r.db, &n, query, moderatorID, targetID, models.LogWarnManual, toMillis(since)); err != nil {
		return 0, fmt.Errorf("failed to count manual warns: %w", err)
	}
	return n, nil
}

// CountLogsByTypes counts a user's entries of the given types since the given time
func (r *ModerationRepository) CountLogsByTypes(ctx context.Context, userID string, types []models.LogType, since time.Time) (int, error) {
	if len(types) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM mod_logs WHERE user_id = ? AND type IN (?) AND created_at >= ?`, userID, types, toMillis(since))
	if err != nil {
		return 0, fmt.Errorf("failed to build log count: %w", err)
	}
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, r.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("failed to count moderation logs: %w", err)
	}
	return n, nil
}

// ListRecent returns the newest entries created at or after since. An empty
// logType matches every type.
func (r *ModerationRepository) ListRecent(ctx context.Context, logType models.LogType, since time.Time, limit int) ([]models.ModLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + modLogColumns + ` FROM mod_logs WHERE created_at >= ?`
	args := []any{toMillis(since)}
	if logType != "" {
		query += ` AND type = ?`
		args = append(args, logType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	var rows []modLogRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query recent moderation logs: %w", err)
	}

	res := make([]models.ModLog, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.model())
	}
	return res, nil
}

const statsTopN = 5

// Stats aggregates entries created at or after since: the most frequent
// types and users, the UTC hour-of-day distribution and word-match hits.
func (r *ModerationRepository) Stats(ctx context.Context, since time.Time) (*models.ModerationStats, error) {
	from := toMillis(since)
	stats := &models.ModerationStats{
		Since:    since,
		TopTypes: []models.KeyCount{},
		TopUsers: []models.KeyCount{},
		Hourly:   []models.HourCount{},
		WordHits: []models.KeyCount{},
	}

	if err := sqlx.GetContext(ctx, r.db, &stats.Total, r.db.Rebind(`SELECT COUNT(*) FROM mod_logs WHERE created_at >= ?`), from); err != nil {
		return nil, fmt.Errorf("failed to count moderation logs: %w", err)
	}

	query := r.db.Rebind(`SELECT type AS key, COUNT(*) AS count FROM mod_logs WHERE created_at >= ?
		GROUP BY type ORDER BY count DESC, key LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &stats.TopTypes, query, from, statsTopN); err != nil {
		return nil, fmt.Errorf("failed to group logs by type: %w", err)
	}

	query = r.db.Rebind(`SELECT user_id AS key, COUNT(*) AS count FROM mod_logs WHERE created_at >= ?
		GROUP BY user_id ORDER BY count DESC, key LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.db, &stats.TopUsers, query, from, statsTopN); err != nil {
		return nil, fmt.Errorf("failed to group logs by user: %w", err)
	}

	query = r.db.Rebind(`SELECT (created_at / 3600000) % 24 AS hour, COUNT(*) AS count FROM mod_logs WHERE created_at >= ?
		GROUP BY hour ORDER BY hour`)
	if err := sqlx.SelectContext(ctx, r.db, &stats.Hourly, query, from); err != nil {
		return nil, fmt.Errorf("failed to group logs by hour: %w", err)
	}

	query, args, err := sqlx.In(`SELECT type AS key, COUNT(*) AS count FROM mod_logs WHERE type IN (?) AND created_at >= ?
		GROUP BY type ORDER BY count DESC, key`, []models.LogType{models.LogBlacklist, models.LogAIJudge, models.LogAIJudgeConfirmed}, from)
	if err != nil {
		return nil, fmt.Errorf("failed to build word hit query: %w", err)
	}
	if err := sqlx.SelectContext(ctx, r.db, &stats.WordHits, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to group word hits: %w", err)
	}
	return stats, nil
}
