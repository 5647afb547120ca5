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

type SettingsRepository struct {
	db sqlx.ExtContext
}

func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

type settingRow struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedBy string `db:"updated_by"`
	UpdatedAt int64  `db:"updated_at"`
}

func (s settingRow) model() models.Setting {
	return models.Setting{Key: s.Key, Value: s.Value, UpdatedBy: s.UpdatedBy, UpdatedAt: fromMillis(s.UpdatedAt)}
}

// WithTx returns a repository bound to tx
func (r *SettingsRepository) WithTx(tx *sqlx.Tx) *SettingsRepository {
	return &SettingsRepository{db: tx}
}

func (r *SettingsRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var row settingRow
	err := sqlx.GetContext(ctx, r.db, &row, r.db.Rebind(`SELECT key, value, updated_by, updated_at FROM bot_settings WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	s := row.model()
	return &s, nil
}

func (r *SettingsRepository) Set(ctx context.Context, key, value, updatedBy string, now time.Time) error {
	query := r.db.Rebind(`INSERT INTO bot_settings (key, value, updated_by, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at`)
	if _, err := r.db.ExecContext(ctx, query, key, value, updatedBy, toMillis(now)); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (r *SettingsRepository) Delete(ctx context.Context, key string) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM bot_settings WHERE key = ?`), key)
	if err != nil {
		return false, fmt.Errorf("failed to delete setting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete setting: %w", err)
	}
	return n > 0, nil
}

func (r *SettingsRepository) List(ctx context.Context) ([]models.Setting, error) {
	var rows []settingRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT key, value, updated_by, updated_at FROM bot_settings ORDER BY key`); err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	res := make([]models.Setting, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.model())
	}
	return res, nil
}
