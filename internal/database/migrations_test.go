package database

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db.DB))
	require.NoError(t, RunMigrations(db.DB))

	applied, err := Status(db.DB)
	require.NoError(t, err)
	require.Len(t, applied, len(Migrations))
	for i, m := range applied {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.AppliedAt)
	}
}

func TestMigrationsCreateTables(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "tables.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, RunMigrations(db.DB))

	for _, table := range []string{
		"warning_records", "warning_counts", "mod_logs", "banned_words",
		"ai_confirmations", "message_tracking", "trust_scores",
		"command_rate_limits", "bot_settings",
	} {
		var n int
		err := db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestInTxRollsBack(t *testing.T) {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, RunMigrations(db.DB))

	boom := assert.AnError
	err = db.InTx(t.Context(), func(tx *sqlx.Tx) error {
		_, err := tx.Exec("INSERT INTO bot_settings (key, value, updated_at) VALUES ('k', 'v', 1)")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM bot_settings"))
	assert.Zero(t, n)
}
