package database

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Migration represents a database migration. Statements stick to the subset
// of SQL understood by both Postgres and SQLite; timestamps are stored as
// unix milliseconds.
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE TABLE IF NOT EXISTS warning_records (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				created_at BIGINT NOT NULL,
				expires_at BIGINT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				moderator_id TEXT NOT NULL DEFAULT '',
				origin_log_id TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_warning_records_user_expires ON warning_records(user_id, expires_at);
			CREATE INDEX IF NOT EXISTS idx_warning_records_expires ON warning_records(expires_at);

			CREATE TABLE IF NOT EXISTS warning_counts (
				user_id TEXT PRIMARY KEY,
				count INTEGER NOT NULL CHECK (count >= 0),
				updated_at BIGINT NOT NULL
			);
		`,
		Down: `
			DROP TABLE IF EXISTS warning_counts;
			DROP TABLE IF EXISTS warning_records;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS mod_logs (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				user_id TEXT NOT NULL,
				moderator_id TEXT NOT NULL DEFAULT '',
				channel_id TEXT NOT NULL DEFAULT '',
				message_id TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				reason TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				context_snapshot TEXT NOT NULL DEFAULT '',
				ai_analysis TEXT,
				is_resolved BOOLEAN NOT NULL DEFAULT FALSE
			);

			CREATE INDEX IF NOT EXISTS idx_mod_logs_user_created ON mod_logs(user_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_mod_logs_type_created ON mod_logs(type, created_at);
			CREATE INDEX IF NOT EXISTS idx_mod_logs_resolved_created ON mod_logs(is_resolved, created_at);
			CREATE INDEX IF NOT EXISTS idx_mod_logs_moderator_user ON mod_logs(moderator_id, user_id, type, created_at);
		`,
		Down: `
			DROP TABLE IF EXISTS mod_logs;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS banned_words (
				word TEXT PRIMARY KEY,
				list_type TEXT NOT NULL CHECK (list_type IN ('BLACK', 'GRAY')),
				created_at BIGINT NOT NULL
			);
		`,
		Down: `
			DROP TABLE IF EXISTS banned_words;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS ai_confirmations (
				id TEXT PRIMARY KEY,
				message_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				moderator_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
				matched_word TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				context_snapshot TEXT NOT NULL DEFAULT '',
				ai_analysis TEXT,
				created_at BIGINT NOT NULL,
				resolved_at BIGINT
			);

			CREATE INDEX IF NOT EXISTS idx_ai_confirmations_status ON ai_confirmations(status, created_at);
		`,
		Down: `
			DROP TABLE IF EXISTS ai_confirmations;
		`,
	},
	{
		Version: 5,
		Up: `
			CREATE TABLE IF NOT EXISTS message_tracking (
				message_id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				length INTEGER NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_message_tracking_user_channel ON message_tracking(user_id, channel_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_message_tracking_user_created ON message_tracking(user_id, created_at);
		`,
		Down: `
			DROP TABLE IF EXISTS message_tracking;
		`,
	},
	{
		Version: 6,
		Up: `
			CREATE TABLE IF NOT EXISTS trust_scores (
				user_id TEXT PRIMARY KEY,
				score INTEGER NOT NULL,
				warning_count_snapshot INTEGER NOT NULL DEFAULT 0,
				spam_ratio_snapshot DOUBLE PRECISION NOT NULL DEFAULT 0,
				first_seen BIGINT NOT NULL,
				last_updated BIGINT NOT NULL
			);
		`,
		Down: `
			DROP TABLE IF EXISTS trust_scores;
		`,
	},
	{
		Version: 7,
		Up: `
			CREATE TABLE IF NOT EXISTS command_rate_limits (
				user_id TEXT PRIMARY KEY,
				window_start BIGINT NOT NULL,
				command_count INTEGER NOT NULL
			);
		`,
		Down: `
			DROP TABLE IF EXISTS command_rate_limits;
		`,
	},
	{
		Version: 8,
		Up: `
			CREATE TABLE IF NOT EXISTS bot_settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_by TEXT NOT NULL DEFAULT '',
				updated_at BIGINT NOT NULL
			);
		`,
		Down: `
			DROP TABLE IF EXISTS bot_settings;
		`,
	},
}

// RunMigrations applies all pending migrations, each in its own transaction
func RunMigrations(db *sqlx.DB) error {
	// Ensure migrations table exists
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	// Run pending migrations in ascending order by version
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, migration := range sorted {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info().Int("version", migration.Version).Msg("running migration")

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// AppliedMigration is one row of schema_migrations
type AppliedMigration struct {
	Version   int    `db:"version"`
	AppliedAt string `db:"applied_at"`
}

// Status lists applied migrations in version order
func Status(db *sqlx.DB) ([]AppliedMigration, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}
	var applied []AppliedMigration
	err := db.Select(&applied, "SELECT version, CAST(applied_at AS TEXT) AS applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	return applied, nil
}

func ensureMigrationsTable(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func getCurrentVersion(db *sqlx.DB) (int, error) {
	var version sql.NullInt64
	if err := db.Get(&version, "SELECT MAX(version) FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
