package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator = "100000000000000009"
	member   = "100000000000000001"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modctl.db")
	t.Setenv("DB_DRIVER", database.DriverSQLite)
	t.Setenv("DB_PATH", path)
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("BOT_USER_ID", operator)
	t.Setenv("ENCRYPTION_KEY", "")
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.RunContext(context.Background(), append([]string{"modctl"}, args...))
	return out.String(), err
}

func TestWordsCommands(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "words", "add", "--list", "black", "Scam")
	require.NoError(t, err)
	assert.Contains(t, out, "added: Scam (BLACK)")

	out, err = runCLI(t, "words", "add", "--list", "BLACK", "scam")
	require.NoError(t, err)
	assert.Contains(t, out, "already_exists")

	out, err = runCLI(t, "words", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "BLACK (1)\n  scam\n")
	assert.Contains(t, out, "GRAY (", "default graylist is seeded")

	out, err = runCLI(t, "words", "remove", "scam")
	require.NoError(t, err)
	assert.Contains(t, out, "removed: scam")

	out, err = runCLI(t, "words", "remove", "scam")
	require.NoError(t, err)
	assert.Contains(t, out, "not_found: scam")
}

func TestWordsAddRejectsBadInput(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "words", "add", "--list", "red", "scam")
	assert.ErrorContains(t, err, "--list must be BLACK or GRAY")

	_, err = runCLI(t, "words", "add")
	assert.Error(t, err)
}

func TestLedgerShowAndCleanup(t *testing.T) {
	path := setupEnv(t)

	// migrate through the CLI first, then seed warnings directly
	_, err := runCLI(t, "ledger", "show", member)
	require.NoError(t, err)

	db, err := database.NewSQLiteDB(path)
	require.NoError(t, err)
	l := ledger.New(db)
	_, err = l.AddWarning(context.Background(), ledger.Warning{UserID: member, Reason: "spam", ModeratorID: operator})
	require.NoError(t, err)
	_, err = l.AddWarning(context.Background(), ledger.Warning{UserID: member, Reason: "insult", ModeratorID: operator})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := runCLI(t, "ledger", "show", member)
	require.NoError(t, err)
	assert.Contains(t, out, "2 active warning(s), threshold 3")
	assert.Equal(t, 1, strings.Count(out, "spam"))
	assert.Equal(t, 1, strings.Count(out, "insult"))

	out, err = runCLI(t, "ledger", "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "expired warnings removed: 0")

	_, err = runCLI(t, "ledger", "show", "not-a-snowflake")
	assert.Error(t, err)
}

func TestAnalyticsReport(t *testing.T) {
	setupEnv(t)

	out, err := runCLI(t, "analytics")
	require.NoError(t, err)
	assert.Contains(t, out, "last 30 day(s): 0 log entries")

	_, err = runCLI(t, "words", "add", "--list", "black", "scam")
	require.NoError(t, err)

	out, err = runCLI(t, "analytics", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "last 7 day(s): 1 log entries")
	assert.Contains(t, out, "  ADDWORD\t1\n")
	assert.Contains(t, out, "  "+operator+"\t1\n")

	_, err = runCLI(t, "analytics", "--days", "0")
	assert.ErrorContains(t, err, "--days must be between 1 and 365")
}

func TestSetClassifier(t *testing.T) {
	setupEnv(t)

	_, err := runCLI(t, "settings", "set-classifier", "--provider", "bard")
	assert.Error(t, err, "unknown provider fails validation")

	_, err = runCLI(t, "settings", "set-classifier", "--provider", "openai", "--api-key", "sk-test")
	assert.Error(t, err, "secrets need ENCRYPTION_KEY")

	t.Setenv("ENCRYPTION_KEY", strings.Repeat("ab", 32))
	out, err := runCLI(t, "settings", "set-classifier", "--provider", "openai", "--api-key", "sk-test", "--model", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Contains(t, out, "classifier provider set to openai (model gpt-4o-mini)")

	out, err = runCLI(t, "settings", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "=[REDACTED]")
	assert.NotContains(t, out, "sk-test")
	assert.Contains(t, out, "gpt-4o-mini")
}
