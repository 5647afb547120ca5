package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/arbitration"
	"github.com/fairguard/backend/internal/auth"
	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/classifier/classifiertest"
	"github.com/fairguard/backend/internal/database/dbtest"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/moderation"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/platform/platformtest"
	"github.com/fairguard/backend/internal/ratelimit"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/settings"
	"github.com/fairguard/backend/internal/wordlist"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	member  = "100000000000000001"
	admin   = "900000000000000001"
	botUser = "800000000000000008"
	channel = "500000000000000005"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// answer routes prompts by what they ask
func answer(p classifier.Prompt) (string, error) {
	switch {
	case strings.Contains(p.System, "abuse of moderator power"):
		return `{"is_abuse": false, "reason": "cites a rule", "concerns": []}`, nil
	case strings.Contains(p.System, "appeal against"):
		return `{"status": "ACCEPTED", "reason": "the word was quoted"}`, nil
	}
	return `{"verdict":"SAFE","reason":"friendly banter"}`, nil
}

type swapRecorder struct{ swapped classifier.Provider }

func (s *swapRecorder) SetProvider(p classifier.Provider) { s.swapped = p }

type env struct {
	router *gin.Engine
	jwt    *auth.JWTService
	plat   *platformtest.Fake
	swap   *swapRecorder
}

func newEnv(t *testing.T, commandLimit int) *env {
	t.Helper()
	ctx := context.Background()

	db := dbtest.New(t)
	l := ledger.New(db)
	words := wordlist.New(db)
	require.NoError(t, words.Reload(ctx))

	plat := platformtest.New()
	cls := &classifiertest.Fake{Respond: answer}
	admins := platform.NewAdmins(plat, []string{admin}, nil)
	trust := moderation.NewTrustScorer(db, l, moderation.TrustConfig{Min: 0, Max: 100, Default: 50, LowThreshold: 30})
	t.Cleanup(trust.Wait)

	pipeline := moderation.New(moderation.Deps{
		DB:         db,
		Ledger:     l,
		Words:      words,
		Classifier: cls,
		Platform:   plat,
		Alerter:    plat,
		Admins:     admins,
		Trust:      trust,
	}, moderation.Config{WarnThreshold: 3, MaxMessageLength: 2000, SpamWindow: 10 * time.Second, BotUserID: botUser})

	arb := arbitration.New(arbitration.Deps{
		DB:         db,
		Ledger:     l,
		Classifier: cls,
		Platform:   plat,
		Alerter:    plat,
		Admins:     admins,
	}, arbitration.Config{WarnThreshold: 3})

	jwtService := auth.NewJWTService("handlers-secret", 1)
	swap := &swapRecorder{}
	router := gin.New()
	Routes{
		JWT:        jwtService,
		Admins:     admins,
		Limiter:    ratelimit.New(repository.NewRateLimitRepository(db), commandLimit, time.Minute),
		Moderation: NewModerationHandler(pipeline, nil),
		Warns:      NewWarnHandler(arb, nil),
		Words:      NewWordHandler(words),
		Users:      NewUserHandler(db, l, trust),
		Analytics:  NewAnalyticsHandler(db),
		Settings:   NewSettingsHandler(settings.New(db, nil), config.AIConfig{Provider: config.ProviderGemini}, swap, nil),
	}.Register(router)

	return &env{router: router, jwt: jwtService, plat: plat, swap: swap}
}

func (e *env) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := e.jwt.GenerateToken(userID, "")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestPublicRoutesAndAuth(t *testing.T) {
	e := newEnv(t, 100)

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/metrics", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/v1/words", "", nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/words", member, nil).Code)

	w := e.do(t, http.MethodPost, "/api/v1/words", member, gin.H{"word": "scamlink", "list": "BLACK"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = e.do(t, http.MethodGet, "/api/v1/users/"+member+"/warnings", member, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWordRoutes(t *testing.T) {
	e := newEnv(t, 100)

	w := e.do(t, http.MethodPost, "/api/v1/words", admin, gin.H{"word": "ScamLink", "list": "BLACK"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "added", decode(t, w)["result"])
	assert.Equal(t, "scamlink", decode(t, w)["word"])

	w = e.do(t, http.MethodPost, "/api/v1/words", admin, gin.H{"word": "scamlink", "list": "GRAY"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already_exists", decode(t, w)["result"])

	w = e.do(t, http.MethodPost, "/api/v1/words", admin, gin.H{"word": "bad;word", "list": "PURPLE"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Contains(t, fields, "word")
	assert.Contains(t, fields, "list")

	w = e.do(t, http.MethodGet, "/api/v1/words", member, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"scamlink"}, decode(t, w)["black"])
	assert.Contains(t, decode(t, w)["gray"], "noob")

	w = e.do(t, http.MethodDelete, "/api/v1/words/scamlink", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "removed", decode(t, w)["result"])

	w = e.do(t, http.MethodDelete, "/api/v1/words/scamlink", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModerateThenAppeal(t *testing.T) {
	e := newEnv(t, 100)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/v1/words", admin, gin.H{"word": "scamlink", "list": "BLACK"}).Code)

	w := e.do(t, http.MethodPost, "/api/v1/messages/moderate", member, gin.H{
		"id":         "m1",
		"channel_id": channel,
		"author_id":  member,
		"author_tag": "member",
		"content":    "visit scamlink now",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "punished", body["outcome"])
	decisions := body["result"].(map[string]any)["decisions"].([]any)
	require.Len(t, decisions, 1)
	punishment := decisions[0].(map[string]any)["punishment"].(map[string]any)
	logID := punishment["log_id"].(string)
	assert.EqualValues(t, 1, punishment["active_count"])

	w = e.do(t, http.MethodGet, "/api/v1/users/"+member+"/warnings", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["active_count"])

	w = e.do(t, http.MethodGet, "/api/v1/users/"+member+"/logs?limit=10", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode(t, w)["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "BLACKLIST", logs[0].(map[string]any)["type"])

	w = e.do(t, http.MethodPost, "/api/v1/appeals", member, gin.H{"log_id": logID, "reason": "I was warning others about the scam"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "accepted", decode(t, w)["status"])

	w = e.do(t, http.MethodPost, "/api/v1/appeals", member, gin.H{"log_id": logID, "reason": "again"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already_resolved", decode(t, w)["status"])

	w = e.do(t, http.MethodPost, "/api/v1/appeals", member, gin.H{"log_id": "missing", "reason": "why"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/users/"+member+"/warnings", admin, nil)
	assert.EqualValues(t, 0, decode(t, w)["active_count"])
}

func TestAnalyticsRoutes(t *testing.T) {
	e := newEnv(t, 100)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/v1/words", admin, gin.H{"word": "scamlink", "list": "BLACK"}).Code)
	w := e.do(t, http.MethodPost, "/api/v1/messages/moderate", member, gin.H{"id": "m1", "channel_id": channel, "author_id": member, "content": "scamlink here"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/v1/analytics?days=7", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.GreaterOrEqual(t, body["total"], float64(1))
	assert.Equal(t, []any{map[string]any{"key": "BLACKLIST", "count": float64(1)}}, body["word_hits"])
	assert.Contains(t, body["top_users"], map[string]any{"key": member, "count": float64(1)})
	assert.NotEmpty(t, body["hourly"])

	w = e.do(t, http.MethodGet, "/api/v1/logs?type=blacklist", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	logs := decode(t, w)["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, member, logs[0].(map[string]any)["user_id"])

	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/analytics?days=0", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/analytics?days=400", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodGet, "/api/v1/logs?type=purple", admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/api/v1/analytics", member, nil).Code)
}

func TestModerateValidation(t *testing.T) {
	e := newEnv(t, 100)

	w := e.do(t, http.MethodPost, "/api/v1/messages/moderate", member, gin.H{"id": "m1", "channel_id": channel, "author_id": "abc"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "author_id")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/moderate", strings.NewReader("{"))
	token, err := e.jwt.GenerateToken(member, "")
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = e.do(t, http.MethodGet, "/api/v1/users/42/warnings", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = e.do(t, http.MethodGet, "/api/v1/users/"+member+"/logs?limit=5000", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOperatorActions(t *testing.T) {
	e := newEnv(t, 100)

	w := e.do(t, http.MethodPost, "/api/v1/warns", admin, gin.H{"target_id": member, "reason": "posted invite links, rule 3"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "committed", decode(t, w)["status"])

	w = e.do(t, http.MethodPost, "/api/v1/warns", admin, gin.H{"target_id": admin, "reason": "self"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "target_is_admin", decode(t, w)["status"])

	w = e.do(t, http.MethodPost, "/api/v1/warns/pending/nope/confirm", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/warns/pending/nope/cancel", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/confirmations/nope/approve", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPost, "/api/v1/confirmations/nope/reject", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/unwarn", admin, gin.H{"target_id": member, "amount": 1, "reason": "resolved in ticket"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, decode(t, w)["active_count"])

	w = e.do(t, http.MethodPost, "/api/v1/timeouts", admin, gin.H{"target_id": member, "minutes": 10, "reason": "cool down"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "applied", decode(t, w)["status"])
	require.Len(t, e.plat.Timeouts, 1)
	assert.Equal(t, 10*time.Minute, e.plat.Timeouts[0].Duration)

	w = e.do(t, http.MethodGet, "/api/v1/users/"+member+"/trust", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["low_trust"])
}

func TestCommandsAreRateLimited(t *testing.T) {
	e := newEnv(t, 1)
	msg := gin.H{"id": "m1", "channel_id": channel, "author_id": member, "content": "hello"}

	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/v1/messages/moderate", member, msg).Code)
	assert.Equal(t, http.StatusTooManyRequests, e.do(t, http.MethodPost, "/api/v1/messages/moderate", member, msg).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/v1/words", member, nil).Code, "reads are not metered")
}

func TestUpdateClassifierSettings(t *testing.T) {
	e := newEnv(t, 100)

	w := e.do(t, http.MethodPut, "/api/v1/settings/classifier", admin, gin.H{"provider": "llama"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["fields"], "provider")

	w = e.do(t, http.MethodPut, "/api/v1/settings/classifier", admin, gin.H{"provider": "openai"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "no key configured for openai")

	w = e.do(t, http.MethodPut, "/api/v1/settings/classifier", admin, gin.H{"provider": "openai", "api_key": "sk-runtime"})
	assert.Equal(t, http.StatusConflict, w.Code, "secrets need an encryption key")
	assert.Nil(t, e.swap.swapped)

	w = e.do(t, http.MethodGet, "/api/v1/settings", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
