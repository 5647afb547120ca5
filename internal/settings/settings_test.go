package settings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/database/dbtest"
	"github.com/fairguard/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestSealRoundTrip(t *testing.T) {
	c, err := NewSecretCipher(testKey)
	require.NoError(t, err)

	sealed, err := c.Seal("ai.gemini.api_key", "AIzaSecret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, "enc:v1:"))
	assert.NotContains(t, sealed, "AIzaSecret")

	again, err := c.Seal("ai.gemini.api_key", "AIzaSecret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")

	plain, err := c.Open("ai.gemini.api_key", sealed)
	require.NoError(t, err)
	assert.Equal(t, "AIzaSecret", plain)

	_, err = c.Open("ai.openai.api_key", sealed)
	assert.Error(t, err, "bound to its key")

	plain, err = c.Open("any", "legacy plain value")
	require.NoError(t, err)
	assert.Equal(t, "legacy plain value", plain)
}

func TestCipherRequiresKey(t *testing.T) {
	_, err := NewSecretCipher(nil)
	assert.ErrorIs(t, err, ErrNoEncryptionKey)

	_, err = NewSecretCipher([]byte("short"))
	assert.Error(t, err)

	var c *SecretCipher
	_, err = c.Seal("k", "v")
	assert.ErrorIs(t, err, ErrNoEncryptionKey)
}

func TestStoreSealsSecrets(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	c, err := NewSecretCipher(testKey)
	require.NoError(t, err)
	s := New(db, c)

	require.NoError(t, s.Set(ctx, "ai.provider", "openai", "900000000000000001"))
	require.NoError(t, s.SetSecret(ctx, "ai.openai.api_key", "sk-live", "900000000000000001"))

	raw, err := repository.NewSettingsRepository(db).Get(ctx, "ai.openai.api_key")
	require.NoError(t, err)
	assert.True(t, IsSealed(raw.Value))

	v, ok, err := s.Get(ctx, "ai.openai.api_key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-live", v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.List(ctx)
	require.NoError(t, err)
	values := map[string]string{}
	for _, st := range all {
		values[st.Key] = st.Value
	}
	assert.Equal(t, "openai", values["ai.provider"])
	assert.Equal(t, Redacted, values["ai.openai.api_key"])

	withoutKey := New(db, nil)
	assert.ErrorIs(t, withoutKey.SetSecret(ctx, "x", "y", "z"), ErrNoEncryptionKey)
	_, _, err = withoutKey.Get(ctx, "ai.openai.api_key")
	assert.ErrorIs(t, err, ErrNoEncryptionKey)
}

type swapper struct {
	mu sync.Mutex
	p  classifier.Provider
}

func (s *swapper) SetProvider(p classifier.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

func TestUpdateClassifierSwapsAndPersists(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	c, err := NewSecretCipher(testKey)
	require.NoError(t, err)
	s := New(db, c)

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"verdict\":\"SAFE\",\"reason\":\"ok\"}"}}]}`))
	}))
	defer srv.Close()

	base := config.AIConfig{Provider: config.ProviderGemini, Gemini: config.ProviderConfig{APIKey: "AIzaEnv", Model: "gemini-2.0-flash"}}
	gw := &swapper{}

	_, err = s.UpdateClassifier(ctx, base, ClassifierUpdate{Provider: config.ProviderCerebras, Model: "llama"}, "900000000000000001", gw, nil)
	require.Error(t, err, "no key configured for cerebras")
	_, ok, err := s.Get(ctx, KeyProvider)
	require.NoError(t, err)
	assert.False(t, ok, "nothing stored on failure")

	cfg, err := s.UpdateClassifier(ctx, base, ClassifierUpdate{
		Provider: config.ProviderOpenAI, Model: "gpt-4o-mini", Endpoint: srv.URL, APIKey: "sk-runtime",
	}, "900000000000000001", gw, srv.Client())
	require.NoError(t, err)
	assert.Equal(t, config.ProviderOpenAI, cfg.Provider)
	require.NotNil(t, gw.p)
	assert.Equal(t, config.ProviderOpenAI, gw.p.Name())

	_, err = gw.p.Submit(ctx, classifier.Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-runtime", auth)

	restored, err := s.ApplyClassifierOverrides(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderOpenAI, restored.Provider)
	assert.Equal(t, "sk-runtime", restored.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", restored.OpenAI.Model)
	assert.Equal(t, "AIzaEnv", restored.Gemini.APIKey, "untouched providers keep env values")
}
