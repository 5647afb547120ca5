package settings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/classifier"
	"github.com/rs/zerolog/log"
)

const KeyProvider = "ai.provider"

// ErrInvalidClassifier means the requested provider settings cannot build a
// working provider
var ErrInvalidClassifier = errors.New("invalid classifier settings")

func providerKey(provider, field string) string {
	return fmt.Sprintf("ai.%s.%s", provider, field)
}

// ClassifierUpdate changes the active provider and optionally its model,
// endpoint and key. Empty fields keep their current values.
type ClassifierUpdate struct {
	Provider string `json:"provider" validate:"required,oneof=gemini openai cerebras claude"`
	Model    string `json:"model" validate:"max=100"`
	Endpoint string `json:"endpoint" validate:"omitempty,url"`
	APIKey   string `json:"api_key" validate:"max=512"`
}

// ApplyClassifierOverrides layers stored overrides on top of the env config
func (s *Store) ApplyClassifierOverrides(ctx context.Context, base config.AIConfig) (config.AIConfig, error) {
	out := base
	provider, ok, err := s.Get(ctx, KeyProvider)
	if err != nil {
		return base, err
	}
	if ok {
		out.Provider = provider
	}

	for _, name := range []string{config.ProviderGemini, config.ProviderOpenAI, config.ProviderCerebras, config.ProviderAnthropic} {
		pc, _ := out.ProviderSettings(name)
		for field, dst := range map[string]*string{"model": &pc.Model, "endpoint": &pc.Endpoint, "api_key": &pc.APIKey} {
			v, ok, err := s.Get(ctx, providerKey(name, field))
			if err != nil {
				return base, fmt.Errorf("setting %s: %w", providerKey(name, field), err)
			}
			if ok {
				*dst = v
			}
		}
		out.SetProviderSettings(name, pc)
	}
	return out, nil
}

// Swapper is the part of the gateway that takes a new provider
type Swapper interface {
	SetProvider(p classifier.Provider)
}

// UpdateClassifier validates that the resulting provider can be built,
// stores the overrides and swaps the gateway's provider when gw is set.
// Nothing is stored when the provider cannot be built.
func (s *Store) UpdateClassifier(ctx context.Context, base config.AIConfig, u ClassifierUpdate, updatedBy string, gw Swapper, client *http.Client) (config.AIConfig, error) {
	cfg, err := s.ApplyClassifierOverrides(ctx, base)
	if err != nil {
		return base, err
	}

	pc, ok := cfg.ProviderSettings(u.Provider)
	if !ok {
		return base, fmt.Errorf("%w: unknown provider %q", ErrInvalidClassifier, u.Provider)
	}
	if u.Model != "" {
		pc.Model = u.Model
	}
	if u.Endpoint != "" {
		pc.Endpoint = u.Endpoint
	}
	if u.APIKey != "" {
		pc.APIKey = u.APIKey
	}

	p, err := classifier.NewProvider(u.Provider, pc, client)
	if err != nil {
		return base, fmt.Errorf("%w: %w", ErrInvalidClassifier, err)
	}
	if u.APIKey != "" {
		if err := s.SetSecret(ctx, providerKey(u.Provider, "api_key"), u.APIKey, updatedBy); err != nil {
			return base, err
		}
	}
	if u.Model != "" {
		if err := s.Set(ctx, providerKey(u.Provider, "model"), u.Model, updatedBy); err != nil {
			return base, err
		}
	}
	if u.Endpoint != "" {
		if err := s.Set(ctx, providerKey(u.Provider, "endpoint"), u.Endpoint, updatedBy); err != nil {
			return base, err
		}
	}
	if err := s.Set(ctx, KeyProvider, u.Provider, updatedBy); err != nil {
		return base, err
	}

	cfg.Provider = u.Provider
	cfg.SetProviderSettings(u.Provider, pc)
	if gw != nil {
		gw.SetProvider(p)
	}
	log.Info().Str("provider", u.Provider).Str("model", pc.Model).Str("updated_by", updatedBy).Msg("classifier provider changed")
	return cfg, nil
}
