// Package settings stores runtime overrides in bot_settings. Secret values
// are sealed before they reach the table.
package settings

import (
	"context"
	"errors"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/repository"
)

// Redacted replaces secret values in listings
const Redacted = "[REDACTED]"

type Store struct {
	repo   *repository.SettingsRepository
	cipher *SecretCipher
	now    func() time.Time
}

// New returns a store. A nil cipher leaves plain settings working and makes
// SetSecret fail with ErrNoEncryptionKey.
func New(db *database.DB, cipher *SecretCipher) *Store {
	return &Store{repo: repository.NewSettingsRepository(db), cipher: cipher, now: time.Now}
}

// Get returns the stored value, opening it if sealed
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	st, err := s.repo.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, err := s.cipher.Open(key, st.Value)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value, updatedBy string) error {
	return s.repo.Set(ctx, key, value, updatedBy, s.now())
}

// SetSecret seals value before storing it
func (s *Store) SetSecret(ctx context.Context, key, value, updatedBy string) error {
	sealed, err := s.cipher.Seal(key, value)
	if err != nil {
		return err
	}
	return s.repo.Set(ctx, key, sealed, updatedBy, s.now())
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	return s.repo.Delete(ctx, key)
}

// List returns every setting with sealed values redacted
func (s *Store) List(ctx context.Context) ([]models.Setting, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if IsSealed(all[i].Value) {
			all[i].Value = Redacted
		}
	}
	return all, nil
}
