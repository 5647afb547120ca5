// Package wordlist holds the in-memory blacklist and graylist.
//
// Readers see an immutable snapshot swapped in atomically by Reload, so a
// lookup never observes a half-loaded list. Every mutation reloads the full
// table before returning.
package wordlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// DefaultGraylist seeds an empty store on first run
var DefaultGraylist = []string{
	"死ね", "シネ", "しね", "殺す", "コロス", "ころす",
	"ゴミ", "ごみ", "カス", "かす", "うざい", "ウザい", "ウザイ",
	"きもい", "キモい", "キモイ", "ガイジ", "馬鹿", "バカ", "ばか",
	"アホ", "あほ", "kill", "noob",
}

// MutationResult reports the outcome of an add or remove
type MutationResult int

const (
	Added MutationResult = iota
	Removed
	AlreadyExists
	NotFound
)

func (r MutationResult) String() string {
	switch r {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case AlreadyExists:
		return "already_exists"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

type snapshot struct {
	black []string
	gray  []string
	kinds map[string]models.ListType
}

// seededKey marks that the default graylist was written once, so emptying
// the lists later does not bring the defaults back
const seededKey = "wordlist.seeded"

type Lists struct {
	db       *database.DB
	repo     *repository.ModerationRepository
	settings *repository.SettingsRepository
	now      func() time.Time

	current  atomic.Pointer[snapshot]
	reloadMu sync.Mutex
}

func New(db *database.DB) *Lists {
	l := &Lists{
		db:       db,
		repo:     repository.NewModerationRepository(db),
		settings: repository.NewSettingsRepository(db),
		now:      time.Now,
	}
	l.current.Store(&snapshot{kinds: map[string]models.ListType{}})
	return l
}

// Normalize folds width variants (NFKC) and case so stored words and message
// text compare the same way
func Normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

// Reload seeds the default graylist on the first run against an empty
// store, then replaces the in-memory lists with the full table.
func (l *Lists) Reload(ctx context.Context) error {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	if err := l.seedOnce(ctx); err != nil {
		return err
	}

	words, err := l.repo.GetBannedWords(ctx)
	if err != nil {
		return err
	}

	next := &snapshot{kinds: make(map[string]models.ListType, len(words))}
	for _, w := range words {
		word := Normalize(w.Word)
		if word == "" {
			continue
		}
		next.kinds[word] = w.ListType
		switch w.ListType {
		case models.ListBlack:
			next.black = append(next.black, word)
		case models.ListGray:
			next.gray = append(next.gray, word)
		}
	}
	sortWords(next.black)
	sortWords(next.gray)

	l.current.Store(next)
	log.Debug().Int("black", len(next.black)).Int("gray", len(next.gray)).Msg("word lists reloaded")
	return nil
}

func (l *Lists) seedOnce(ctx context.Context) error {
	_, err := l.settings.Get(ctx, seededKey)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	n, err := l.repo.CountBannedWords(ctx)
	if err != nil {
		return err
	}

	now := l.now()
	return l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		if n == 0 {
			repo := l.repo.WithTx(tx)
			for _, w := range DefaultGraylist {
				if _, err := repo.AddBannedWord(ctx, Normalize(w), models.ListGray, now); err != nil {
					return err
				}
			}
			log.Info().Int("words", len(DefaultGraylist)).Msg("seeded default graylist")
		}
		return l.settings.WithTx(tx).Set(ctx, seededKey, "true", "system", now)
	})
}

// Lookups cite the most specific word, so both lists are ordered by length
// descending, then lexically.
func sortWords(words []string) {
	sort.Slice(words, func(i, j int) bool {
		li, lj := len([]rune(words[i])), len([]rune(words[j]))
		if li != lj {
			return li > lj
		}
		return words[i] < words[j]
	})
}

// IsBlacklisted returns the first blacklisted word contained in text
func (l *Lists) IsBlacklisted(text string) (string, bool) {
	return firstMatch(l.current.Load().black, Normalize(text))
}

// MatchGraylist returns the first graylisted word contained in text
func (l *Lists) MatchGraylist(text string) (string, bool) {
	return firstMatch(l.current.Load().gray, Normalize(text))
}

func firstMatch(words []string, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, w := range words {
		if strings.Contains(text, w) {
			return w, true
		}
	}
	return "", false
}

// Words returns copies of both lists in lookup order
func (l *Lists) Words() (black, gray []string) {
	s := l.current.Load()
	return append([]string(nil), s.black...), append([]string(nil), s.gray...)
}

// Add stores word on list, records the change in the moderation log and
// reloads before returning
func (l *Lists) Add(ctx context.Context, word string, list models.ListType, moderatorID string) (MutationResult, error) {
	if !list.Valid() {
		return 0, fmt.Errorf("unknown list type %q", list)
	}
	word = Normalize(word)
	now := l.now()

	result := Added
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := l.repo.WithTx(tx)
		added, err := repo.AddBannedWord(ctx, word, list, now)
		if err != nil {
			return err
		}
		if !added {
			result = AlreadyExists
			return nil
		}
		return repo.AddLog(ctx, &models.ModLog{
			ID:          uuid.NewString(),
			Type:        models.LogAddWord,
			UserID:      moderatorID,
			ModeratorID: moderatorID,
			CreatedAt:   now,
			Reason:      fmt.Sprintf("%s (%s)", word, list),
		})
	})
	if err != nil {
		return 0, err
	}
	if result == AlreadyExists {
		return result, nil
	}
	return result, l.Reload(ctx)
}

// Remove deletes word from whichever list holds it
func (l *Lists) Remove(ctx context.Context, word, moderatorID string) (MutationResult, error) {
	word = Normalize(word)
	now := l.now()

	result := Removed
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := l.repo.WithTx(tx)
		removed, err := repo.RemoveBannedWord(ctx, word)
		if err != nil {
			return err
		}
		if !removed {
			result = NotFound
			return nil
		}
		return repo.AddLog(ctx, &models.ModLog{
			ID:          uuid.NewString(),
			Type:        models.LogRemoveWord,
			UserID:      moderatorID,
			ModeratorID: moderatorID,
			CreatedAt:   now,
			Reason:      word,
		})
	})
	if err != nil {
		return 0, err
	}
	if result == NotFound {
		return result, nil
	}
	return result, l.Reload(ctx)
}

// ListOf reports which list holds word
func (l *Lists) ListOf(word string) (models.ListType, bool) {
	kind, ok := l.current.Load().kinds[Normalize(word)]
	return kind, ok
}
