// Package ledger keeps per-user warning records with expiry.
//
// Every mutation runs in one transaction that writes the records and
// recomputes the denormalized count together. Operations for the same user
// are serialized in-process; CleanupExpired excludes all other mutations
// while it rebuilds counts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// ErrLedger wraps every storage failure surfaced by the ledger
var ErrLedger = errors.New("ledger error")

// ErrInvalidAmount is returned for non-positive reductions
var ErrInvalidAmount = errors.New("reduction amount must be positive")

const DefaultExpiry = 30 * 24 * time.Hour

// TxFunc runs extra writes inside a ledger transaction
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// Guard sees the user's active count before a warning is added, under the
// same lock as the add. A non-nil error aborts the add and is returned
// unchanged.
type Guard func(ctx context.Context, prev int) error

// Warning describes a warning to add
type Warning struct {
	UserID      string
	Reason      string
	ModeratorID string
	OriginLogID string
}

type Ledger struct {
	db     *database.DB
	repo   *repository.WarningRepository
	expiry time.Duration
	now    func() time.Time

	// cleanup takes the write side; per-user mutations take the read side
	// plus their user's lock
	global sync.RWMutex
	users  keyedMutex
}

type Option func(*Ledger)

// WithExpiry sets how long a warning stays active
func WithExpiry(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.expiry = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(db *database.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:     db,
		repo:   repository.NewWarningRepository(db),
		expiry: DefaultExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddWarning records a warning and returns the user's new active count
func (l *Ledger) AddWarning(ctx context.Context, w Warning) (int, error) {
	return l.AddWarningWith(ctx, w, nil)
}

// AddWarningWith is AddWarning with extra writes committed in the same
// transaction. If inTx fails nothing is written.
func (l *Ledger) AddWarningWith(ctx context.Context, w Warning, inTx TxFunc) (int, error) {
	return l.AddWarningGuarded(ctx, w, nil, inTx)
}

// AddWarningGuarded is AddWarningWith with a guard that runs first. No other
// mutation for the user can interleave between the count guard sees and
// the add, so decisions taken on that count hold.
func (l *Ledger) AddWarningGuarded(ctx context.Context, w Warning, guard Guard, inTx TxFunc) (int, error) {
	if _, err := l.CleanupExpired(ctx); err != nil {
		return 0, err
	}

	unlock := l.lockUser(w.UserID)
	defer unlock()

	now := l.now()
	if guard != nil {
		prev, err := l.repo.CountActive(ctx, w.UserID, now)
		if err != nil {
			ledgerOps.WithLabelValues("add", "error").Inc()
			return 0, l.fail("count before add", w.UserID, err)
		}
		if err := guard(ctx, prev); err != nil {
			ledgerOps.WithLabelValues("add", "aborted").Inc()
			return 0, err
		}
	}

	var count int
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		if inTx != nil {
			if err := inTx(ctx, tx); err != nil {
				return &txFuncError{err: err}
			}
		}

		repo := l.repo.WithTx(tx)
		rec := &models.WarningRecord{
			ID:          uuid.NewString(),
			UserID:      w.UserID,
			CreatedAt:   now,
			ExpiresAt:   now.Add(l.expiry),
			Reason:      w.Reason,
			ModeratorID: w.ModeratorID,
			OriginLogID: w.OriginLogID,
		}
		if err := repo.Insert(ctx, rec); err != nil {
			return err
		}

		var err error
		count, err = recount(ctx, repo, w.UserID, now)
		return err
	})
	if err != nil {
		ledgerOps.WithLabelValues("add", "error").Inc()
		return 0, l.fail("add warning", w.UserID, err)
	}

	ledgerOps.WithLabelValues("add", "ok").Inc()
	log.Info().Str("user_id", w.UserID).Int("active", count).Str("origin_log_id", w.OriginLogID).Msg("warning added")
	return count, nil
}

// ReduceWarning deletes up to amount of the user's oldest active records and
// returns the remaining active count
func (l *Ledger) ReduceWarning(ctx context.Context, userID string, amount int) (int, error) {
	return l.ReduceWarningWith(ctx, userID, amount, nil)
}

// ReduceWarningWith is ReduceWarning with extra writes committed in the same
// transaction
func (l *Ledger) ReduceWarningWith(ctx context.Context, userID string, amount int, inTx TxFunc) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := l.CleanupExpired(ctx); err != nil {
		return 0, err
	}

	unlock := l.lockUser(userID)
	defer unlock()

	now := l.now()
	var count int
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := l.repo.WithTx(tx)
		ids, err := repo.OldestActiveIDs(ctx, userID, now, amount)
		if err != nil {
			return err
		}
		if _, err := repo.DeleteByIDs(ctx, ids); err != nil {
			return err
		}

		if inTx != nil {
			if err := inTx(ctx, tx); err != nil {
				return &txFuncError{err: err}
			}
		}

		count, err = recount(ctx, repo, userID, now)
		return err
	})
	if err != nil {
		ledgerOps.WithLabelValues("reduce", "error").Inc()
		return 0, l.fail("reduce warning", userID, err)
	}

	ledgerOps.WithLabelValues("reduce", "ok").Inc()
	log.Info().Str("user_id", userID).Int("amount", amount).Int("active", count).Msg("warnings reduced")
	return count, nil
}

// GetActiveWarningCount cleans up expired records, then returns the user's
// active count. Unknown users have zero warnings.
func (l *Ledger) GetActiveWarningCount(ctx context.Context, userID string) (int, error) {
	if _, err := l.CleanupExpired(ctx); err != nil {
		return 0, err
	}

	l.global.RLock()
	defer l.global.RUnlock()

	count, err := l.repo.GetCount(ctx, userID)
	if err != nil {
		return 0, l.fail("get warning count", userID, err)
	}
	return count, nil
}

// ActiveWarnings lists the user's active records, oldest first
func (l *Ledger) ActiveWarnings(ctx context.Context, userID string) ([]models.WarningRecord, error) {
	records, err := l.repo.ListActive(ctx, userID, l.now())
	if err != nil {
		return nil, l.fail("list warnings", userID, err)
	}
	return records, nil
}

// CleanupExpired deletes expired records and rebuilds the counts of every
// affected user in one transaction. It returns the number of deleted records.
func (l *Ledger) CleanupExpired(ctx context.Context) (int, error) {
	l.global.Lock()
	defer l.global.Unlock()

	now := l.now()
	var removed int64
	err := l.db.InTx(ctx, func(tx *sqlx.Tx) error {
		repo := l.repo.WithTx(tx)
		users, err := repo.ExpiredUsers(ctx, now)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return nil
		}

		removed, err = repo.DeleteExpired(ctx, now)
		if err != nil {
			return err
		}
		for _, u := range users {
			if _, err := recount(ctx, repo, u, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		ledgerOps.WithLabelValues("cleanup", "error").Inc()
		return 0, l.fail("cleanup expired warnings", "", err)
	}

	if removed > 0 {
		ledgerOps.WithLabelValues("cleanup", "ok").Inc()
		log.Debug().Int64("removed", removed).Msg("expired warnings cleaned up")
	}
	return int(removed), nil
}

func (l *Ledger) lockUser(userID string) func() {
	l.global.RLock()
	unlock := l.users.Lock(userID)
	return func() {
		unlock()
		l.global.RUnlock()
	}
}

// fail wraps storage failures in ErrLedger. Errors produced by a caller's
// TxFunc are returned unchanged so callers can branch on them.
func (l *Ledger) fail(op, userID string, err error) error {
	var fe *txFuncError
	if errors.As(err, &fe) {
		return fe.err
	}
	log.Error().Err(err).Str("op", op).Str("user_id", userID).Msg("ledger operation failed")
	return fmt.Errorf("%w: %s: %w", ErrLedger, op, err)
}

type txFuncError struct{ err error }

func (e *txFuncError) Error() string { return e.err.Error() }
func (e *txFuncError) Unwrap() error { return e.err }

// recount stores and returns the live count of active records
func recount(ctx context.Context, repo *repository.WarningRepository, userID string, now time.Time) (int, error) {
	count, err := repo.CountActive(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	if err := repo.SetCount(ctx, userID, count, now); err != nil {
		return 0, err
	}
	return count, nil
}
